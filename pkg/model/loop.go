// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/mcphost/pkg/observability"
)

// ToolCall is a provider-neutral tool request.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// Reply is the provider's answer to one request. Native carries the
// provider's own assistant message so it can be echoed back.
type Reply struct {
	Text      string
	ToolCalls []ToolCall
	Native    any
}

// ToolResult pairs a tool call with what the tool returned.
type ToolResult struct {
	Call   ToolCall
	Result string
}

// Conversation is a provider-specific chat in progress.
type Conversation interface {
	// Send performs exactly one request to the provider.
	Send(ctx context.Context) (Reply, error)

	// Attach appends reply and the results of its tool calls so the next
	// Send continues from them.
	Attach(reply Reply, results []ToolResult)
}

var errNoToolCallback = errors.New("tool callback is required")

// RunLoop drives conv through at most opts.MaxToolRounds requests. Tool
// calls of a round run in order and all finish before the next request.
// Provider and tool errors are returned unchanged.
func RunLoop(ctx context.Context, provider Provider, conv Conversation, opts RunOptions) (Result, error) {
	rounds := max(1, opts.MaxToolRounds)
	tracer := observability.GetTracer("mcphost.model")

	var steps []Step
	for round := 0; round < rounds; round++ {
		roundCtx, span := tracer.Start(ctx, observability.SpanModelRound, trace.WithAttributes(
			attribute.String("llm.provider", string(provider)),
			attribute.Int("llm.round", round),
		))

		reply, err := conv.Send(roundCtx)
		if err != nil {
			span.RecordError(err)
			span.End()
			return Result{Steps: steps}, err
		}
		span.SetAttributes(attribute.Int("llm.tool_calls", len(reply.ToolCalls)))

		if len(reply.ToolCalls) == 0 {
			span.End()
			return Result{Text: reply.Text, Steps: steps}, nil
		}
		if opts.CallTool == nil {
			span.End()
			return Result{Steps: steps}, errNoToolCallback
		}

		results := make([]ToolResult, 0, len(reply.ToolCalls))
		for _, call := range reply.ToolCalls {
			args := call.Args
			if args == nil {
				args = map[string]any{}
			}
			res, err := opts.CallTool(roundCtx, call.Name, args)
			if err != nil {
				span.RecordError(err)
				span.End()
				return Result{Steps: steps}, err
			}
			steps = append(steps, Step{Name: call.Name, Args: args, Result: res})
			results = append(results, ToolResult{Call: call, Result: ResultJSON(res)})
		}
		conv.Attach(reply, results)
		span.End()
	}

	return Result{Text: LoopLimitText, Steps: steps}, nil
}
