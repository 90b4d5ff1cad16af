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

// Package toolcall executes tool calls against the tool server on behalf of
// a turn and keeps the redacted trace of every invocation.
package toolcall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/mcphost/pkg/observability"
	"github.com/kadirpekel/mcphost/pkg/toolserver"
)

const (
	// DefaultTimeout bounds one call; progress notifications restart it.
	DefaultTimeout = 2 * time.Minute

	rawSampleLimit = 600
)

var timeoutPattern = regexp.MustCompile(`(?i)request timed out`)

// Step is one trace entry. Args are always redacted.
type Step struct {
	Name      string                 `json:"name"`
	Args      map[string]any         `json:"args"`
	OK        bool                   `json:"ok"`
	Ms        int64                  `json:"ms"`
	Result    *toolserver.CallResult `json:"-"`
	Error     string                 `json:"error,omitempty"`
	Summary   string                 `json:"summary,omitempty"`
	RawSample string                 `json:"raw_sample,omitempty"`
	TxID      string                 `json:"tx_id,omitempty"`
	UID       string                 `json:"uid,omitempty"`
}

// CallError wraps a non-timeout tool-server failure.
type CallError struct {
	Tool string
	Err  error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Options configures a Caller.
type Options struct {
	// DefaultArgs are caller-supplied arguments keyed by tool name.
	DefaultArgs map[string]map[string]any

	// APIKey is injected into primary tools.
	APIKey string

	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration

	Metrics observability.Recorder
	Logger  *slog.Logger
}

// Caller is turn-scoped. It is safe for concurrent calls; steps are
// appended in completion order.
type Caller struct {
	client toolserver.Client
	opts   Options
	tracer trace.Tracer
	mu     sync.Mutex
	steps  []Step
}

// NewCaller creates a Caller for one turn.
func NewCaller(client toolserver.Client, opts Options) *Caller {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.Noop()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Caller{
		client: client,
		opts:   opts,
		tracer: observability.GetTracer("mcphost.toolcall"),
	}
}

// Call runs tool name with the model-proposed args. A tool-server timeout
// is not an error: a synthesized "timed out" result is returned instead.
// Any other failure is returned as *CallError. Both are traced as failed.
func (c *Caller) Call(ctx context.Context, name string, args map[string]any) (*toolserver.CallResult, error) {
	merged := PrepareArgs(name, MergeArgs(c.opts.DefaultArgs[name], args), c.opts.APIKey)
	redacted := Redact(merged)

	c.opts.Logger.Info("calling tool", "tool", name, "args", redacted)

	ctx, span := c.tracer.Start(ctx, observability.SpanToolCall,
		trace.WithAttributes(attribute.String("tool.name", name)))
	defer span.End()

	start := time.Now()
	res, err := c.client.CallTool(ctx, name, merged, toolserver.CallOptions{
		Timeout:                c.opts.Timeout,
		ResetTimeoutOnProgress: true,
	})
	elapsed := time.Since(start)

	step := Step{Name: name, Args: redacted, Ms: elapsed.Milliseconds()}

	switch {
	case err == nil:
		step.OK = true
		step.Result = res
		step.Summary = EnvelopeOf(res).Headline()
		step.RawSample = rawSample(res)

	case IsTimeout(err):
		res = TimeoutResult(name, c.opts.Timeout)
		step.Result = res
		step.Error = err.Error()
		step.Summary = EnvelopeOf(res).Headline()
		c.opts.Logger.Warn("tool timed out", "tool", name, "after", c.opts.Timeout)
		span.SetStatus(codes.Error, "timeout")
		err = nil

	default:
		step.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool call failed")
		err = &CallError{Tool: name, Err: err}
		c.opts.Logger.Error("tool call failed", "tool", name, "ms", step.Ms, "error", step.Error)
	}

	if step.OK {
		c.opts.Logger.Info("tool result", "tool", name, "ms", step.Ms, "summary", step.Summary)
	}
	c.opts.Metrics.RecordToolCall(ctx, name, elapsed, step.OK)
	c.append(step)

	return res, err
}

func (c *Caller) append(s Step) {
	c.mu.Lock()
	c.steps = append(c.steps, s)
	c.mu.Unlock()
}

// Steps returns a copy of the trace.
func (c *Caller) Steps() []Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Step(nil), c.steps...)
}

// IsTimeout reports whether err is a tool-server timeout: a local
// TimeoutError, or a message saying the request timed out. mcp-go reduces
// JSON-RPC errors to their message, so a server-side -32001 is only
// recognisable by its text.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var timeout *toolserver.TimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	return timeoutPattern.MatchString(err.Error())
}

// TimeoutResult is handed to the model in place of a real result.
func TimeoutResult(name string, after time.Duration) *toolserver.CallResult {
	summary := fmt.Sprintf("The %q tool timed out after %ds.", name, int(after.Seconds()))
	return &toolserver.CallResult{
		Content: []toolserver.ContentBlock{{Type: "text", Text: summary}},
		StructuredContent: map[string]any{
			"status":  "timeout",
			"summary": summary,
		},
		IsError: true,
	}
}

func rawSample(res *toolserver.CallResult) string {
	data, err := json.Marshal(res)
	if err != nil {
		return ""
	}
	return Clamp(string(data), rawSampleLimit)
}

// Clamp truncates s to n runes, marking the cut with an ellipsis.
func Clamp(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
