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

// Package orchestrator runs a chat turn end to end: intent scoping, the
// docs or action path, tool execution and finalization.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/mcphost/pkg/catalog"
	"github.com/kadirpekel/mcphost/pkg/finalize"
	"github.com/kadirpekel/mcphost/pkg/intent"
	"github.com/kadirpekel/mcphost/pkg/llmerror"
	"github.com/kadirpekel/mcphost/pkg/model"
	"github.com/kadirpekel/mcphost/pkg/model/selector"
	"github.com/kadirpekel/mcphost/pkg/observability"
	"github.com/kadirpekel/mcphost/pkg/prompt"
	"github.com/kadirpekel/mcphost/pkg/resources"
	"github.com/kadirpekel/mcphost/pkg/toolcall"
	"github.com/kadirpekel/mcphost/pkg/toolserver"
)

const (
	// MaxToolRounds bounds the action-path tool loop.
	MaxToolRounds = 3

	basePrompt    = "Be precise, neutral, and terse."
	userGoalLimit = 240
)

// Turn paths, used as the metrics label.
const (
	PathDocs     = "docs"
	PathFallback = "fallback"
	PathModel    = "model"
	PathLLMError = "llm_error"
)

var runtimeHints = []string{
	"If validate_hash is 404, do not claim existence.",
	"Normalize hashes to lowercase hex.",
}

var errToolsDisabled = errors.New("tools are disabled for documentation answers")

// Options wires the orchestrator's collaborators.
type Options struct {
	Tools     toolserver.Client
	Selector  *selector.Selector
	Resources *resources.Retriever

	// ToolTimeout defaults to toolcall.DefaultTimeout.
	ToolTimeout time.Duration

	// ResourceLimit bounds the scored documentation picks.
	ResourceLimit int

	Metrics observability.Recorder
	Logger  *slog.Logger
}

// Orchestrator handles chat turns. It is safe for concurrent use; all turn
// state lives on the stack.
type Orchestrator struct {
	opts   Options
	tracer trace.Tracer
}

// New validates opts and creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Tools == nil {
		return nil, fmt.Errorf("tool server client is required")
	}
	if opts.Selector == nil {
		return nil, fmt.Errorf("adapter selector is required")
	}
	if opts.Resources == nil {
		r, err := resources.NewRetriever(opts.Tools, 0)
		if err != nil {
			return nil, err
		}
		opts.Resources = r
	}
	if opts.ResourceLimit <= 0 {
		opts.ResourceLimit = resources.DefaultLimit
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.Noop()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{opts: opts, tracer: observability.GetTracer("mcphost.orchestrator")}, nil
}

// HandleChatTurn runs one turn.
//
// Validation and provider configuration problems are returned as
// *ValidationError and *selector.ConfigError. LLM transport failures are
// turned into a successful response carrying a friendly message. Tool
// failures and everything else are returned unchanged.
func (o *Orchestrator) HandleChatTurn(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, observability.SpanChatTurn, trace.WithAttributes(
		attribute.String("request.id", req.RequestID),
		attribute.String("user.id", req.UserID),
	))
	defer span.End()

	log := o.opts.Logger.With("request_id", req.RequestID, "user_id", req.UserID)

	resp, path, err := o.handle(ctx, log, req)
	span.SetAttributes(attribute.String("turn.path", path))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
	}
	o.opts.Metrics.RecordTurn(ctx, path, time.Since(start), err)

	if err != nil {
		return nil, err
	}
	resp.RequestID = req.RequestID
	resp.UserID = req.UserID
	if resp.ToolSteps == nil {
		resp.ToolSteps = []toolcall.Step{}
	}

	log.Info("chat complete", "path", path, "steps", len(resp.ToolSteps), "ms", time.Since(start).Milliseconds())
	return resp, nil
}

func (o *Orchestrator) handle(ctx context.Context, log *slog.Logger, req Request) (*Response, string, error) {
	if len(req.Messages) == 0 {
		return nil, "", &ValidationError{Msg: "messages[] required"}
	}
	messages := model.NormalizeMessages(req.Messages)

	adapter, sel, err := o.opts.Selector.Select(ctx, req.LLM)
	if err != nil {
		return nil, "", err
	}
	log = log.With("provider", sel.Provider, "model", sel.Model)

	items, err := catalog.Build(ctx, o.opts.Tools)
	if err != nil {
		return nil, "", err
	}

	userText := model.LastUserText(messages)
	scope := intent.ClassifyAndScope(userText, items)

	if scope.IsDocsIntent {
		log.Info("docs intent")
		resp, err := o.answerFromDocs(ctx, adapter, userText)
		return o.afterModel(ctx, log, sel, PathDocs, resp, err)
	}

	caller := toolcall.NewCaller(o.opts.Tools, toolcall.Options{
		DefaultArgs: req.ToolArgs,
		APIKey:      req.APIKey,
		Timeout:     o.opts.ToolTimeout,
		Metrics:     o.opts.Metrics,
		Logger:      log,
	})

	if name, args, ok := fallbackCall(userText, req.ToolArgs); ok {
		log.Info("deterministic fallback", "tool", name)
		if _, err := caller.Call(ctx, name, args); err != nil {
			return nil, PathFallback, err
		}
		steps := attachIDs(caller.Steps())
		return &Response{
			FinalText: finalize.Template(steps[len(steps)-1]),
			Links:     finalize.Links(steps),
			ToolSteps: steps,
		}, PathFallback, nil
	}

	scoped := scope.ScopedTools
	for _, name := range sortedKeys(req.ToolArgs) {
		scoped = intent.Include(scoped, items, name)
	}

	system := prompt.Compose(basePrompt, prompt.Options{
		UserGoal:        toolcall.Clamp(userText, userGoalLimit),
		ToolsInScope:    scoped,
		ChainName:       catalog.ChainName,
		RequireJSON:     true,
		PrimaryTools:    catalog.PrimaryTools(),
		DiagnosticTools: catalog.DiagnosticTools(),
		RuntimeHints:    runtimeHints,
	})

	result, err := adapter.Run(ctx, messages, model.RunOptions{
		Tools:          scoped,
		SystemPrompt:   system,
		MaxToolRounds:  MaxToolRounds,
		CallTool:       caller.Call,
		ResponseAsJSON: true,
	})
	if err != nil {
		return o.afterModel(ctx, log, sel, PathModel, nil, err)
	}

	steps := attachIDs(caller.Steps())
	if env, ok := finalize.Envelope(result.Text, steps); ok {
		log.Debug("model envelope", "action", env["action"], "status", env["status"])
	}
	return &Response{
		FinalText: finalize.Finalize(result.Text, steps),
		Links:     finalize.Links(steps),
		ToolSteps: steps,
	}, PathModel, nil
}

func (o *Orchestrator) answerFromDocs(ctx context.Context, adapter model.Adapter, userText string) (*Response, error) {
	all, err := o.opts.Resources.List(ctx)
	if err != nil {
		return nil, &docsError{err}
	}
	uris := resources.Select(userText, all, o.opts.ResourceLimit)
	docs, err := o.opts.Resources.Fetch(ctx, uris)
	if err != nil {
		return nil, &docsError{err}
	}

	result, err := adapter.Run(ctx, []model.Message{
		{Role: model.RoleSystem, Content: prompt.DocsSystemPrompt},
		{Role: model.RoleSystem, Content: prompt.DocsContext(resources.Render(docs))},
		{Role: model.RoleUser, Content: userText},
	}, model.RunOptions{
		MaxToolRounds: 0,
		CallTool: func(context.Context, string, map[string]any) (*toolserver.CallResult, error) {
			return nil, errToolsDisabled
		},
	})
	if err != nil {
		return nil, err
	}

	text := result.Text
	if text == "" {
		text = finalize.DefaultText
	}
	return &Response{FinalText: text, Sources: uris}, nil
}

// docsError marks resource failures so they are never mistaken for LLM
// transport errors.
type docsError struct{ err error }

func (e *docsError) Error() string { return "failed to load documentation resources: " + e.err.Error() }
func (e *docsError) Unwrap() error { return e.err }

// afterModel applies the LLM error boundary to the result of a model run.
func (o *Orchestrator) afterModel(ctx context.Context, log *slog.Logger, sel selector.Selection, path string, resp *Response, err error) (*Response, string, error) {
	if err == nil {
		return resp, path, nil
	}

	var callErr *toolcall.CallError
	var docsErr *docsError
	if errors.As(err, &callErr) || errors.As(err, &docsErr) || errors.Is(err, errToolsDisabled) {
		return nil, path, err
	}

	info := llmerror.Classify(err)
	if !info.IsLLMTransport {
		return nil, path, err
	}

	log.Warn("llm transport error",
		"reason", info.Reason,
		"status", info.Status,
		"rate_limited", info.IsRateLimit,
		"retry_after", info.RetryAfter,
		"error", err.Error())
	o.opts.Metrics.RecordLLMError(ctx, string(sel.Provider), string(info.Reason))

	return &Response{FinalText: llmerror.FriendlyMessage(info)}, PathLLMError, nil
}

// fallbackCall detects requests that need no model round trip. Explicit
// toolArgs (stamp, then verify) take precedence over the text heuristic.
func fallbackCall(userText string, toolArgs map[string]map[string]any) (string, map[string]any, bool) {
	if hasReq(toolArgs, catalog.StampData) {
		return catalog.StampData, map[string]any{}, true
	}
	if hasReq(toolArgs, catalog.VerifyData) {
		return catalog.VerifyData, map[string]any{}, true
	}
	if intent.HasStampIntent(userText) && !intent.HasVerifyIntent(userText) {
		if hash, ok := intent.ExtractContentHash(userText); ok {
			return catalog.StampData, map[string]any{"req": map[string]any{"file_hash": hash}}, true
		}
	}
	return "", nil, false
}

func hasReq(toolArgs map[string]map[string]any, name string) bool {
	req, ok := toolArgs[name]["req"].(map[string]any)
	return ok && req != nil
}

// attachIDs copies transaction and unique identifiers found in each result
// onto its step.
func attachIDs(steps []toolcall.Step) []toolcall.Step {
	for i := range steps {
		if tx, uid := toolcall.PluckIDs(steps[i].Result); tx != "" || uid != "" {
			steps[i].TxID = tx
			steps[i].UID = uid
		}
	}
	return steps
}

func sortedKeys(m map[string]map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
