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

package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/mcphost/pkg/catalog"
	"github.com/kadirpekel/mcphost/pkg/httpclient"
	"github.com/kadirpekel/mcphost/pkg/model"
	"github.com/kadirpekel/mcphost/pkg/model/selector"
	"github.com/kadirpekel/mcphost/pkg/toolcall"
	"github.com/kadirpekel/mcphost/pkg/toolserver"
	"github.com/kadirpekel/mcphost/pkg/toolserver/toolservertest"
)

const testHash = "ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789"

// scriptedAdapter answers with a fixed result or error and counts runs.
type scriptedAdapter struct {
	provider model.Provider
	run      func(ctx context.Context, messages []model.Message, opts model.RunOptions) (model.Result, error)

	calls    int
	messages []model.Message
	opts     model.RunOptions
}

func (a *scriptedAdapter) Provider() model.Provider { return a.provider }

func (a *scriptedAdapter) Run(ctx context.Context, messages []model.Message, opts model.RunOptions) (model.Result, error) {
	a.calls++
	a.messages = messages
	a.opts = opts
	return a.run(ctx, messages, opts)
}

// recorder captures metrics calls.
type recorder struct {
	paths     []string
	llmErrors []string
	tools     []string
}

func (r *recorder) RecordTurn(_ context.Context, path string, _ time.Duration, _ error) {
	r.paths = append(r.paths, path)
}

func (r *recorder) RecordToolCall(_ context.Context, tool string, _ time.Duration, _ bool) {
	r.tools = append(r.tools, tool)
}

func (r *recorder) RecordLLMError(_ context.Context, provider, reason string) {
	r.llmErrors = append(r.llmErrors, provider+":"+reason)
}

func testTools() []toolserver.Tool {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"req": map[string]any{"type": "object"}},
	}
	return []toolserver.Tool{
		{Name: catalog.StampData, Description: "Stamp data on chain", InputSchema: schema},
		{Name: catalog.VerifyData, Description: "Verify a proof", InputSchema: schema},
		{Name: catalog.Health, Description: "Health probe"},
	}
}

func newFake() *toolservertest.Fake {
	return &toolservertest.Fake{
		Tools: testTools(),
		CallFunc: func(_ context.Context, name string, _ map[string]any) (*toolserver.CallResult, error) {
			switch name {
			case catalog.StampData:
				return toolservertest.Structured(map[string]any{
					"summary":          "Stamped",
					"uid":              "0xUID",
					"tx_id":            "0xTX",
					"verification_url": "https://verify.example/0xUID",
				}), nil
			case catalog.VerifyData:
				return toolservertest.Structured(map[string]any{
					"summary":    "Proof verified",
					"report_url": "https://report.example/1",
				}), nil
			}
			return toolservertest.Structured(map[string]any{"ok": true}), nil
		},
	}
}

func newOrchestrator(t *testing.T, fake *toolservertest.Fake, rec *recorder, opts ...selector.Option) *Orchestrator {
	t.Helper()
	sel := selector.New(selector.Settings{
		DefaultProvider: model.ProviderMock,
		Anthropic:       selector.Credentials{APIKey: "sk-ant"},
		OpenAI:          selector.Credentials{APIKey: "sk-openai"},
	}, opts...)

	o, err := New(Options{Tools: fake, Selector: sel, Metrics: rec})
	require.NoError(t, err)
	return o
}

func userTurn(text string) []model.Message {
	return []model.Message{{Role: model.RoleUser, Content: text}}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Tools: newFake()})
	assert.Error(t, err)
}

func TestHandleChatTurn_RejectsEmptyMessages(t *testing.T) {
	o := newOrchestrator(t, newFake(), &recorder{})

	_, err := o.HandleChatTurn(context.Background(), Request{})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "messages[] required", verr.Msg)
}

func TestHandleChatTurn_StampHashFallback(t *testing.T) {
	fake := newFake()
	rec := &recorder{}
	o := newOrchestrator(t, fake, rec)

	resp, err := o.HandleChatTurn(context.Background(), Request{
		Messages:  userTurn("stamp this hash: " + testHash),
		RequestID: "req-1",
		UserID:    "u-1",
	})
	require.NoError(t, err)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, catalog.StampData, calls[0].Name)
	req := calls[0].Args["req"].(map[string]any)
	assert.Equal(t, strings.ToLower(testHash), req["file_hash"])

	require.Len(t, resp.ToolSteps, 1)
	step := resp.ToolSteps[0]
	assert.True(t, step.OK)
	assert.Equal(t, "0xTX", step.TxID)
	assert.Equal(t, "0xUID", step.UID)

	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, "u-1", resp.UserID)
	assert.Contains(t, resp.FinalText, "Minima")
	assert.Equal(t, []string{"https://verify.example/0xUID"}, resp.Links)
	assert.Equal(t, []string{PathFallback}, rec.paths)
}

func TestHandleChatTurn_VerifyArgsFallbackSkipsModel(t *testing.T) {
	fake := newFake()
	adapter := &scriptedAdapter{
		provider: model.ProviderMock,
		run: func(context.Context, []model.Message, model.RunOptions) (model.Result, error) {
			return model.Result{Text: "should not run"}, nil
		},
	}
	o := newOrchestrator(t, fake, &recorder{}, selector.WithFactory(model.ProviderMock,
		func(context.Context, selector.Selection) (model.Adapter, error) { return adapter, nil }))

	resp, err := o.HandleChatTurn(context.Background(), Request{
		Messages: userTurn("please check my file"),
		ToolArgs: map[string]map[string]any{
			catalog.VerifyData: {"req": map[string]any{"proof": []any{"p"}}},
		},
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolSteps, 1)
	assert.Equal(t, catalog.VerifyData, resp.ToolSteps[0].Name)
	assert.Equal(t, 0, adapter.calls)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	req := calls[0].Args["req"].(map[string]any)
	assert.Equal(t, []any{"p"}, req["proof"])
	assert.Equal(t, []string{"https://report.example/1"}, resp.Links)
}

func TestHandleChatTurn_VerifyArgsBeatStampWording(t *testing.T) {
	fake := newFake()
	o := newOrchestrator(t, fake, &recorder{})

	resp, err := o.HandleChatTurn(context.Background(), Request{
		Messages: userTurn("stamp this hash " + testHash),
		ToolArgs: map[string]map[string]any{
			catalog.VerifyData: {"req": map[string]any{"proof": []any{"p"}}},
		},
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolSteps, 1)
	assert.Equal(t, catalog.VerifyData, resp.ToolSteps[0].Name)
	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, catalog.VerifyData, calls[0].Name)
}

func TestHandleChatTurn_StampArgsFallbackInjectsKey(t *testing.T) {
	fake := newFake()
	o := newOrchestrator(t, fake, &recorder{})

	resp, err := o.HandleChatTurn(context.Background(), Request{
		Messages: userTurn("go ahead"),
		APIKey:   "user-key",
		ToolArgs: map[string]map[string]any{
			catalog.StampData: {"req": map[string]any{"file_url": "https://files.example/a.pdf"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolSteps, 1)

	req := fake.Calls()[0].Args["req"].(map[string]any)
	assert.Equal(t, "user-key", req["api_key"])
	assert.Equal(t, "https://files.example/a.pdf", req["file_url"])

	traced := resp.ToolSteps[0].Args["req"].(map[string]any)
	assert.Equal(t, "<redacted>", traced["api_key"])
	assert.Equal(t, "<provided>", traced["file_url"])
}

func TestHandleChatTurn_VerifyWordingDoesNotStamp(t *testing.T) {
	fake := newFake()
	o := newOrchestrator(t, fake, &recorder{})

	resp, err := o.HandleChatTurn(context.Background(), Request{
		Messages: userTurn("verify hash " + testHash),
	})
	require.NoError(t, err)
	assert.Empty(t, fake.Calls())
	assert.Empty(t, resp.ToolSteps)
}

func TestHandleChatTurn_DocsPathNeverCallsTools(t *testing.T) {
	fake := newFake()
	fake.Resources = []toolserver.Resource{
		{URI: "integritas://docs/overview", Name: "overview"},
		{URI: "integritas://docs/tools", Name: "tools"},
	}
	fake.Contents = map[string][]toolserver.ResourceContent{
		"integritas://docs/overview": toolservertest.Text("integritas://docs/overview", "Integritas stamps data."),
		"integritas://docs/tools":    toolservertest.Text("integritas://docs/tools", "stamp_data and verify_data."),
	}

	adapter := &scriptedAdapter{
		provider: model.ProviderMock,
		run: func(ctx context.Context, _ []model.Message, opts model.RunOptions) (model.Result, error) {
			_, err := opts.CallTool(ctx, catalog.StampData, nil)
			if err == nil {
				return model.Result{}, errors.New("tool call unexpectedly allowed")
			}
			return model.Result{Text: "I can stamp and verify data."}, nil
		},
	}
	o := newOrchestrator(t, fake, &recorder{}, selector.WithFactory(model.ProviderMock,
		func(context.Context, selector.Selection) (model.Adapter, error) { return adapter, nil }))

	resp, err := o.HandleChatTurn(context.Background(), Request{
		Messages: userTurn("what can you do"),
	})
	require.NoError(t, err)

	assert.Empty(t, fake.Calls())
	assert.Empty(t, resp.ToolSteps)
	assert.NotNil(t, resp.ToolSteps)
	assert.Equal(t, "I can stamp and verify data.", resp.FinalText)
	assert.NotEmpty(t, resp.Sources)
	assert.ElementsMatch(t, resp.Sources, fake.Reads())

	assert.Equal(t, 0, adapter.opts.MaxToolRounds)
	assert.Empty(t, adapter.opts.Tools)
	require.Len(t, adapter.messages, 3)
	assert.Equal(t, model.RoleSystem, adapter.messages[0].Role)
	assert.Contains(t, adapter.messages[1].Content, "Integritas stamps data.")
	assert.Equal(t, "what can you do", adapter.messages[2].Content)
}

func TestHandleChatTurn_DisallowedModelRejectedBeforeWork(t *testing.T) {
	fake := newFake()
	o := newOrchestrator(t, fake, &recorder{})

	_, err := o.HandleChatTurn(context.Background(), Request{
		Messages: userTurn("stamp this hash: " + testHash),
		LLM:      selector.Choice{Provider: "openai", Model: "gpt-nonexistent"},
	})

	var cerr *selector.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Msg, "Model not allowed for openai")
	assert.Empty(t, fake.Calls())
}

func TestHandleChatTurn_ModelPathScopesAndFinalizes(t *testing.T) {
	fake := newFake()
	rec := &recorder{}
	adapter := &scriptedAdapter{
		provider: model.ProviderAnthropic,
		run: func(ctx context.Context, _ []model.Message, opts model.RunOptions) (model.Result, error) {
			res, err := opts.CallTool(ctx, catalog.StampData, map[string]any{"req": map[string]any{"file_path": "/guess"}})
			if err != nil {
				return model.Result{}, err
			}
			return model.Result{
				Text:  `{"user_message":"Stamped your file on Minima.","action":"stamp_data"}`,
				Steps: []model.Step{{Name: catalog.StampData, Result: res}},
			}, nil
		},
	}
	o := newOrchestrator(t, fake, rec, selector.WithFactory(model.ProviderAnthropic,
		func(context.Context, selector.Selection) (model.Adapter, error) { return adapter, nil }))

	resp, err := o.HandleChatTurn(context.Background(), Request{
		Messages: userTurn("please stamp my file"),
		LLM:      selector.Choice{Provider: "anthropic"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, adapter.calls)
	assert.Equal(t, MaxToolRounds, adapter.opts.MaxToolRounds)
	assert.True(t, adapter.opts.ResponseAsJSON)
	require.Len(t, adapter.opts.Tools, 1)
	assert.Equal(t, catalog.StampData, adapter.opts.Tools[0].Name)
	assert.Contains(t, adapter.opts.SystemPrompt, "Be precise, neutral, and terse.")
	assert.Contains(t, adapter.opts.SystemPrompt, "Normalize hashes to lowercase hex.")
	assert.NotContains(t, adapter.opts.SystemPrompt, "Health probe")

	assert.Equal(t, "Stamped your file on Minima.", resp.FinalText)
	require.Len(t, resp.ToolSteps, 1)
	assert.Equal(t, "0xUID", resp.ToolSteps[0].UID)
	assert.Equal(t, []string{"https://verify.example/0xUID"}, resp.Links)
	assert.Equal(t, []string{PathModel}, rec.paths)
}

func TestHandleChatTurn_ToolArgsForceScope(t *testing.T) {
	fake := newFake()
	adapter := &scriptedAdapter{
		provider: model.ProviderMock,
		run: func(context.Context, []model.Message, model.RunOptions) (model.Result, error) {
			return model.Result{Text: "nothing to do"}, nil
		},
	}
	o := newOrchestrator(t, fake, &recorder{}, selector.WithFactory(model.ProviderMock,
		func(context.Context, selector.Selection) (model.Adapter, error) { return adapter, nil }))

	_, err := o.HandleChatTurn(context.Background(), Request{
		Messages: userTurn("good morning"),
		ToolArgs: map[string]map[string]any{
			catalog.Health:     {"verbose": true},
			catalog.VerifyData: {"note": "no req here"},
		},
	})
	require.NoError(t, err)

	require.Len(t, adapter.opts.Tools, 1)
	assert.Equal(t, catalog.VerifyData, adapter.opts.Tools[0].Name)
}

func TestHandleChatTurn_MockToolDirective(t *testing.T) {
	fake := newFake()
	o := newOrchestrator(t, fake, &recorder{})

	resp, err := o.HandleChatTurn(context.Background(), Request{
		Messages: userTurn(`TOOL verify_data {"req":{"proof":[]}}`),
	})
	require.NoError(t, err)

	require.Len(t, fake.Calls(), 1)
	assert.Equal(t, catalog.VerifyData, fake.Calls()[0].Name)
	require.Len(t, resp.ToolSteps, 1)
	assert.NotEmpty(t, resp.FinalText)
}

func TestHandleChatTurn_LLMRateLimitIsFriendly(t *testing.T) {
	rec := &recorder{}
	adapter := &scriptedAdapter{
		provider: model.ProviderOpenAI,
		run: func(context.Context, []model.Message, model.RunOptions) (model.Result, error) {
			return model.Result{}, &httpclient.APIError{
				Provider:   "openai",
				StatusCode: 429,
				Message:    "Rate limit reached",
				RetryAfter: 3 * time.Second,
			}
		},
	}
	o := newOrchestrator(t, newFake(), rec, selector.WithFactory(model.ProviderOpenAI,
		func(context.Context, selector.Selection) (model.Adapter, error) { return adapter, nil }))

	resp, err := o.HandleChatTurn(context.Background(), Request{
		Messages: userTurn("hello there"),
		LLM:      selector.Choice{Provider: "openai"},
	})
	require.NoError(t, err)

	assert.Contains(t, resp.FinalText, "too many requests")
	assert.Contains(t, resp.FinalText, "3 seconds")
	assert.NotContains(t, resp.FinalText, "Rate limit reached")
	assert.Empty(t, resp.ToolSteps)
	assert.NotNil(t, resp.ToolSteps)
	assert.Equal(t, []string{"openai:rate_limit"}, rec.llmErrors)
	assert.Equal(t, []string{PathLLMError}, rec.paths)
}

func TestHandleChatTurn_ToolFailurePropagates(t *testing.T) {
	fake := newFake()
	fake.CallFunc = func(context.Context, string, map[string]any) (*toolserver.CallResult, error) {
		return nil, errors.New("anthropic said no")
	}
	o := newOrchestrator(t, fake, &recorder{})

	_, err := o.HandleChatTurn(context.Background(), Request{
		Messages: userTurn(`TOOL stamp_data {}`),
	})

	var callErr *toolcall.CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, catalog.StampData, callErr.Tool)
}

func TestHandleChatTurn_CatalogFailurePropagates(t *testing.T) {
	fake := newFake()
	fake.ListErr = errors.New("connection closed")
	o := newOrchestrator(t, fake, &recorder{})

	_, err := o.HandleChatTurn(context.Background(), Request{Messages: userTurn("hi")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection closed")
}
