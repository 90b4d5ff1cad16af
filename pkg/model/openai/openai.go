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

// Package openai implements the tool loop over the Chat Completions API.
// The same client serves OpenRouter, which speaks the same protocol.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kadirpekel/mcphost/pkg/catalog"
	"github.com/kadirpekel/mcphost/pkg/httpclient"
	"github.com/kadirpekel/mcphost/pkg/model"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 120 * time.Second
)

// Config configures the client.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string

	// Provider names the backend in errors; defaults to openai.
	Provider model.Provider

	// Headers are added to every request.
	Headers map[string]string

	MaxTokens  int
	Timeout    time.Duration
	MaxRetries int

	// HTTPClient overrides the underlying transport, mostly for tests.
	HTTPClient *http.Client
}

// Client is a model.Adapter for OpenAI-compatible endpoints.
type Client struct {
	httpClient *httpclient.Client
	apiKey     string
	baseURL    string
	model      string
	provider   model.Provider
	headers    map[string]string
	maxTokens  int
}

var _ model.Adapter = (*Client)(nil)

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultModel
	}
	provider := cfg.Provider
	if provider == "" {
		provider = model.ProviderOpenAI
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	opts := []httpclient.Option{
		httpclient.WithHTTPClient(hc),
		httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, httpclient.WithMaxRetries(cfg.MaxRetries))
	}

	return &Client{
		httpClient: httpclient.New(opts...),
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      modelName,
		provider:   provider,
		headers:    cfg.Headers,
		maxTokens:  cfg.MaxTokens,
	}, nil
}

// Provider returns the backend this client talks to.
func (c *Client) Provider() model.Provider { return c.provider }

// Model returns the configured model.
func (c *Client) Model() string { return c.model }

// Run executes the tool loop.
func (c *Client) Run(ctx context.Context, messages []model.Message, opts model.RunOptions) (model.Result, error) {
	conv := &conversation{
		client:   c,
		model:    c.model,
		tools:    toTools(opts.Tools),
		json:     opts.ResponseAsJSON,
		messages: toMessages(messages, opts.SystemPrompt),
	}
	if opts.Model != "" {
		conv.model = opts.Model
	}
	return model.RunLoop(ctx, c.provider, conv, opts)
}

type conversation struct {
	client   *Client
	model    string
	tools    []apiTool
	json     bool
	messages []apiMessage
}

func (cv *conversation) Send(ctx context.Context) (model.Reply, error) {
	req := apiRequest{
		Model:    cv.model,
		Messages: cv.messages,
		Tools:    cv.tools,
	}
	if len(cv.tools) > 0 {
		req.ToolChoice = "auto"
	}
	if cv.json {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	if cv.client.maxTokens > 0 {
		req.MaxTokens = &cv.client.maxTokens
	}

	resp, err := cv.client.complete(ctx, req)
	if err != nil {
		return model.Reply{}, err
	}
	if len(resp.Choices) == 0 {
		return model.Reply{}, fmt.Errorf("%s returned no choices", cv.client.provider)
	}

	msg := resp.Choices[0].Message
	reply := model.Reply{Text: msg.Content, Native: msg}
	for _, tc := range msg.ToolCalls {
		if (tc.Type != "" && tc.Type != "function") || tc.Function.Name == "" {
			continue
		}
		reply.ToolCalls = append(reply.ToolCalls, model.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: parseArguments(tc.Function.Arguments),
		})
	}
	return reply, nil
}

func (cv *conversation) Attach(reply model.Reply, results []model.ToolResult) {
	msg, _ := reply.Native.(apiMessage)
	msg.Role = "assistant"
	cv.messages = append(cv.messages, msg)

	byID := make(map[string]string, len(results))
	for _, r := range results {
		byID[r.Call.ID] = r.Result
	}
	// Every tool_call id needs an answer, including the ones we skipped.
	for _, tc := range msg.ToolCalls {
		content, ok := byID[tc.ID]
		if !ok {
			content = `{"skipped":true}`
		}
		cv.messages = append(cv.messages, apiMessage{
			Role:       "tool",
			ToolCallID: tc.ID,
			Content:    content,
		})
	}
}

func (c *Client) complete(ctx context.Context, apiReq apiRequest) (*apiResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if resp != nil {
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, httpclient.NewAPIError(string(c.provider), resp, httpclient.ParseOpenAIHeaders)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", c.provider, err)
	}

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != nil && out.Error.Message != "" {
		return nil, &httpclient.APIError{
			Provider:   string(c.provider),
			StatusCode: resp.StatusCode,
			Message:    out.Error.Message,
		}
	}
	return &out, nil
}

func toMessages(msgs []model.Message, systemPrompt string) []apiMessage {
	out := make([]apiMessage, 0, len(msgs)+1)
	if systemPrompt != "" {
		out = append(out, apiMessage{Role: "system", Content: systemPrompt})
	}
	for _, m := range msgs {
		out = append(out, apiMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func toTools(items []catalog.Item) []apiTool {
	if len(items) == 0 {
		return nil
	}
	tools := make([]apiTool, len(items))
	for i, it := range items {
		tools[i] = apiTool{
			Type: "function",
			Function: apiFunction{
				Name:        it.Name,
				Description: it.Description,
				Parameters:  model.ToolSchema(it),
			},
		}
	}
	return tools
}

// parseArguments decodes the model's argument string. Malformed JSON yields
// an empty object.
func parseArguments(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}
