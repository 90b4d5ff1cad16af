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

// Package anthropic implements the tool loop over the Anthropic Messages API.
package anthropic

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
	defaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	defaultModel     = "claude-3-5-sonnet-20240620"
	defaultMaxTokens = 4096
	defaultTimeout   = 120 * time.Second

	emptyToolResult = "(no output)"
)

// Config configures the Anthropic client.
type Config struct {
	APIKey     string
	Model      string
	MaxTokens  int
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// Client is a model.Adapter for Claude models.
type Client struct {
	httpClient *httpclient.Client
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
}

var _ model.Adapter = (*Client)(nil)

// New creates a new Anthropic client.
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
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
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
		httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders),
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, httpclient.WithMaxRetries(cfg.MaxRetries))
	}

	return &Client{
		httpClient: httpclient.New(opts...),
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      modelName,
		maxTokens:  maxTokens,
	}, nil
}

// Provider returns the provider type.
func (c *Client) Provider() model.Provider { return model.ProviderAnthropic }

// Model returns the configured model.
func (c *Client) Model() string { return c.model }

// Run executes the tool loop. Anthropic takes the system prompt out of band,
// so system-role chat messages are folded into it.
func (c *Client) Run(ctx context.Context, messages []model.Message, opts model.RunOptions) (model.Result, error) {
	system, turns := splitSystem(messages, opts.SystemPrompt)
	conv := &conversation{
		client:   c,
		model:    c.model,
		system:   system,
		tools:    toTools(opts.Tools),
		messages: turns,
	}
	if opts.Model != "" {
		conv.model = opts.Model
	}
	return model.RunLoop(ctx, model.ProviderAnthropic, conv, opts)
}

type conversation struct {
	client   *Client
	model    string
	system   string
	tools    []apiTool
	messages []apiMessage
}

func (cv *conversation) Send(ctx context.Context) (model.Reply, error) {
	resp, err := cv.client.create(ctx, &apiRequest{
		Model:     cv.model,
		MaxTokens: cv.client.maxTokens,
		System:    cv.system,
		Messages:  cv.messages,
		Tools:     cv.tools,
	})
	if err != nil {
		return model.Reply{}, err
	}

	reply := model.Reply{Native: resp.Content}
	var text []string
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			if block.Name == "" || block.ID == "" {
				continue
			}
			args, _ := block.Input.(map[string]any)
			if args == nil {
				args = map[string]any{}
			}
			reply.ToolCalls = append(reply.ToolCalls, model.ToolCall{ID: block.ID, Name: block.Name, Args: args})
		}
	}
	// The first text block is the answer.
	if len(text) > 0 {
		reply.Text = text[0]
	}
	return reply, nil
}

func (cv *conversation) Attach(reply model.Reply, results []model.ToolResult) {
	content, _ := reply.Native.([]apiContent)
	cv.messages = append(cv.messages, apiMessage{Role: "assistant", Content: content})

	blocks := make([]apiContent, 0, len(results))
	for _, r := range results {
		out := r.Result
		if out == "" {
			out = emptyToolResult
		}
		blocks = append(blocks, apiContent{
			Type:      "tool_result",
			ToolUseID: r.Call.ID,
			Content:   out,
		})
	}
	cv.messages = append(cv.messages, apiMessage{Role: "user", Content: blocks})
}

func (c *Client) create(ctx context.Context, apiReq *apiRequest) (*apiResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if resp != nil {
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, httpclient.NewAPIError(string(model.ProviderAnthropic), resp, httpclient.ParseAnthropicHeaders)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &apiResp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
}

func splitSystem(msgs []model.Message, systemPrompt string) (string, []apiMessage) {
	var system []string
	if systemPrompt != "" {
		system = append(system, systemPrompt)
	}

	turns := make([]apiMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == model.RoleSystem {
			if m.Content != "" {
				system = append(system, m.Content)
			}
			continue
		}
		turns = append(turns, apiMessage{
			Role:    string(m.Role),
			Content: []apiContent{{Type: "text", Text: m.Content}},
		})
	}
	return strings.Join(system, "\n\n"), turns
}

func toTools(items []catalog.Item) []apiTool {
	if len(items) == 0 {
		return nil
	}
	tools := make([]apiTool, len(items))
	for i, it := range items {
		tools[i] = apiTool{
			Name:        it.Name,
			Description: it.Description,
			InputSchema: model.ToolSchema(it),
		}
	}
	return tools
}

// API types

type apiRequest struct {
	Model     string       `json:"model"`
	Messages  []apiMessage `json:"messages"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system,omitempty"`
	Tools     []apiTool    `json:"tools,omitempty"`
}

type apiMessage struct {
	Role    string       `json:"role"`
	Content []apiContent `json:"content"`
}

type apiContent struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Input     any    `json:"input,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type apiTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type apiResponse struct {
	ID         string       `json:"id"`
	Role       string       `json:"role"`
	Content    []apiContent `json:"content"`
	StopReason string       `json:"stop_reason"`
}
