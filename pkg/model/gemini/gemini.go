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

// Package gemini implements the tool loop for Google Gemini models on top of
// the google.golang.org/genai SDK.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/kadirpekel/mcphost/pkg/catalog"
	"github.com/kadirpekel/mcphost/pkg/httpclient"
	"github.com/kadirpekel/mcphost/pkg/model"
)

const defaultModel = "gemini-2.0-flash"

// Config contains configuration for the Gemini model.
type Config struct {
	APIKey string
	Model  string

	// MaxTokens limits the response length.
	MaxTokens int

	// BaseURL and HTTPClient override the SDK transport.
	BaseURL    string
	HTTPClient *http.Client
}

// generator is the part of genai.Models the loop needs.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client is a model.Adapter for Gemini.
type Client struct {
	models    generator
	model     string
	maxTokens int
}

var _ model.Adapter = (*Client)(nil)

// New creates a new Gemini client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newWithGenerator(client.Models, cfg), nil
}

func newWithGenerator(g generator, cfg Config) *Client {
	name := cfg.Model
	if name == "" {
		name = defaultModel
	}
	return &Client{models: g, model: name, maxTokens: cfg.MaxTokens}
}

// Provider returns the provider type.
func (c *Client) Provider() model.Provider { return model.ProviderGemini }

// Model returns the configured model.
func (c *Client) Model() string { return c.model }

// Run executes the tool loop.
func (c *Client) Run(ctx context.Context, messages []model.Message, opts model.RunOptions) (model.Result, error) {
	system, contents := toContents(messages, opts.SystemPrompt)

	config := &genai.GenerateContentConfig{SystemInstruction: system}
	if c.maxTokens > 0 {
		config.MaxOutputTokens = int32(c.maxTokens)
	}
	if len(opts.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: toDeclarations(opts.Tools)}}
	} else if opts.ResponseAsJSON {
		// JSON mode and function calling cannot be combined.
		config.ResponseMIMEType = "application/json"
	}

	conv := &conversation{client: c, model: c.model, config: config, contents: contents}
	if opts.Model != "" {
		conv.model = opts.Model
	}
	return model.RunLoop(ctx, model.ProviderGemini, conv, opts)
}

type conversation struct {
	client   *Client
	model    string
	config   *genai.GenerateContentConfig
	contents []*genai.Content
}

func (cv *conversation) Send(ctx context.Context) (model.Reply, error) {
	resp, err := cv.client.models.GenerateContent(ctx, cv.model, cv.contents, cv.config)
	if err != nil {
		return model.Reply{}, wrapError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return model.Reply{}, nil
	}

	content := resp.Candidates[0].Content
	reply := model.Reply{Native: content}
	var text strings.Builder
	for i, part := range content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}
		if fc := part.FunctionCall; fc != nil && fc.Name != "" {
			id := fc.ID
			if id == "" {
				id = fmt.Sprintf("%s-%d", fc.Name, i)
			}
			args := fc.Args
			if args == nil {
				args = map[string]any{}
			}
			reply.ToolCalls = append(reply.ToolCalls, model.ToolCall{ID: id, Name: fc.Name, Args: args})
		}
	}
	reply.Text = text.String()
	return reply, nil
}

func (cv *conversation) Attach(reply model.Reply, results []model.ToolResult) {
	if content, ok := reply.Native.(*genai.Content); ok && content != nil {
		if content.Role == "" {
			content.Role = string(genai.RoleModel)
		}
		cv.contents = append(cv.contents, content)
	}

	parts := make([]*genai.Part, 0, len(results))
	for _, r := range results {
		parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
			ID:       r.Call.ID,
			Name:     r.Call.Name,
			Response: responseMap(r.Result),
		}})
	}
	cv.contents = append(cv.contents, &genai.Content{Role: string(genai.RoleUser), Parts: parts})
}

// responseMap wraps a JSON tool result the way Gemini expects function
// responses: an object under "output".
func responseMap(result string) map[string]any {
	var parsed any
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		parsed = result
	}
	return map[string]any{"output": parsed}
}

func toContents(msgs []model.Message, systemPrompt string) (*genai.Content, []*genai.Content) {
	var system []string
	if systemPrompt != "" {
		system = append(system, systemPrompt)
	}

	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			if m.Content != "" {
				system = append(system, m.Content)
			}
		case model.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	if len(system) == 0 {
		return nil, contents
	}
	return &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}, contents
}

func toDeclarations(items []catalog.Item) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(items))
	for _, it := range items {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        it.Name,
			Description: it.Description,
			Parameters:  toGenaiSchema(model.ToolSchema(it)),
		})
	}
	return decls
}

// toGenaiSchema converts a JSON schema to the SDK's OpenAPI subset. Local
// $ref pointers into the root $defs or definitions are inlined; keywords
// Gemini does not understand are dropped.
func toGenaiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	return convertSchema(schema, rootDefs(schema), map[string]bool{})
}

func rootDefs(schema map[string]any) map[string]map[string]any {
	defs := map[string]map[string]any{}
	for _, key := range []string{"definitions", "$defs"} {
		group, ok := schema[key].(map[string]any)
		if !ok {
			continue
		}
		for name, def := range group {
			if m, ok := def.(map[string]any); ok {
				defs["#/"+key+"/"+name] = m
			}
		}
	}
	return defs
}

// convertSchema walks schema; active holds the refs being expanded on the
// current path so recursive definitions stop at an untyped object.
func convertSchema(schema map[string]any, defs map[string]map[string]any, active map[string]bool) *genai.Schema {
	if ref, ok := schema["$ref"].(string); ok {
		target, found := defs[ref]
		if !found || active[ref] {
			s := &genai.Schema{Type: genai.TypeObject}
			if desc, ok := schema["description"].(string); ok {
				s.Description = desc
			}
			return s
		}
		active[ref] = true
		s := convertSchema(target, defs, active)
		delete(active, ref)
		if desc, ok := schema["description"].(string); ok && desc != "" {
			s.Description = desc
		}
		return s
	}

	s := &genai.Schema{}
	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		if s.Type == "" {
			s.Type = genai.TypeObject
		}
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				s.Properties[name] = convertSchema(propMap, defs, active)
			}
		}
	}
	switch required := schema["required"].(type) {
	case []any:
		for _, r := range required {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	case []string:
		s.Required = append(s.Required, required...)
	}
	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = convertSchema(items, defs, active)
	}
	if enum, ok := schema["enum"].([]any); ok {
		for _, e := range enum {
			if es, ok := e.(string); ok {
				s.Enum = append(s.Enum, es)
			}
		}
	}
	return s
}

// wrapError maps SDK errors onto httpclient.APIError so they classify like
// the other providers.
func wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fromSDK(apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return fromSDK(*apiErrPtr, err)
	}
	return fmt.Errorf("Gemini generation failed: %w", err)
}

func fromSDK(apiErr genai.APIError, err error) error {
	msg := apiErr.Message
	if apiErr.Status != "" {
		msg = apiErr.Status + ": " + msg
	}
	return &httpclient.APIError{
		Provider:   string(model.ProviderGemini),
		StatusCode: apiErr.Code,
		Message:    msg,
		Body:       err.Error(),
	}
}
