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

// Package model defines the provider adapter contract.
//
// An adapter runs one bounded tool-calling conversation against a single
// LLM provider:
//
//	Awaiting-Model -> (no tool calls) -> Done
//	Awaiting-Model -> Tool-Calls-Requested -> Executing-Tools -> Awaiting-Model
//
// until the model stops asking for tools or the round budget is spent, in
// which case the result text is LoopLimitText.
package model

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kadirpekel/mcphost/pkg/catalog"
	"github.com/kadirpekel/mcphost/pkg/toolserver"
)

// LoopLimitText is returned when the model keeps requesting tools after the
// last permitted round.
const LoopLimitText = "Tool loop limit reached. Please try again or refine the request."

// placeholderText stands in for a conversation left empty by normalization.
const placeholderText = "Hello"

// Provider identifies an LLM backend.
type Provider string

const (
	ProviderAnthropic  Provider = "anthropic"
	ProviderOpenAI     Provider = "openai"
	ProviderOpenRouter Provider = "openrouter"
	ProviderGemini     Provider = "gemini"
	ProviderMock       Provider = "mock"
)

// Providers lists every supported provider.
func Providers() []Provider {
	return []Provider{ProviderAnthropic, ProviderOpenAI, ProviderOpenRouter, ProviderGemini, ProviderMock}
}

// ParseProvider maps a case-insensitive name onto a Provider.
func ParseProvider(name string) (Provider, bool) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Providers() {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// Role of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one chat entry supplied by the caller.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NormalizeMessages drops entries with unknown roles. An empty result is
// replaced by a single placeholder user message.
func NormalizeMessages(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		switch Role(strings.ToLower(string(m.Role))) {
		case RoleUser:
			out = append(out, Message{Role: RoleUser, Content: m.Content})
		case RoleAssistant:
			out = append(out, Message{Role: RoleAssistant, Content: m.Content})
		case RoleSystem:
			out = append(out, Message{Role: RoleSystem, Content: m.Content})
		}
	}
	if len(out) == 0 {
		out = append(out, Message{Role: RoleUser, Content: placeholderText})
	}
	return out
}

// LastUserText returns the content of the most recent user message.
func LastUserText(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

// ToolCallFunc executes one tool on behalf of the model.
type ToolCallFunc func(ctx context.Context, name string, args map[string]any) (*toolserver.CallResult, error)

// RunOptions configures one adapter run.
type RunOptions struct {
	// Model overrides the adapter's configured model.
	Model string

	Tools        []catalog.Item
	SystemPrompt string

	// MaxToolRounds bounds the number of model requests; values below one
	// still allow a single request.
	MaxToolRounds int

	CallTool ToolCallFunc

	// ResponseAsJSON asks providers that support it for a JSON object.
	ResponseAsJSON bool
}

// Step is one tool execution performed during a run.
type Step struct {
	Name   string                 `json:"name"`
	Args   map[string]any         `json:"args"`
	Result *toolserver.CallResult `json:"result"`
}

// Result is the outcome of a run.
type Result struct {
	Text  string
	Steps []Step
}

// Adapter runs the tool loop against one provider.
type Adapter interface {
	Provider() Provider
	Run(ctx context.Context, messages []Message, opts RunOptions) (Result, error)
}

// ResultJSON renders a tool result for the model.
func ResultJSON(res *toolserver.CallResult) string {
	if res == nil {
		return "null"
	}
	data, err := json.Marshal(res)
	if err != nil {
		return "null"
	}
	return string(data)
}

// ToolSchema returns the object schema declared for item.
func ToolSchema(item catalog.Item) map[string]any {
	return catalog.EnsureObjectSchema(item.InputSchema)
}
