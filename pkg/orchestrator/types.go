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
	"github.com/kadirpekel/mcphost/pkg/model"
	"github.com/kadirpekel/mcphost/pkg/model/selector"
	"github.com/kadirpekel/mcphost/pkg/toolcall"
)

// Request is one chat turn.
type Request struct {
	Messages []model.Message `json:"messages"`

	// ToolArgs are caller defaults keyed by tool name; model arguments win
	// over them on conflicts.
	ToolArgs map[string]map[string]any `json:"toolArgs,omitempty"`

	LLM    selector.Choice `json:"llm"`
	APIKey string          `json:"apiKey,omitempty"`
	UserID string          `json:"userId,omitempty"`

	// RequestID is assigned by the transport.
	RequestID string `json:"-"`
}

// Response is the reply to a chat turn.
type Response struct {
	RequestID string          `json:"requestId"`
	UserID    string          `json:"userId"`
	FinalText string          `json:"finalText"`
	Links     []string        `json:"links,omitempty"`
	Sources   []string        `json:"sources,omitempty"`
	ToolSteps []toolcall.Step `json:"tool_steps"`
}

// ValidationError rejects a malformed request.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }
