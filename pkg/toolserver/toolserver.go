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

// Package toolserver is the host's narrow view of the MCP tool server: tool
// listing, resource listing and reading, and tool calls.
package toolserver

import (
	"context"
	"fmt"
	"time"
)

// Tool is one entry of the server's live tool list.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Resource describes a readable document.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mimeType,omitempty"`
}

// ResourceContent is one part of a read resource. HasText is false for
// binary parts.
type ResourceContent struct {
	URI      string
	MIMEType string
	Text     string
	HasText  bool
}

// ContentBlock is one content item of a tool result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	JSON any    `json:"json,omitempty"`
}

// CallResult is the result of tools/call.
type CallResult struct {
	Content           []ContentBlock `json:"content"`
	StructuredContent map[string]any `json:"structuredContent,omitempty"`
	IsError           bool           `json:"isError,omitempty"`
}

// CallOptions bound a single call. When ResetTimeoutOnProgress is set, a
// progress notification for the call restarts the Timeout clock.
type CallOptions struct {
	Timeout                time.Duration
	ResetTimeoutOnProgress bool
}

// Client is implemented by Session and by test fakes.
type Client interface {
	ListTools(ctx context.Context) ([]Tool, error)
	ListResources(ctx context.Context) ([]Resource, error)
	ReadResource(ctx context.Context, uri string) ([]ResourceContent, error)
	CallTool(ctx context.Context, name string, args map[string]any, opts CallOptions) (*CallResult, error)
}

// CodeRequestTimeout is the JSON-RPC error code for an expired request.
const CodeRequestTimeout = -32001

// TimeoutError is returned when a call exceeds its timeout.
type TimeoutError struct {
	Tool  string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("MCP error %d: request timed out (%s after %s)", CodeRequestTimeout, e.Tool, e.After)
}

// Code reports the JSON-RPC code.
func (e *TimeoutError) Code() int { return CodeRequestTimeout }
