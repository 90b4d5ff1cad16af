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

// Package toolservertest provides an in-memory toolserver.Client.
package toolservertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/kadirpekel/mcphost/pkg/toolserver"
)

// Call records one CallTool invocation.
type Call struct {
	Name    string
	Args    map[string]any
	Options toolserver.CallOptions
}

// Fake serves fixed tools and resources. CallFunc, when set, answers tool
// calls; otherwise every call succeeds with an empty result.
type Fake struct {
	Tools     []toolserver.Tool
	Resources []toolserver.Resource
	Contents  map[string][]toolserver.ResourceContent
	CallFunc  func(ctx context.Context, name string, args map[string]any) (*toolserver.CallResult, error)

	ListErr error

	mu          sync.Mutex
	calls       []Call
	reads       []string
	listedTools int
	listedRes   int
}

var _ toolserver.Client = (*Fake)(nil)

func (f *Fake) ListTools(ctx context.Context) ([]toolserver.Tool, error) {
	f.mu.Lock()
	f.listedTools++
	f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return f.Tools, nil
}

func (f *Fake) ListResources(ctx context.Context) ([]toolserver.Resource, error) {
	f.mu.Lock()
	f.listedRes++
	f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return f.Resources, nil
}

func (f *Fake) ReadResource(ctx context.Context, uri string) ([]toolserver.ResourceContent, error) {
	f.mu.Lock()
	f.reads = append(f.reads, uri)
	f.mu.Unlock()

	contents, ok := f.Contents[uri]
	if !ok {
		return nil, fmt.Errorf("resource not found: %s", uri)
	}
	return contents, nil
}

func (f *Fake) CallTool(ctx context.Context, name string, args map[string]any, opts toolserver.CallOptions) (*toolserver.CallResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Name: name, Args: args, Options: opts})
	f.mu.Unlock()

	if f.CallFunc != nil {
		return f.CallFunc(ctx, name, args)
	}
	return &toolserver.CallResult{}, nil
}

// Calls returns the recorded tool calls in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Reads returns the URIs read so far.
func (f *Fake) Reads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reads...)
}

// ResourceListings reports how often ListResources was called.
func (f *Fake) ResourceListings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listedRes
}

// Text returns a resource content slice holding one text part.
func Text(uri, text string) []toolserver.ResourceContent {
	return []toolserver.ResourceContent{{URI: uri, MIMEType: "text/markdown", Text: text, HasText: true}}
}

// Structured builds a tool result with a JSON text block mirroring sc.
func Structured(sc map[string]any) *toolserver.CallResult {
	return &toolserver.CallResult{
		Content:           []toolserver.ContentBlock{{Type: "text", Text: mustJSON(sc)}},
		StructuredContent: sc,
	}
}
