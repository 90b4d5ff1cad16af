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

// Package mock provides a deterministic adapter for tests and local runs.
//
// A last user message of the form
//
//	TOOL <name> <json-args>
//
// calls that tool once and answers "ok". Anything else is answered without
// tools.
package mock

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"

	"github.com/kadirpekel/mcphost/pkg/model"
)

const (
	// ToolText is returned after a directed tool call.
	ToolText = "ok"

	// NoToolText is returned when no tool was requested.
	NoToolText = "mock response (no tool invoked)"
)

var (
	toolDirective = regexp.MustCompile(`(?is)^TOOL\s+(\w+)\s+(.*)$`)
	errNoCallback = errors.New("mock: tool callback is required")
)

// Adapter is the mock model.Adapter.
type Adapter struct{}

var _ model.Adapter = Adapter{}

// New returns the mock adapter.
func New() Adapter { return Adapter{} }

// Provider returns model.ProviderMock.
func (Adapter) Provider() model.Provider { return model.ProviderMock }

// Run answers from the last user message.
func (Adapter) Run(ctx context.Context, messages []model.Message, opts model.RunOptions) (model.Result, error) {
	m := toolDirective.FindStringSubmatch(model.LastUserText(messages))
	if m == nil {
		return model.Result{Text: NoToolText}, nil
	}

	name := m[1]
	args := map[string]any{}
	if err := json.Unmarshal([]byte(m[2]), &args); err != nil || args == nil {
		args = map[string]any{}
	}

	if opts.CallTool == nil {
		return model.Result{}, errNoCallback
	}
	res, err := opts.CallTool(ctx, name, args)
	if err != nil {
		return model.Result{}, err
	}
	return model.Result{
		Text:  ToolText,
		Steps: []model.Step{{Name: name, Args: args, Result: res}},
	}, nil
}
