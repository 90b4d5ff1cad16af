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

package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/mcphost/pkg/toolserver"
)

type scriptedConversation struct {
	replies  []Reply
	sent     int
	attached [][]ToolResult
	err      error
}

func (c *scriptedConversation) Send(ctx context.Context) (Reply, error) {
	if c.err != nil {
		return Reply{}, c.err
	}
	if c.sent >= len(c.replies) {
		return c.replies[len(c.replies)-1], nil
	}
	r := c.replies[c.sent]
	c.sent++
	return r, nil
}

func (c *scriptedConversation) Attach(reply Reply, results []ToolResult) {
	c.attached = append(c.attached, results)
}

func okTool(calls *[]string) ToolCallFunc {
	return func(ctx context.Context, name string, args map[string]any) (*toolserver.CallResult, error) {
		*calls = append(*calls, name)
		return &toolserver.CallResult{StructuredContent: map[string]any{"summary": name}}, nil
	}
}

func TestRunLoop_FinalTextWithoutTools(t *testing.T) {
	conv := &scriptedConversation{replies: []Reply{{Text: "hi there"}}}

	res, err := RunLoop(context.Background(), ProviderMock, conv, RunOptions{MaxToolRounds: 3})
	require.NoError(t, err)
	assert.Equal(t, "hi there", res.Text)
	assert.Empty(t, res.Steps)
}

func TestRunLoop_ExecutesToolsThenAnswers(t *testing.T) {
	conv := &scriptedConversation{replies: []Reply{
		{ToolCalls: []ToolCall{
			{ID: "1", Name: "stamp_data", Args: map[string]any{"req": map[string]any{}}},
			{ID: "2", Name: "verify_data"},
		}},
		{Text: "done"},
	}}
	var calls []string

	res, err := RunLoop(context.Background(), ProviderMock, conv, RunOptions{MaxToolRounds: 3, CallTool: okTool(&calls)})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Text)
	assert.Equal(t, []string{"stamp_data", "verify_data"}, calls)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, map[string]any{}, res.Steps[1].Args)

	require.Len(t, conv.attached, 1)
	assert.Equal(t, "2", conv.attached[0][1].Call.ID)
	assert.Contains(t, conv.attached[0][0].Result, `"summary":"stamp_data"`)
}

func TestRunLoop_LoopLimit(t *testing.T) {
	conv := &scriptedConversation{replies: []Reply{
		{ToolCalls: []ToolCall{{ID: "a", Name: "health"}}},
	}}
	var calls []string

	res, err := RunLoop(context.Background(), ProviderMock, conv, RunOptions{MaxToolRounds: 3, CallTool: okTool(&calls)})
	require.NoError(t, err)
	assert.Equal(t, LoopLimitText, res.Text)
	assert.Len(t, res.Steps, 3)
	assert.Len(t, calls, 3)
}

func TestRunLoop_ZeroRoundsStillAsksOnce(t *testing.T) {
	conv := &scriptedConversation{replies: []Reply{{Text: "docs answer"}}}

	res, err := RunLoop(context.Background(), ProviderMock, conv, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "docs answer", res.Text)
	assert.Equal(t, 1, conv.sent)
}

func TestRunLoop_ErrorsPropagate(t *testing.T) {
	providerErr := errors.New("provider down")
	_, err := RunLoop(context.Background(), ProviderMock, &scriptedConversation{err: providerErr}, RunOptions{})
	assert.ErrorIs(t, err, providerErr)

	toolErr := errors.New("tool exploded")
	conv := &scriptedConversation{replies: []Reply{{ToolCalls: []ToolCall{{Name: "stamp_data"}}}}}
	_, err = RunLoop(context.Background(), ProviderMock, conv, RunOptions{
		MaxToolRounds: 3,
		CallTool: func(ctx context.Context, name string, args map[string]any) (*toolserver.CallResult, error) {
			return nil, toolErr
		},
	})
	assert.ErrorIs(t, err, toolErr)
	assert.Empty(t, conv.attached)
}

func TestNormalizeMessages(t *testing.T) {
	got := NormalizeMessages([]Message{
		{Role: "user", Content: "a"},
		{Role: "tool", Content: "dropped"},
		{Role: "Assistant", Content: "b"},
	})
	assert.Equal(t, []Message{{Role: RoleUser, Content: "a"}, {Role: RoleAssistant, Content: "b"}}, got)

	got = NormalizeMessages([]Message{{Role: "function", Content: "x"}})
	require.Len(t, got, 1)
	assert.Equal(t, RoleUser, got[0].Role)
	assert.NotEmpty(t, got[0].Content)
}

func TestParseProvider(t *testing.T) {
	p, ok := ParseProvider(" OpenRouter ")
	assert.True(t, ok)
	assert.Equal(t, ProviderOpenRouter, p)

	_, ok = ParseProvider("ollama")
	assert.False(t, ok)
}

func TestResultJSON(t *testing.T) {
	assert.Equal(t, "null", ResultJSON(nil))
	assert.Contains(t, ResultJSON(&toolserver.CallResult{IsError: true}), `"isError":true`)
}
