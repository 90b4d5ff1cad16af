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

package toolcall

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/mcphost/pkg/toolserver"
	"github.com/kadirpekel/mcphost/pkg/toolserver/toolservertest"
)

func TestMergeArgs(t *testing.T) {
	defaults := map[string]any{
		"req": map[string]any{
			"file_hash": "default-hash",
			"note":      "from defaults",
		},
		"mode": "fast",
	}
	model := map[string]any{
		"req": map[string]any{
			"file_hash": "model-hash",
			"label":     "from model",
		},
		"mode": "slow",
	}

	got := MergeArgs(defaults, model)
	assert.Equal(t, map[string]any{
		"req": map[string]any{
			"file_hash": "model-hash",
			"note":      "from defaults",
			"label":     "from model",
		},
		"mode": "slow",
	}, got)

	// Inputs are untouched.
	assert.Equal(t, "default-hash", defaults["req"].(map[string]any)["file_hash"])
	assert.NotContains(t, model["req"], "note")
}

func TestMergeArgs_ObjectReplacesScalar(t *testing.T) {
	got := MergeArgs(map[string]any{"req": "oops"}, map[string]any{"req": map[string]any{"a": 1}})
	assert.Equal(t, map[string]any{"req": map[string]any{"a": 1}}, got)

	got = MergeArgs(nil, nil)
	assert.Equal(t, map[string]any{}, got)
}

func TestPrepareArgs(t *testing.T) {
	tests := []struct {
		name   string
		tool   string
		in     map[string]any
		apiKey string
		want   map[string]any
	}{
		{
			name: "creates_req",
			tool: "health",
			in:   map[string]any{},
			want: map[string]any{"req": map[string]any{}},
		},
		{
			name: "file_url_drops_file_path",
			tool: "stamp_data",
			in:   map[string]any{"req": map[string]any{"file_url": "https://x/y", "file_path": "/tmp/guess"}},
			want: map[string]any{"req": map[string]any{"file_url": "https://x/y"}},
		},
		{
			name:   "injects_key_for_primary",
			tool:   "stamp_data",
			in:     map[string]any{"req": map[string]any{"file_hash": "ab"}},
			apiKey: "k-1",
			want:   map[string]any{"req": map[string]any{"file_hash": "ab", "api_key": "k-1"}},
		},
		{
			name:   "keeps_existing_key",
			tool:   "verify_data",
			in:     map[string]any{"req": map[string]any{"api_key": "mine"}},
			apiKey: "k-1",
			want:   map[string]any{"req": map[string]any{"api_key": "mine"}},
		},
		{
			name:   "no_key_for_diagnostics",
			tool:   "health",
			in:     map[string]any{"req": map[string]any{}},
			apiKey: "k-1",
			want:   map[string]any{"req": map[string]any{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PrepareArgs(tt.tool, tt.in, tt.apiKey))
		})
	}
}

func TestRedact(t *testing.T) {
	args := map[string]any{
		"req": map[string]any{
			"api_key":   "sk-secret",
			"file_url":  "https://files/secret.pdf",
			"file_hash": "ab",
		},
		"batch": []any{map[string]any{"api_key": "sk-2"}},
	}

	got := Redact(args)
	req := got["req"].(map[string]any)
	assert.Equal(t, "<redacted>", req["api_key"])
	assert.Equal(t, "<provided>", req["file_url"])
	assert.Equal(t, "ab", req["file_hash"])
	assert.Equal(t, "<redacted>", got["batch"].([]any)[0].(map[string]any)["api_key"])

	assert.Equal(t, "sk-secret", args["req"].(map[string]any)["api_key"])
}

func TestCaller_MergesInjectsAndTraces(t *testing.T) {
	fake := &toolservertest.Fake{
		CallFunc: func(ctx context.Context, name string, args map[string]any) (*toolserver.CallResult, error) {
			return toolservertest.Structured(map[string]any{
				"summary": "stamped",
				"uid":     "u-9",
				"tx_id":   "0xfeed",
			}), nil
		},
	}

	caller := NewCaller(fake, Options{
		DefaultArgs: map[string]map[string]any{
			"stamp_data": {"req": map[string]any{"file_url": "https://cdn/f.bin", "file_path": "/x"}},
		},
		APIKey: "sk-live",
	})

	res, err := caller.Call(context.Background(), "stamp_data", map[string]any{
		"req": map[string]any{"file_path": "/model/guess"},
	})
	require.NoError(t, err)
	assert.Equal(t, "stamped", res.StructuredContent["summary"])

	calls := fake.Calls()
	require.Len(t, calls, 1)
	req := calls[0].Args["req"].(map[string]any)
	assert.Equal(t, "https://cdn/f.bin", req["file_url"])
	assert.NotContains(t, req, "file_path")
	assert.Equal(t, "sk-live", req["api_key"])
	assert.Equal(t, DefaultTimeout, calls[0].Options.Timeout)
	assert.True(t, calls[0].Options.ResetTimeoutOnProgress)

	steps := caller.Steps()
	require.Len(t, steps, 1)
	step := steps[0]
	assert.True(t, step.OK)
	assert.Equal(t, "stamped", step.Summary)
	assert.Equal(t, "<redacted>", step.Args["req"].(map[string]any)["api_key"])
	assert.Equal(t, "<provided>", step.Args["req"].(map[string]any)["file_url"])
	assert.NotContains(t, step.RawSample, "sk-live")
}

func TestCaller_TimeoutResolves(t *testing.T) {
	timeoutErrs := []error{
		&toolserver.TimeoutError{Tool: "stamp_data", After: DefaultTimeout},
		fmt.Errorf("MCP call stamp_data failed: %w", errors.New("Request timed out")),
		errors.New("MCP error: Request timed out"),
	}

	for _, timeoutErr := range timeoutErrs {
		t.Run(timeoutErr.Error(), func(t *testing.T) {
			fake := &toolservertest.Fake{
				CallFunc: func(ctx context.Context, name string, args map[string]any) (*toolserver.CallResult, error) {
					return nil, timeoutErr
				},
			}
			caller := NewCaller(fake, Options{})

			res, err := caller.Call(context.Background(), "stamp_data", nil)
			require.NoError(t, err)
			require.NotNil(t, res)
			assert.True(t, res.IsError)
			assert.Contains(t, res.StructuredContent["summary"], "120s")
			assert.Equal(t, `The "stamp_data" tool timed out after 120s.`, res.Content[0].Text)

			steps := caller.Steps()
			require.Len(t, steps, 1)
			assert.False(t, steps[0].OK)
			assert.Equal(t, timeoutErr.Error(), steps[0].Error)
		})
	}
}

func TestCaller_OtherFailurePropagates(t *testing.T) {
	boom := errors.New("connection closed")
	fake := &toolservertest.Fake{
		CallFunc: func(ctx context.Context, name string, args map[string]any) (*toolserver.CallResult, error) {
			return nil, boom
		},
	}
	caller := NewCaller(fake, Options{Timeout: time.Second})

	_, err := caller.Call(context.Background(), "verify_data", map[string]any{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var callErr *CallError
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, "verify_data", callErr.Tool)

	steps := caller.Steps()
	require.Len(t, steps, 1)
	assert.False(t, steps[0].OK)
	assert.Equal(t, "connection closed", steps[0].Error)
}

func TestCaller_EachInvocationTraced(t *testing.T) {
	caller := NewCaller(&toolservertest.Fake{}, Options{})
	for i := 0; i < 3; i++ {
		_, err := caller.Call(context.Background(), "verify_data", nil)
		require.NoError(t, err)
	}
	assert.Len(t, caller.Steps(), 3)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, "abc", Clamp("abc", 5))
	assert.Equal(t, "ab…", Clamp("abcdef", 2))
	assert.Equal(t, 601, len([]rune(Clamp(strings.Repeat("x", 700), 600))))
}
