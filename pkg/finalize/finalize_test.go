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

package finalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/mcphost/pkg/toolcall"
	"github.com/kadirpekel/mcphost/pkg/toolserver"
)

func step(name string, sc map[string]any) toolcall.Step {
	return toolcall.Step{Name: name, OK: true, Result: &toolserver.CallResult{StructuredContent: sc}}
}

func TestFinalize(t *testing.T) {
	stamp := step("stamp_data", map[string]any{"uid": "u-1", "tx_id": "0xabc", "stamped_at": "2025-01-01T00:00:00Z"})
	health := step("health", map[string]any{"summary": "healthy"})

	tests := []struct {
		name  string
		text  string
		steps []toolcall.Step
		want  string
	}{
		{
			name:  "json_user_message_wins",
			text:  `{"status":"success","action":"stamp_data","user_message":"Your hash is stamped."}`,
			steps: []toolcall.Step{stamp},
			want:  "Your hash is stamped.",
		},
		{
			name:  "json_without_message_uses_stamp_template",
			text:  `{"status":"success"}`,
			steps: []toolcall.Step{stamp, health},
			want:  "Hash stamped on Minima. uid=u-1, tx_id=0xabc, stamped_at=2025-01-01T00:00:00Z.",
		},
		{
			name:  "json_message_about_diagnostics_is_rebuilt",
			text:  `{"user_message":"Server health is OK and ready."}`,
			steps: []toolcall.Step{health, stamp},
			want:  "Hash stamped on Minima. uid=u-1, tx_id=0xabc, stamped_at=2025-01-01T00:00:00Z.",
		},
		{
			name: "json_no_primary_keeps_message",
			text: `{"user_message":"health looks fine"}`,
			want: "health looks fine",
		},
		{
			name: "json_no_message_no_primary_returns_raw",
			text: `{"status":"error"}`,
			want: `{"status":"error"}`,
		},
		{
			name:  "free_text_replaced_by_template",
			text:  "I stamped it on Bitcoin!",
			steps: []toolcall.Step{stamp},
			want:  "Hash stamped on Minima. uid=u-1, tx_id=0xabc, stamped_at=2025-01-01T00:00:00Z.",
		},
		{
			name:  "free_text_without_primary",
			text:  "Hello there.",
			steps: []toolcall.Step{health},
			want:  "Hello there.",
		},
		{
			name: "empty_defaults_to_done",
			text: "",
			want: DefaultText,
		},
		{
			name: "non_json_no_primary_is_never_empty",
			text: "   ",
			want: DefaultText,
		},
		{
			name:  "fenced_json",
			text:  "```json\n{\"user_message\":\"fenced\"}\n```",
			steps: []toolcall.Step{stamp},
			want:  "fenced",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Finalize(tt.text, tt.steps))
		})
	}
}

func TestEnvelope_PinsChainAndAction(t *testing.T) {
	steps := []toolcall.Step{step("verify_data", nil), step("health", nil)}

	obj, ok := Envelope(`{"chain":"Bitcoin","action":"health"}`, steps)
	require.True(t, ok)
	assert.Equal(t, "Minima", obj["chain"])
	assert.Equal(t, "verify_data", obj["action"])

	obj, ok = Envelope(`{"action":"stamp_data"}`, steps)
	require.True(t, ok)
	assert.Equal(t, "stamp_data", obj["action"])

	_, ok = Envelope(`[1,2]`, steps)
	assert.False(t, ok)
}

func TestTemplate(t *testing.T) {
	tests := []struct {
		name string
		step toolcall.Step
		want string
	}{
		{
			name: "stamp_missing_fields",
			step: step("stamp_hash", map[string]any{}),
			want: "Hash stamped on Minima. uid=not provided, tx_id=not provided, stamped_at=not provided.",
		},
		{
			name: "verify_with_report",
			step: step("verify_data", map[string]any{"summary": "Proof matches", "verification_url": "https://r/1"}),
			want: "Verification: Proof matches. Report: https://r/1",
		},
		{
			name: "verify_result_fallback",
			step: step("verify_data_with_proof", map[string]any{"result": true}),
			want: "Verification: true.",
		},
		{
			name: "verify_completed",
			step: step("verify_data", nil),
			want: "Verification: completed.",
		},
		{
			name: "timed_out",
			step: toolcall.Step{Name: "stamp_data", Result: toolcall.TimeoutResult("stamp_data", toolcall.DefaultTimeout)},
			want: `Result on Minima: The "stamp_data" tool timed out after 120s.`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Template(tt.step))
		})
	}
}

func TestLinks(t *testing.T) {
	steps := []toolcall.Step{
		step("verify_data", map[string]any{"verification_url": "https://r/1", "explorer_url": "https://x/1"}),
		step("health", map[string]any{"report_url": "https://diag"}),
		step("verify_data", map[string]any{"verification_url": "https://r/1", "proof_url": "https://p/1"}),
		{Name: "stamp_data"},
	}
	assert.Equal(t, []string{"https://r/1", "https://x/1", "https://p/1"}, Links(steps))
	assert.Empty(t, Links(nil))
}
