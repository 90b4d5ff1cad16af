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

package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/mcphost/pkg/toolserver"
	"github.com/kadirpekel/mcphost/pkg/toolserver/toolservertest"
)

func stampSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"api_key": map[string]any{"type": "string"},
			"req":     map[string]any{"$ref": "#/$defs/StampRequest"},
		},
		"required": []any{"req", "api_key"},
		"$defs": map[string]any{
			"StampRequest": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"api_key":   map[string]any{"type": "string"},
					"file_hash": map[string]any{"type": "string"},
					"options": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"apiKey": map[string]any{"type": "string"},
							"notes":  map[string]any{"type": "string"},
						},
						"required": []any{"apiKey"},
					},
				},
				"required": []any{"file_hash", "api_key"},
			},
		},
	}
}

// containsCredential reports whether any properties/required entry anywhere
// in node names a credential.
func containsCredential(node any) bool {
	switch v := node.(type) {
	case map[string]any:
		if props, ok := v["properties"].(map[string]any); ok {
			for _, f := range credentialFields {
				if _, found := props[f]; found {
					return true
				}
			}
		}
		if req, ok := v["required"].([]any); ok {
			for _, r := range req {
				for _, f := range credentialFields {
					if r == f {
						return true
					}
				}
			}
		}
		for _, child := range v {
			if containsCredential(child) {
				return true
			}
		}
	case []any:
		for _, child := range v {
			if containsCredential(child) {
				return true
			}
		}
	}
	return false
}

func TestSanitize_StripsCredentialsEverywhere(t *testing.T) {
	raw := stampSchema()
	got := Sanitize(raw)

	assert.False(t, containsCredential(got))
	assert.Equal(t, []any{"req"}, got["required"])

	def := got["$defs"].(map[string]any)["StampRequest"].(map[string]any)
	assert.Equal(t, []any{"file_hash"}, def["required"])
	assert.Contains(t, def["properties"], "file_hash")

	// The input is left untouched.
	assert.True(t, containsCredential(raw))
}

func TestSanitize_CombinatorsAndItems(t *testing.T) {
	raw := map[string]any{
		"anyOf": []any{
			map[string]any{"properties": map[string]any{"api_key": map[string]any{}}, "required": []any{"api_key"}},
		},
		"properties": map[string]any{
			"batch": map[string]any{
				"type":  "array",
				"items": map[string]any{"properties": map[string]any{"api_key": map[string]any{}}},
			},
		},
	}
	assert.False(t, containsCredential(Sanitize(raw)))
}

func TestEnsureObjectSchema(t *testing.T) {
	tests := []struct {
		name  string
		raw   map[string]any
		check func(t *testing.T, out map[string]any)
	}{
		{
			name: "nil_schema",
			raw:  nil,
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, "object", out["type"])
				assert.Equal(t, map[string]any{}, out["properties"])
				assert.Equal(t, false, out["additionalProperties"])
				assert.NotContains(t, out, "required")
			},
		},
		{
			name: "wrong_type_forced_to_object",
			raw:  map[string]any{"type": "string", "additionalProperties": true},
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, "object", out["type"])
				assert.Equal(t, true, out["additionalProperties"])
			},
		},
		{
			name: "schema_valued_additional_properties",
			raw:  map[string]any{"additionalProperties": map[string]any{"type": "string"}},
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, true, out["additionalProperties"])
			},
		},
		{
			name: "keeps_definitions_and_combinators",
			raw: map[string]any{
				"definitions": map[string]any{"A": map[string]any{}},
				"oneOf":       []any{map[string]any{}},
				"title":       "dropped",
			},
			check: func(t *testing.T, out map[string]any) {
				assert.Contains(t, out, "definitions")
				assert.Contains(t, out, "oneOf")
				assert.NotContains(t, out, "title")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, EnsureObjectSchema(tt.raw))
		})
	}
}

func TestBuild(t *testing.T) {
	fake := &toolservertest.Fake{Tools: []toolserver.Tool{
		{Name: StampData, Description: "Stamp", InputSchema: stampSchema()},
		{Name: Health},
		{Name: StampData, Description: "duplicate"},
	}}

	items, err := Build(context.Background(), fake)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, StampData, items[0].Name)
	assert.Equal(t, "Stamp", items[0].Description)
	assert.False(t, containsCredential(items[0].InputSchema))
	assert.Equal(t, "object", items[1].InputSchema["type"])

	_, ok := Find(items, Health)
	assert.True(t, ok)
	_, ok = Find(items, VerifyData)
	assert.False(t, ok)
}

func TestBuild_Error(t *testing.T) {
	_, err := Build(context.Background(), &toolservertest.Fake{ListErr: errors.New("boom")})
	assert.ErrorContains(t, err, "boom")
}

func TestToolPartition(t *testing.T) {
	assert.True(t, IsPrimary(StampData))
	assert.True(t, IsPrimary(VerifyDataWithProof))
	assert.False(t, IsPrimary(Health))
	assert.True(t, IsDiagnostic(Ready))
	assert.Equal(t, []string{StampData, VerifyData}, PrimaryTools())
	assert.Equal(t, []string{Health, Ready}, DiagnosticTools())
}
