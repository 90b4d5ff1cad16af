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

// Package catalog builds the per-turn tool catalog offered to the model.
//
// Schemas coming from the tool server are rewritten so that every provider
// accepts them: the top level is always an object schema and credential
// properties are removed at every depth, including inside $defs targets
// referenced from nested request objects.
package catalog

import (
	"context"
	"fmt"
	"slices"

	"github.com/kadirpekel/mcphost/pkg/toolserver"
)

// Item is one tool offered to the model.
type Item struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// Lister is the subset of toolserver.Client the builder needs.
type Lister interface {
	ListTools(ctx context.Context) ([]toolserver.Tool, error)
}

// Build lists the live tools and sanitizes their schemas. Duplicate names
// keep the first occurrence.
func Build(ctx context.Context, l Lister) ([]Item, error) {
	tools, err := l.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build tool catalog: %w", err)
	}

	items := make([]Item, 0, len(tools))
	seen := make(map[string]bool, len(tools))
	for _, t := range tools {
		if t.Name == "" || seen[t.Name] {
			continue
		}
		seen[t.Name] = true
		items = append(items, Item{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: Sanitize(t.InputSchema),
		})
	}
	return items, nil
}

// Find returns the item called name.
func Find(items []Item, name string) (Item, bool) {
	for _, it := range items {
		if it.Name == name {
			return it, true
		}
	}
	return Item{}, false
}

// credentialFields are stripped from every schema.
var credentialFields = []string{"api_key", "apiKey", "apikey"}

// Sanitize returns a copy of raw with credential fields removed and a valid
// top-level object schema. raw is not modified.
func Sanitize(raw map[string]any) map[string]any {
	stripped, _ := stripCredentials(deepCopy(raw)).(map[string]any)
	return EnsureObjectSchema(stripped)
}

// EnsureObjectSchema keeps properties, required, additionalProperties,
// definitions and combinators, forcing type object.
func EnsureObjectSchema(raw map[string]any) map[string]any {
	out := map[string]any{"type": "object"}

	props, ok := raw["properties"].(map[string]any)
	if !ok {
		props = map[string]any{}
	}
	out["properties"] = props

	if req, ok := raw["required"].([]any); ok {
		out["required"] = req
	} else if req, ok := raw["required"].([]string); ok {
		out["required"] = toAnySlice(req)
	}

	switch ap := raw["additionalProperties"].(type) {
	case nil:
		out["additionalProperties"] = false
	case bool:
		out["additionalProperties"] = ap
	default:
		out["additionalProperties"] = true
	}

	for _, key := range []string{"$defs", "definitions"} {
		if defs, ok := raw[key].(map[string]any); ok {
			out[key] = defs
		}
	}
	for _, key := range []string{"allOf", "oneOf", "anyOf"} {
		if list, ok := raw[key].([]any); ok {
			out[key] = list
		}
	}
	if desc, ok := raw["description"].(string); ok && desc != "" {
		out["description"] = desc
	}
	return out
}

// stripCredentials walks every map and slice, so credentials are removed
// from nested objects, array items, definitions and combinators.
func stripCredentials(node any) any {
	switch v := node.(type) {
	case map[string]any:
		if props, ok := v["properties"].(map[string]any); ok {
			for _, f := range credentialFields {
				delete(props, f)
			}
		}
		if req, ok := v["required"].([]any); ok {
			v["required"] = slices.DeleteFunc(req, func(r any) bool {
				s, _ := r.(string)
				return slices.Contains(credentialFields, s)
			})
		}
		for k, child := range v {
			v[k] = stripCredentials(child)
		}
		return v
	case []any:
		for i, child := range v {
			v[i] = stripCredentials(child)
		}
		return v
	default:
		return v
	}
}

func deepCopy(node any) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = deepCopy(child)
		}
		return out
	case []string:
		return toAnySlice(v)
	default:
		return v
	}
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
