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
	"maps"

	"github.com/kadirpekel/mcphost/pkg/catalog"
)

const (
	redactedMarker = "<redacted>"
	providedMarker = "<provided>"

	reqKey      = "req"
	apiKeyField = "api_key"
	fileURL     = "file_url"
	filePath    = "file_path"
)

// MergeArgs deep-merges defaults under model. On a leaf conflict the model
// value wins; when both sides hold an object the merge recurses. Neither
// input is modified.
func MergeArgs(defaults, model map[string]any) map[string]any {
	out := cloneMap(defaults)
	if out == nil {
		out = map[string]any{}
	}
	for k, mv := range model {
		dv, exists := out[k]
		dm, dIsMap := dv.(map[string]any)
		mm, mIsMap := mv.(map[string]any)
		if exists && dIsMap && mIsMap {
			out[k] = MergeArgs(dm, mm)
			continue
		}
		out[k] = cloneValue(mv)
	}
	return out
}

// PrepareArgs finalises merged arguments for tool name: a nested req object
// always exists, a stray file_path is dropped when file_url is given, and
// apiKey is injected for primary tools that do not carry one yet.
func PrepareArgs(name string, merged map[string]any, apiKey string) map[string]any {
	req, ok := merged[reqKey].(map[string]any)
	if !ok {
		if merged[reqKey] != nil {
			return merged
		}
		req = map[string]any{}
		merged[reqKey] = req
	}

	if url, _ := req[fileURL].(string); url != "" {
		delete(req, filePath)
	}

	if apiKey != "" && catalog.IsPrimary(name) && req[apiKeyField] == nil {
		req[apiKeyField] = apiKey
	}
	return merged
}

// Redact returns a copy of args safe for logs and traces.
func Redact(args map[string]any) map[string]any {
	out := cloneMap(args)
	redactInPlace(out)
	return out
}

func redactInPlace(m map[string]any) {
	for k, v := range m {
		switch k {
		case apiKeyField:
			m[k] = redactedMarker
			continue
		case fileURL:
			if v != nil && v != "" {
				m[k] = providedMarker
			}
			continue
		}
		switch child := v.(type) {
		case map[string]any:
			redactInPlace(child)
		case []any:
			for _, item := range child {
				if cm, ok := item.(map[string]any); ok {
					redactInPlace(cm)
				}
			}
		}
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := maps.Clone(m)
	for k, v := range out {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
