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

// Package prompt assembles the system prompts sent to the model.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kadirpekel/mcphost/pkg/catalog"
)

// DefaultSchemaMaxChars bounds each schema preview in the tool section.
const DefaultSchemaMaxChars = 800

// Options shape the composed prompt. Zero values select the defaults.
type Options struct {
	UserGoal       string
	ToolsInScope   []catalog.Item
	OutputContract string
	RuntimeHints   []string
	ChainName      string
	RequireJSON    bool

	PrimaryTools    []string
	DiagnosticTools []string

	SchemaMaxChars int
}

// Compose builds the action-path system prompt. Sections are separated by a
// blank line; base, when set, follows the grounding rules.
func Compose(base string, opts Options) string {
	chain := opts.ChainName
	if chain == "" {
		chain = catalog.ChainName
	}
	primary := opts.PrimaryTools
	if primary == nil {
		primary = catalog.PrimaryTools()
	}
	diagnostics := opts.DiagnosticTools
	if diagnostics == nil {
		diagnostics = catalog.DiagnosticTools()
	}

	parts := []string{
		basePolicy(),
		groundingRules(chain, primary, diagnostics),
	}
	if base != "" {
		parts = append(parts, base)
	}
	if opts.UserGoal != "" {
		parts = append(parts, "User goal: "+opts.UserGoal)
	}
	if section := toolCatalog(opts.ToolsInScope, opts.SchemaMaxChars); section != "" {
		parts = append(parts, section)
	}
	if opts.RequireJSON {
		parts = append(parts, outputFormatJSON(chain, primary))
	} else if opts.OutputContract != "" {
		parts = append(parts, "Output contract: "+opts.OutputContract)
	}
	parts = append(parts, runtimeHints(chain, opts.RuntimeHints))

	return strings.Join(parts, "\n\n")
}

func basePolicy() string {
	return strings.Join([]string{
		"You are an MCP host orchestrator. Prefer calling tools over guessing.",
		"Follow JSON schemas exactly; never invent fields. All timestamps UTC ISO-8601.",
		"Never fabricate tx_id or uid. If a tool requires an API key and none is available,",
		"ask the user once to provide it. Keep final user responses concise.",
	}, " ")
}

func groundingRules(chain string, primary, diagnostics []string) string {
	return strings.Join([]string{
		"GROUNDING RULES:",
		fmt.Sprintf("- The blockchain used by these tools is %q only. Do NOT mention Bitcoin or any other chain.", chain),
		fmt.Sprintf("- Treat these as PRIMARY tools: %s.", strings.Join(primary, ", ")),
		fmt.Sprintf("- Treat these as DIAGNOSTIC tools: %s.", strings.Join(diagnostics, ", ")),
		"- Your user-facing summary MUST be based solely on the latest PRIMARY tool_result in this turn.",
		"- Do NOT include or reference any DIAGNOSTIC results in the user-facing summary (they are for internal decisioning only).",
		`- If a field is absent, write "not provided" rather than guessing.`,
		"- Do not state “confirmed” or “permanently recorded” unless the tool_result explicitly provides that status.",
	}, "\n")
}

func toolCatalog(tools []catalog.Item, maxChars int) string {
	if len(tools) == 0 {
		return ""
	}
	if maxChars <= 0 {
		maxChars = DefaultSchemaMaxChars
	}

	lines := make([]string, 0, len(tools))
	for _, t := range tools {
		desc := t.Description
		if desc == "" {
			desc = "(no description)"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s\n  schema: %s", t.Name, desc, schemaPreview(t.InputSchema, maxChars)))
	}
	return "Tools available this turn:\n" + strings.Join(lines, "\n")
}

func schemaPreview(schema map[string]any, maxChars int) string {
	if schema == nil {
		return "{}"
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(schema); err != nil {
		return "{}"
	}
	s := []rune(strings.TrimSuffix(buf.String(), "\n"))
	if len(s) > maxChars {
		return string(s[:maxChars]) + " …"
	}
	return string(s)
}

func outputFormatJSON(chain string, primary []string) string {
	return strings.Join([]string{
		"OUTPUT FORMAT (REQUIRED):",
		"Return a single JSON object:",
		"{",
		`  "status": "success" | "error",`,
		fmt.Sprintf(`  "action": "<one of %s | 'none'>",`, strings.Join(primary, " | ")),
		fmt.Sprintf(`  "chain": "%s",`, chain),
		`  "facts": {`,
		`    "hash": "<string | 'not provided'>",`,
		`    "uid": "<string | 'not provided'>",`,
		`    "tx_id": "<string | 'not provided'>",`,
		`    "stamped_at": "<ISO-8601 | 'not provided'>",`,
		`    "message": "<short machine-readable status>"`,
		"  },",
		`  "user_message": "<one short paragraph, neutral, strictly from the latest PRIMARY tool_result>",`,
		`  "diagnostics_used": "<comma-separated diagnostic tool names only>"`,
		"}",
		"No extra keys. No prose outside the JSON.",
	}, "\n")
}

func runtimeHints(chain string, hints []string) string {
	all := []string{
		fmt.Sprintf("The chain is %q only. Never say Bitcoin.", chain),
		"Base user_message only on the latest PRIMARY tool_result. Ignore DIAGNOSTIC tools in the user_message.",
	}
	all = append(all, hints...)
	return "Runtime hints:\n- " + strings.Join(all, "\n- ")
}
