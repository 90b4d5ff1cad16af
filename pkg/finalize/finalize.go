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

// Package finalize turns the model's raw answer and the tool trace into the
// single message shown to the user.
package finalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kadirpekel/mcphost/pkg/catalog"
	"github.com/kadirpekel/mcphost/pkg/toolcall"
)

// DefaultText is used when nothing better is available.
const DefaultText = "Done."

const notProvided = "not provided"

var (
	diagnosticMention = regexp.MustCompile(`(?i)\bhealth\b|\bready\b`)
	codeFence         = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
)

// Finalize produces the user-facing text for a turn.
//
// A JSON-object answer contributes its user_message unless that is absent
// or talks about diagnostics, in which case a template built from the
// latest primary step stands in. Free text is replaced by that template
// when a primary step exists.
func Finalize(text string, steps []toolcall.Step) string {
	last, hasPrimary := LastPrimary(steps)

	obj, isObject := Envelope(text, steps)
	if !isObject {
		if hasPrimary {
			return Template(last)
		}
		return firstNonEmpty(text, DefaultText)
	}

	msg := messageOf(obj["user_message"])
	if hasPrimary && (msg == "" || diagnosticMention.MatchString(msg)) {
		msg = Template(last)
	}
	return firstNonEmpty(msg, text, DefaultText)
}

// Envelope parses a JSON-object answer and normalizes it: the chain is
// pinned and a missing or non-primary action is replaced by the latest
// primary step.
func Envelope(text string, steps []toolcall.Step) (map[string]any, bool) {
	obj, ok := parseObject(text)
	if !ok {
		return nil, false
	}

	obj["chain"] = catalog.ChainName
	if last, hasPrimary := LastPrimary(steps); hasPrimary {
		if action, _ := obj["action"].(string); action == "" || !catalog.IsPrimary(action) {
			obj["action"] = last.Name
		}
	}
	return obj, true
}

// LastPrimary returns the most recent step of a primary tool.
func LastPrimary(steps []toolcall.Step) (toolcall.Step, bool) {
	for i := len(steps) - 1; i >= 0; i-- {
		if catalog.IsPrimary(steps[i].Name) {
			return steps[i], true
		}
	}
	return toolcall.Step{}, false
}

// Template renders the canned message for a primary step.
func Template(step toolcall.Step) string {
	env := toolcall.EnvelopeOf(step.Result)

	if !step.OK {
		return fmt.Sprintf("Result on Minima: %s.", sentence(firstNonEmpty(env.Headline(), step.Error, "failed")))
	}

	switch {
	case catalog.IsStampTool(step.Name):
		return fmt.Sprintf("Hash stamped on Minima. uid=%s, tx_id=%s, stamped_at=%s.",
			firstNonEmpty(env.UID, notProvided),
			firstNonEmpty(env.TxID, env.TxIDAlt, notProvided),
			firstNonEmpty(env.StampedAt, notProvided))

	case catalog.IsVerifyTool(step.Name):
		msg := fmt.Sprintf("Verification: %s.", sentence(firstNonEmpty(env.Summary, env.ResultText(), "completed")))
		if env.VerificationURL != "" {
			msg += " Report: " + env.VerificationURL
		}
		return msg

	default:
		return fmt.Sprintf("Result on Minima: %s.", sentence(firstNonEmpty(env.Summary, "completed")))
	}
}

// Links collects report and explorer URLs from primary steps, in order and
// without duplicates.
func Links(steps []toolcall.Step) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range steps {
		if !catalog.IsPrimary(s.Name) || s.Result == nil {
			continue
		}
		for _, u := range toolcall.EnvelopeOf(s.Result).Links() {
			if !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
		}
	}
	return out
}

func parseObject(text string) (map[string]any, bool) {
	s := strings.TrimSpace(text)
	if m := codeFence.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func messageOf(v any) string {
	switch m := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(m)
	default:
		return fmt.Sprint(m)
	}
}

// sentence drops a trailing period so templates do not end in "..".
func sentence(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), ".")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
