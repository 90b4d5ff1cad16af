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

// Package intent classifies the latest user utterance and scopes the tools
// offered to the model for the turn.
package intent

import (
	"regexp"
	"strings"

	"github.com/kadirpekel/mcphost/pkg/catalog"
)

// Detection patterns run against lower-cased text. They are heuristics and
// may be tuned freely as long as stamp scoping precedes verify scoping.
var (
	docsPattern = regexp.MustCompile(`what can you do|how.*(work|works)|integritas|capab|tools|help|docs|faq|schema|feature|price|pricing`)

	stampPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bstamp\b`),
		regexp.MustCompile(`\bupload\b`),
		regexp.MustCompile(`\bhash\b`),
		regexp.MustCompile(`\bstamp\b.*\b(file|data)\b`),
		regexp.MustCompile(`\bstamp\b.*\bhash\b`),
	}

	verifyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:verify|verification|validate|proof|report)\b`),
		regexp.MustCompile(`\b(?:on[-\s]?chain|exists?|existence|confirm)\b`),
		regexp.MustCompile(`proof-file|\.json\b`),
	}

	hashPattern = regexp.MustCompile(`(?i)\b[0-9a-f]{64}\b`)
)

// Result is the outcome of ClassifyAndScope.
type Result struct {
	IsDocsIntent bool
	ScopedTools  []catalog.Item
}

// IsDocsQuestion reports whether text asks about capabilities or docs.
func IsDocsQuestion(text string) bool {
	return docsPattern.MatchString(strings.ToLower(text))
}

// HasStampIntent reports whether text uses stamping vocabulary.
func HasStampIntent(text string) bool {
	return matchAny(stampPatterns, strings.ToLower(text))
}

// HasVerifyIntent reports whether text uses verification vocabulary or
// mentions a proof file.
func HasVerifyIntent(text string) bool {
	return matchAny(verifyPatterns, strings.ToLower(text))
}

// ClassifyAndScope decides between the docs path and the action path. On
// the action path it selects the stamping tool, then the verification tool,
// when the respective intent fires and the tool exists. Diagnostic tools are
// never selected.
func ClassifyAndScope(userText string, items []catalog.Item) Result {
	if IsDocsQuestion(userText) {
		return Result{IsDocsIntent: true}
	}

	var scoped []catalog.Item
	if HasStampIntent(userText) {
		scoped = Include(scoped, items, catalog.StampData)
	}
	if HasVerifyIntent(userText) {
		scoped = Include(scoped, items, catalog.VerifyData)
	}
	return Result{ScopedTools: scoped}
}

// Include appends the catalog item called name to scoped unless it is
// missing, diagnostic or already present.
func Include(scoped, items []catalog.Item, name string) []catalog.Item {
	if catalog.IsDiagnostic(name) {
		return scoped
	}
	if _, ok := catalog.Find(scoped, name); ok {
		return scoped
	}
	if item, ok := catalog.Find(items, name); ok {
		return append(scoped, item)
	}
	return scoped
}

// ExtractContentHash returns the first bare 64-hex token in text,
// lower-cased.
func ExtractContentHash(text string) (string, bool) {
	m := hashPattern.FindString(text)
	if m == "" {
		return "", false
	}
	return strings.ToLower(m), true
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
