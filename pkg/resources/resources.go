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

// Package resources ranks and reads tool-server documents used to ground
// answers to documentation questions.
package resources

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/maypok86/otter"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/mcphost/pkg/toolserver"
)

const (
	// DefaultLimit is the number of scored documents kept.
	DefaultLimit = 4

	// DocsNamespace holds the product's own documentation.
	DocsNamespace = "integritas://docs/"

	docsBonus = 2
	emptyText = "(empty)"
	listKey   = "resources"

	maxConcurrentReads = 4
)

// ForcedURIs are always included when the server exposes them.
var ForcedURIs = []string{
	DocsNamespace + "overview",
	DocsNamespace + "tools",
}

// Source is the subset of toolserver.Client the retriever reads from.
type Source interface {
	ListResources(ctx context.Context) ([]toolserver.Resource, error)
	ReadResource(ctx context.Context, uri string) ([]toolserver.ResourceContent, error)
}

// Doc is a fetched document.
type Doc struct {
	URI  string
	Text string
}

// PickRelevant scores every resource by the number of whitespace-separated
// tokens of userText found in its uri, name and description, plus a bonus
// for the docs namespace. Ties keep listing order.
func PickRelevant(userText string, all []toolserver.Resource, limit int) []string {
	if limit <= 0 {
		limit = DefaultLimit
	}
	tokens := strings.Fields(strings.ToLower(userText))

	type scored struct {
		uri   string
		score int
	}
	ranked := make([]scored, 0, len(all))
	for _, r := range all {
		hay := strings.ToLower(r.URI + " " + r.Name + " " + r.Description)
		score := 0
		for _, tok := range tokens {
			if strings.Contains(hay, tok) {
				score++
			}
		}
		if strings.HasPrefix(r.URI, DocsNamespace) {
			score += docsBonus
		}
		ranked = append(ranked, scored{uri: r.URI, score: score})
	}

	slices.SortStableFunc(ranked, func(a, b scored) int { return b.score - a.score })

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	uris := make([]string, len(ranked))
	for i, s := range ranked {
		uris[i] = s.uri
	}
	return uris
}

// Select returns the forced documents that exist followed by the scored
// picks, without duplicates.
func Select(userText string, all []toolserver.Resource, limit int) []string {
	var out []string
	for _, uri := range ForcedURIs {
		if slices.ContainsFunc(all, func(r toolserver.Resource) bool { return r.URI == uri }) {
			out = append(out, uri)
		}
	}
	for _, uri := range PickRelevant(userText, all, limit) {
		if !slices.Contains(out, uri) {
			out = append(out, uri)
		}
	}
	return out
}

// Retriever lists and reads resources. The listing is cached for a short
// TTL since it rarely changes between turns.
type Retriever struct {
	src   Source
	cache *otter.Cache[string, []toolserver.Resource]
}

// NewRetriever creates a retriever. A non-positive ttl disables caching.
func NewRetriever(src Source, ttl time.Duration) (*Retriever, error) {
	r := &Retriever{src: src}
	if ttl <= 0 {
		return r, nil
	}

	cache, err := otter.MustBuilder[string, []toolserver.Resource](16).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create resource cache: %w", err)
	}
	r.cache = &cache
	return r, nil
}

// List returns the server's resources.
func (r *Retriever) List(ctx context.Context) ([]toolserver.Resource, error) {
	if r.cache != nil {
		if cached, ok := r.cache.Get(listKey); ok {
			return cached, nil
		}
	}

	all, err := r.src.ListResources(ctx)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Set(listKey, all)
	}
	return all, nil
}

// Fetch reads uris concurrently and returns them in the given order. A
// resource without a textual part yields the "(empty)" placeholder.
func (r *Retriever) Fetch(ctx context.Context, uris []string) ([]Doc, error) {
	docs := make([]Doc, len(uris))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)

	for i, uri := range uris {
		g.Go(func() error {
			contents, err := r.src.ReadResource(gctx, uri)
			if err != nil {
				return err
			}
			docs[i] = Doc{URI: uri, Text: firstText(contents)}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

func firstText(contents []toolserver.ResourceContent) string {
	if len(contents) == 0 || !contents[0].HasText || contents[0].Text == "" {
		return emptyText
	}
	return contents[0].Text
}

// Render concatenates docs into the grounding context.
func Render(docs []Doc) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = "### " + d.URI + "\n" + d.Text
	}
	return strings.Join(parts, "\n\n")
}
