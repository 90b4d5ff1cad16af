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

// Package selector resolves a requested provider and model against the
// server-side allowlist and builds the matching adapter.
package selector

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/kadirpekel/mcphost/pkg/model"
	"github.com/kadirpekel/mcphost/pkg/model/anthropic"
	"github.com/kadirpekel/mcphost/pkg/model/gemini"
	"github.com/kadirpekel/mcphost/pkg/model/mock"
	"github.com/kadirpekel/mcphost/pkg/model/openai"
	"github.com/kadirpekel/mcphost/pkg/model/openrouter"
)

// mockModel is reported for the mock provider.
const mockModel = "mock"

var allowed = map[model.Provider][]string{
	model.ProviderAnthropic: {
		"claude-3-5-sonnet-20240620",
		"claude-3-5-haiku-20241022",
	},
	model.ProviderOpenAI: {
		"gpt-4o-mini",
		"gpt-4.1-mini",
	},
	model.ProviderOpenRouter: {
		"google/gemma-2-9b-it:free",
		"openai/gpt-4o-mini",
		"deepseek/deepseek-chat-v3.1:free",
	},
	model.ProviderGemini: {
		"gemini-2.0-flash",
		"gemini-1.5-flash",
	},
}

var defaults = map[model.Provider]string{
	model.ProviderAnthropic:  "claude-3-5-sonnet-20240620",
	model.ProviderOpenAI:     "gpt-4o-mini",
	model.ProviderOpenRouter: "deepseek/deepseek-chat-v3.1:free",
	model.ProviderGemini:     "gemini-2.0-flash",
	model.ProviderMock:       mockModel,
}

var keyEnv = map[model.Provider]string{
	model.ProviderAnthropic:  "ANTHROPIC_API_KEY",
	model.ProviderOpenAI:     "OPENAI_API_KEY",
	model.ProviderOpenRouter: "OPENROUTER_API_KEY",
	model.ProviderGemini:     "GEMINI_API_KEY",
}

// Allowed returns the permitted models of p. A nil result means any model.
func Allowed(p model.Provider) []string {
	return slices.Clone(allowed[p])
}

// DefaultModel is the built-in fallback model of p.
func DefaultModel(p model.Provider) string {
	return defaults[p]
}

// ConfigError reports a request that cannot run with the server's provider
// configuration.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// Credentials configures one provider.
type Credentials struct {
	APIKey string
	// Model replaces the built-in default; it must still be allowlisted.
	Model string
}

// Settings is the server-side provider configuration.
type Settings struct {
	DefaultProvider model.Provider

	Anthropic  Credentials
	OpenAI     Credentials
	OpenRouter Credentials
	Gemini     Credentials

	// OpenRouterReferer and OpenRouterTitle are sent as attribution headers.
	OpenRouterReferer string
	OpenRouterTitle   string

	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

func (s Settings) credentials(p model.Provider) Credentials {
	switch p {
	case model.ProviderAnthropic:
		return s.Anthropic
	case model.ProviderOpenAI:
		return s.OpenAI
	case model.ProviderOpenRouter:
		return s.OpenRouter
	case model.ProviderGemini:
		return s.Gemini
	}
	return Credentials{}
}

// Choice is the caller's optional preference.
type Choice struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Selection is a validated provider and model.
type Selection struct {
	Provider model.Provider
	Model    string
}

// Factory builds an adapter for a validated selection.
type Factory func(ctx context.Context, sel Selection) (model.Adapter, error)

// Option configures a Selector.
type Option func(*Selector)

// WithFactory replaces the adapter constructor of p. Validation still
// applies.
func WithFactory(p model.Provider, f Factory) Option {
	return func(s *Selector) {
		s.factories[p] = f
	}
}

// Selector chooses adapters.
type Selector struct {
	settings  Settings
	factories map[model.Provider]Factory
}

// New creates a Selector. An empty default provider means anthropic.
func New(settings Settings, opts ...Option) *Selector {
	if settings.DefaultProvider == "" {
		settings.DefaultProvider = model.ProviderAnthropic
	}
	s := &Selector{settings: settings, factories: map[model.Provider]Factory{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve validates choice without building anything.
func (s *Selector) Resolve(choice Choice) (Selection, error) {
	p := s.settings.DefaultProvider
	if strings.TrimSpace(choice.Provider) != "" {
		parsed, ok := model.ParseProvider(choice.Provider)
		if !ok {
			return Selection{}, &ConfigError{Msg: fmt.Sprintf("Unknown LLM provider: %s", choice.Provider)}
		}
		p = parsed
	}

	if p == model.ProviderMock {
		return Selection{Provider: p, Model: mockModel}, nil
	}

	creds := s.settings.credentials(p)
	if creds.APIKey == "" {
		return Selection{}, &ConfigError{Msg: keyEnv[p] + " missing"}
	}

	name := choice.Model
	if name == "" {
		name = creds.Model
	}
	if name == "" {
		name = defaults[p]
	}
	if list := allowed[p]; list != nil && !slices.Contains(list, name) {
		return Selection{}, &ConfigError{Msg: fmt.Sprintf("Model not allowed for %s: %s", p, name)}
	}
	return Selection{Provider: p, Model: name}, nil
}

// Select validates choice and builds the adapter.
func (s *Selector) Select(ctx context.Context, choice Choice) (model.Adapter, Selection, error) {
	sel, err := s.Resolve(choice)
	if err != nil {
		return nil, Selection{}, err
	}

	factory, ok := s.factories[sel.Provider]
	if !ok {
		factory = s.build
	}
	adapter, err := factory(ctx, sel)
	if err != nil {
		return nil, Selection{}, fmt.Errorf("failed to create %s adapter: %w", sel.Provider, err)
	}
	return adapter, sel, nil
}

func (s *Selector) build(ctx context.Context, sel Selection) (model.Adapter, error) {
	key := s.settings.credentials(sel.Provider).APIKey

	switch sel.Provider {
	case model.ProviderAnthropic:
		return anthropic.New(anthropic.Config{
			APIKey:     key,
			Model:      sel.Model,
			Timeout:    s.settings.Timeout,
			MaxRetries: s.settings.MaxRetries,
			HTTPClient: s.settings.HTTPClient,
		})
	case model.ProviderOpenAI:
		return openai.New(openai.Config{
			APIKey:     key,
			Model:      sel.Model,
			Timeout:    s.settings.Timeout,
			MaxRetries: s.settings.MaxRetries,
			HTTPClient: s.settings.HTTPClient,
		})
	case model.ProviderOpenRouter:
		return openrouter.New(openrouter.Config{
			APIKey:     key,
			Model:      sel.Model,
			Referer:    s.settings.OpenRouterReferer,
			Title:      s.settings.OpenRouterTitle,
			Timeout:    s.settings.Timeout,
			MaxRetries: s.settings.MaxRetries,
			HTTPClient: s.settings.HTTPClient,
		})
	case model.ProviderGemini:
		return gemini.New(ctx, gemini.Config{
			APIKey:     key,
			Model:      sel.Model,
			HTTPClient: s.settings.HTTPClient,
		})
	case model.ProviderMock:
		return mock.New(), nil
	}
	return nil, fmt.Errorf("unsupported provider %q", sel.Provider)
}
