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

package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/kadirpekel/mcphost/pkg/model"
	"github.com/kadirpekel/mcphost/pkg/model/selector"
)

const (
	DefaultLLMTimeout    = 120 * time.Second
	DefaultLLMMaxRetries = 2
)

// ProviderConfig holds the credentials of one LLM provider.
type ProviderConfig struct {
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// Model overrides the provider default. It must be allowlisted.
	Model string `yaml:"model,omitempty" json:"model,omitempty"`
}

// LLMConfig configures the provider selection.
type LLMConfig struct {
	// Provider is the default provider. Default: anthropic
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty" jsonschema:"enum=anthropic,enum=openai,enum=openrouter,enum=gemini,enum=mock"`

	Anthropic  ProviderConfig `yaml:"anthropic,omitempty" json:"anthropic,omitempty"`
	OpenAI     ProviderConfig `yaml:"openai,omitempty" json:"openai,omitempty"`
	OpenRouter ProviderConfig `yaml:"openrouter,omitempty" json:"openrouter,omitempty"`
	Gemini     ProviderConfig `yaml:"gemini,omitempty" json:"gemini,omitempty"`

	// OpenRouterReferer and OpenRouterTitle are OpenRouter attribution headers.
	OpenRouterReferer string `yaml:"openrouter_referer,omitempty" json:"openrouter_referer,omitempty"`
	OpenRouterTitle   string `yaml:"openrouter_title,omitempty" json:"openrouter_title,omitempty"`

	Timeout    time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxRetries int           `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
}

// SetDefaults applies default values to LLMConfig.
func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = string(model.ProviderAnthropic)
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultLLMTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultLLMMaxRetries
	}
}

// Validate checks the provider name and configured models. Missing keys
// are reported per request, when the provider is actually selected.
func (c *LLMConfig) Validate() error {
	if _, ok := model.ParseProvider(c.Provider); !ok {
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	for p, pc := range map[model.Provider]ProviderConfig{
		model.ProviderAnthropic:  c.Anthropic,
		model.ProviderOpenAI:     c.OpenAI,
		model.ProviderOpenRouter: c.OpenRouter,
		model.ProviderGemini:     c.Gemini,
	} {
		if pc.Model == "" {
			continue
		}
		if list := selector.Allowed(p); list != nil && !slices.Contains(list, pc.Model) {
			return fmt.Errorf("model %q is not allowed for %s", pc.Model, p)
		}
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	return nil
}

// SelectorSettings converts c into adapter selector settings.
func (c *LLMConfig) SelectorSettings() selector.Settings {
	p, _ := model.ParseProvider(c.Provider)
	return selector.Settings{
		DefaultProvider:   p,
		Anthropic:         selector.Credentials(c.Anthropic),
		OpenAI:            selector.Credentials(c.OpenAI),
		OpenRouter:        selector.Credentials(c.OpenRouter),
		Gemini:            selector.Credentials(c.Gemini),
		OpenRouterReferer: c.OpenRouterReferer,
		OpenRouterTitle:   c.OpenRouterTitle,
		Timeout:           c.Timeout,
		MaxRetries:        c.MaxRetries,
	}
}
