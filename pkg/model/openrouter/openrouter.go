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

// Package openrouter adapts OpenRouter's OpenAI-compatible API.
package openrouter

import (
	"net/http"
	"time"

	"github.com/kadirpekel/mcphost/pkg/model"
	"github.com/kadirpekel/mcphost/pkg/model/openai"
)

const (
	// BaseURL is OpenRouter's OpenAI-compatible endpoint.
	BaseURL = "https://openrouter.ai/api/v1"

	defaultModel     = "deepseek/deepseek-chat-v3.1:free"
	defaultMaxTokens = 4096
)

// Config configures the OpenRouter client.
type Config struct {
	APIKey string
	Model  string

	// Referer and Title identify the app on openrouter.ai rankings.
	Referer string
	Title   string

	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// New creates a model.Adapter for OpenRouter.
func New(cfg Config) (*openai.Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BaseURL
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultModel
	}

	headers := map[string]string{}
	if cfg.Referer != "" {
		headers["HTTP-Referer"] = cfg.Referer
	}
	if cfg.Title != "" {
		headers["X-Title"] = cfg.Title
	}

	return openai.New(openai.Config{
		APIKey:     cfg.APIKey,
		Model:      modelName,
		BaseURL:    baseURL,
		Provider:   model.ProviderOpenRouter,
		Headers:    headers,
		MaxTokens:  defaultMaxTokens,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		HTTPClient: cfg.HTTPClient,
	})
}
