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
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var envVarPatterns = struct {
	withDefault *regexp.Regexp
	braced      *regexp.Regexp
	simple      *regexp.Regexp
}{
	withDefault: regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`),
	braced:      regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`),
	simple:      regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`),
}

// expandEnvString expands ${VAR:-default}, ${VAR} and $VAR in s.
func expandEnvString(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	s = envVarPatterns.withDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.withDefault.FindStringSubmatch(match)
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})
	s = envVarPatterns.braced.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPatterns.braced.FindStringSubmatch(match)[1])
	})
	return envVarPatterns.simple.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPatterns.simple.FindStringSubmatch(match)[1])
	})
}

// expandEnvVars recursively expands environment references in a decoded
// YAML document.
func expandEnvVars(v any) any {
	switch val := v.(type) {
	case string:
		return expandEnvString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = expandEnvVars(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandEnvVars(item)
		}
		return out
	default:
		return v
	}
}

// LoadEnvFiles loads .env.local and .env when present. Variables already
// set in the process environment are kept.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// ApplyEnv overlays the recognised environment variables onto c. Unset or
// empty variables leave the current value alone.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("ALLOWED_CORS"); v != "" {
		c.Server.AllowedCORS = splitList(v)
	}

	setString(&c.MCP.Mode, "MCP_MODE")
	setString(&c.MCP.Command, "MCP_STDIO_CMD")
	if v := os.Getenv("MCP_STDIO_ARGS"); v != "" {
		c.MCP.Args = splitArgs(v)
	}
	setString(&c.MCP.Dir, "MCP_CWD")
	switch {
	case os.Getenv("MCP_HTTP_URL") != "" && c.MCP.Mode != MCPModeSSE:
		c.MCP.URL = os.Getenv("MCP_HTTP_URL")
	case os.Getenv("MCP_SSE_URL") != "" && c.MCP.Mode == MCPModeSSE:
		c.MCP.URL = os.Getenv("MCP_SSE_URL")
	}

	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setString(&c.LLM.Anthropic.Model, "ANTHROPIC_MODEL")
	setString(&c.LLM.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.LLM.OpenAI.Model, "OPENAI_MODEL")
	setString(&c.LLM.OpenRouter.APIKey, "OPENROUTER_API_KEY")
	setString(&c.LLM.OpenRouter.Model, "OPENROUTER_MODEL")
	setString(&c.LLM.OpenRouterReferer, "OPENROUTER_REFERER")
	setString(&c.LLM.OpenRouterTitle, "OPENROUTER_TITLE")
	setString(&c.LLM.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&c.LLM.Gemini.Model, "GEMINI_MODEL")

	setString(&c.Logger.Level, "LOG_LEVEL")
	setString(&c.Logger.Format, "LOG_FORMAT")
	setString(&c.Logger.File, "LOG_FILE")

	if err := setBool(&c.Observability.Metrics.Enabled, "METRICS_ENABLED"); err != nil {
		return err
	}
	return setBool(&c.Observability.Tracing.Enabled, "TRACING_ENABLED")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = b
	return nil
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
