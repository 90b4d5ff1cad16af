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
	"strings"
	"time"

	"github.com/kadirpekel/mcphost/pkg/toolcall"
	"github.com/kadirpekel/mcphost/pkg/toolserver"
)

// Tool server connection modes.
const (
	MCPModeStdio = "stdio"
	MCPModeHTTP  = "http"
	MCPModeSSE   = "sse"
)

const (
	DefaultMCPCommand       = "python"
	DefaultResourceCacheTTL = 30 * time.Second
	defaultConnectAttempts  = 5
)

// DefaultMCPArgs launches the Integritas MCP server over stdio.
var DefaultMCPArgs = []string{"-m", "integritas_mcp_server", "--stdio"}

// MCPConfig configures the tool server connection.
type MCPConfig struct {
	// Mode is "stdio", "http" or "sse". Default: stdio
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty" jsonschema:"enum=stdio,enum=http,enum=sse"`

	Command string   `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string `yaml:"args,omitempty" json:"args,omitempty"`

	// Dir is the working directory of the launched process.
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty"`

	URL     string            `yaml:"url,omitempty" json:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	ConnectAttempts uint `yaml:"connect_attempts,omitempty" json:"connect_attempts,omitempty"`

	// ToolTimeout is the idle timeout of one tool call. Default: 2m
	ToolTimeout time.Duration `yaml:"tool_timeout,omitempty" json:"tool_timeout,omitempty"`

	// ResourceCacheTTL caches the resource listing. Negative disables it.
	ResourceCacheTTL time.Duration `yaml:"resource_cache_ttl,omitempty" json:"resource_cache_ttl,omitempty"`
}

// SetDefaults applies default values to MCPConfig.
func (c *MCPConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = MCPModeStdio
	}
	if c.Mode == MCPModeStdio {
		if c.Command == "" {
			c.Command = DefaultMCPCommand
		}
		if len(c.Args) == 0 {
			c.Args = append([]string(nil), DefaultMCPArgs...)
		}
	}
	if c.ConnectAttempts == 0 {
		c.ConnectAttempts = defaultConnectAttempts
	}
	if c.ToolTimeout == 0 {
		c.ToolTimeout = toolcall.DefaultTimeout
	}
	if c.ResourceCacheTTL == 0 {
		c.ResourceCacheTTL = DefaultResourceCacheTTL
	}
}

// Validate checks the tool server configuration.
func (c *MCPConfig) Validate() error {
	switch c.Mode {
	case MCPModeStdio:
		if c.Command == "" {
			return fmt.Errorf("command is required for stdio mode")
		}
	case MCPModeHTTP, MCPModeSSE:
		if c.URL == "" {
			return fmt.Errorf("url is required for %s mode", c.Mode)
		}
	default:
		return fmt.Errorf("unsupported mode %q (valid: stdio, http, sse)", c.Mode)
	}
	if c.ToolTimeout < 0 {
		return fmt.Errorf("tool_timeout must not be negative")
	}
	return nil
}

// ToolserverConfig converts c into a connection config. The launched
// process inherits the host environment.
func (c *MCPConfig) ToolserverConfig(version string) toolserver.Config {
	cfg := toolserver.Config{
		Mode:            c.Mode,
		Command:         c.Command,
		Args:            append([]string(nil), c.Args...),
		Dir:             c.Dir,
		URL:             c.URL,
		Headers:         c.Headers,
		ClientName:      "mcphost",
		ClientVersion:   version,
		ConnectAttempts: c.ConnectAttempts,
	}
	if c.Mode == MCPModeStdio {
		cfg.Env = os.Environ()
	}
	return cfg
}

// splitArgs splits a whitespace-separated argument string.
func splitArgs(s string) []string {
	return strings.Fields(s)
}
