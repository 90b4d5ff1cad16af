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
	"time"
)

const (
	DefaultPort            = 8788
	DefaultBodyLimit       = 10 << 20
	DefaultShutdownTimeout = 10 * time.Second
)

// DefaultAllowedCORS is the local frontend origin.
var DefaultAllowedCORS = []string{"http://localhost:5173"}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Port to listen on. Default: 8788
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// AllowedCORS lists the origins allowed to call the API.
	AllowedCORS []string `yaml:"allowed_cors,omitempty" json:"allowed_cors,omitempty"`

	// BodyLimit caps request bodies in bytes. Default: 10 MiB
	BodyLimit int64 `yaml:"body_limit,omitempty" json:"body_limit,omitempty"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty" json:"shutdown_timeout,omitempty"`
}

// SetDefaults applies default values to ServerConfig.
func (c *ServerConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if len(c.AllowedCORS) == 0 {
		c.AllowedCORS = append([]string(nil), DefaultAllowedCORS...)
	}
	if c.BodyLimit == 0 {
		c.BodyLimit = DefaultBodyLimit
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be within 1-65535, got %d", c.Port)
	}
	if c.BodyLimit < 0 {
		return fmt.Errorf("body_limit must not be negative")
	}
	return nil
}

// Address returns the listen address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
