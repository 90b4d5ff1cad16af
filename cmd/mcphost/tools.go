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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/kadirpekel/mcphost"
	"github.com/kadirpekel/mcphost/pkg/catalog"
	"github.com/kadirpekel/mcphost/pkg/toolserver"
)

// ToolsCmd connects to the tool server and prints its catalog.
type ToolsCmd struct {
	Timeout time.Duration `help:"Connection timeout." default:"30s"`
	Compact bool          `help:"Compact JSON output (no indentation)."`
}

func (c *ToolsCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	session, err := toolserver.Connect(ctx, cfg.MCP.ToolserverConfig(mcphost.Version))
	if err != nil {
		return fmt.Errorf("failed to connect to tool server: %w", err)
	}
	defer session.Close()

	items, err := catalog.Build(ctx, session)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	if !c.Compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(map[string]any{"tools": items})
}
