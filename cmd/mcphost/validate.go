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
	"fmt"

	"github.com/kadirpekel/mcphost/pkg/model"
	"github.com/kadirpekel/mcphost/pkg/model/selector"
)

// ValidateCmd checks the configuration and reports whether the default
// provider can serve requests.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		fmt.Printf("Configuration is invalid: %v\n", err)
		return err
	}

	sel, err := selector.New(cfg.LLM.SelectorSettings()).Resolve(selector.Choice{})
	if err != nil {
		fmt.Printf("Configuration is valid, but the default provider is not usable: %v\n", err)
		return err
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Listen:      %s\n", cfg.Server.Address())
	fmt.Printf("  Tool server: %s\n", describeMCP(cfg.MCP.Mode, cfg.MCP.Command, cfg.MCP.URL))
	fmt.Printf("  Provider:    %s (%s)\n", sel.Provider, sel.Model)
	for _, p := range model.Providers() {
		if list := selector.Allowed(p); len(list) > 0 {
			fmt.Printf("  Allowed %-11s %v\n", string(p)+":", list)
		}
	}
	return nil
}

func describeMCP(mode, command, url string) string {
	if url != "" {
		return mode + " " + url
	}
	return mode + " " + command
}
