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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kadirpekel/mcphost"
	"github.com/kadirpekel/mcphost/pkg/model/selector"
	"github.com/kadirpekel/mcphost/pkg/observability"
	"github.com/kadirpekel/mcphost/pkg/orchestrator"
	"github.com/kadirpekel/mcphost/pkg/resources"
	"github.com/kadirpekel/mcphost/pkg/server"
	"github.com/kadirpekel/mcphost/pkg/toolserver"
)

// ServeCmd starts the HTTP host.
type ServeCmd struct {
	Port     int    `help:"Port to listen on (overrides PORT and the config file)."`
	Provider string `help:"Default LLM provider (anthropic, openai, openrouter, gemini, mock)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.Provider != "" {
		cfg.LLM.Provider = c.Provider
		if err := cfg.LLM.Validate(); err != nil {
			return err
		}
	}

	_, shutdownTracer, err := observability.InitGlobalTracer(ctx, cfg.Observability.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metrics, metricsHandler, err := observability.InitMetrics(cfg.Observability.Metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	slog.Info("Connecting to tool server", "mode", cfg.MCP.Mode)
	session, err := toolserver.Connect(ctx, cfg.MCP.ToolserverConfig(mcphost.Version))
	if err != nil {
		return fmt.Errorf("failed to connect to tool server: %w", err)
	}
	defer session.Close()

	retriever, err := resources.NewRetriever(session, cfg.MCP.ResourceCacheTTL)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Tools:       session,
		Selector:    selector.New(cfg.LLM.SelectorSettings()),
		Resources:   retriever,
		ToolTimeout: cfg.MCP.ToolTimeout,
		Metrics:     metrics,
		Logger:      slog.Default(),
	})
	if err != nil {
		return err
	}

	opts := []server.Option{server.WithLogger(slog.Default())}
	if metricsHandler != nil {
		opts = append(opts, server.WithMetrics(cfg.Observability.Metrics.Endpoint, metricsHandler))
	}
	srv := server.New(cfg.Server, orch, session, opts...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	slog.Info("mcphost ready",
		"address", cfg.Server.Address(),
		"provider", cfg.LLM.Provider,
		"metrics", cfg.Observability.Metrics.Enabled,
		"tracing", cfg.Observability.Tracing.Enabled)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("Shutting down...", "signal", sig.String())
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		return err
	}
	return <-errCh
}
