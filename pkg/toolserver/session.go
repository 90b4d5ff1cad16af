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

package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// Transport modes.
const (
	ModeStdio = "stdio"
	ModeHTTP  = "http"
	ModeSSE   = "sse"
)

// Config describes how to reach the tool server.
type Config struct {
	Mode string

	// stdio
	Command string
	Args    []string
	Env     []string
	Dir     string

	// http / sse
	URL     string
	Headers map[string]string

	ClientName      string
	ClientVersion   string
	ConnectAttempts uint
}

// Session is a long-lived MCP client connection. It is safe for concurrent
// use; request correlation is handled by mcp-go.
type Session struct {
	client   *client.Client
	mode     string
	progress *progressRegistry
	tokens   atomic.Int64
}

var _ Client = (*Session)(nil)

// Connect dials the tool server and performs the initialize handshake,
// retrying with exponential backoff.
func Connect(ctx context.Context, cfg Config) (*Session, error) {
	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 5
	}

	progress := newProgressRegistry()

	dial := func() (*client.Client, error) {
		c, err := newClient(cfg)
		if err != nil {
			return nil, err
		}

		c.OnNotification(progress.handle)

		if err := c.Start(ctx); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to start MCP client: %w", err)
		}

		initReq := mcp.InitializeRequest{}
		initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
		initReq.Params.ClientInfo = mcp.Implementation{
			Name:    cfg.ClientName,
			Version: cfg.ClientVersion,
		}

		if _, err := c.Initialize(ctx, initReq); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to initialize MCP: %w", err)
		}
		return c, nil
	}

	c, err := backoff.Retry(ctx, dial,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("MCP connect failed, retrying", "mode", cfg.Mode, "error", err, "in", next)
		}),
	)
	if err != nil {
		return nil, err
	}

	slog.Info("Connected to MCP server", "mode", cfg.Mode, "target", cfg.target())

	return &Session{client: c, mode: cfg.Mode, progress: progress}, nil
}

func newClient(cfg Config) (*client.Client, error) {
	switch cfg.Mode {
	case ModeStdio, "":
		if cfg.Command == "" {
			return nil, backoff.Permanent(errors.New("stdio mode requires a command"))
		}
		var opts []transport.StdioOption
		if cfg.Dir != "" {
			dir := cfg.Dir
			opts = append(opts, transport.WithCommandFunc(func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
				cmd := exec.CommandContext(ctx, command, args...)
				cmd.Env = append(os.Environ(), env...)
				cmd.Dir = dir
				return cmd, nil
			}))
		}
		c, err := client.NewStdioMCPClientWithOptions(cfg.Command, cfg.Env, cfg.Args, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create MCP client: %w", err)
		}
		return c, nil

	case ModeHTTP:
		if cfg.URL == "" {
			return nil, backoff.Permanent(errors.New("http mode requires a URL"))
		}
		c, err := client.NewStreamableHttpClient(cfg.URL, transport.WithHTTPHeaders(cfg.Headers))
		if err != nil {
			return nil, fmt.Errorf("failed to create MCP client: %w", err)
		}
		return c, nil

	case ModeSSE:
		if cfg.URL == "" {
			return nil, backoff.Permanent(errors.New("sse mode requires a URL"))
		}
		c, err := client.NewSSEMCPClient(cfg.URL, transport.WithHeaders(cfg.Headers))
		if err != nil {
			return nil, fmt.Errorf("failed to create MCP client: %w", err)
		}
		return c, nil

	default:
		return nil, backoff.Permanent(fmt.Errorf("unsupported MCP mode %q", cfg.Mode))
	}
}

func (cfg Config) target() string {
	if cfg.Mode == ModeHTTP || cfg.Mode == ModeSSE {
		return cfg.URL
	}
	return cfg.Command
}

// Close terminates the connection (and the child process in stdio mode).
func (s *Session) Close() error {
	return s.client.Close()
}

func (s *Session) ListTools(ctx context.Context) ([]Tool, error) {
	var tools []Tool
	req := mcp.ListToolsRequest{}

	for {
		res, err := s.client.ListTools(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to list tools: %w", err)
		}

		for _, t := range res.Tools {
			tools = append(tools, Tool{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: inputSchema(t),
			})
		}

		if res.NextCursor == "" {
			return tools, nil
		}
		req.Params.Cursor = res.NextCursor
	}
}

func (s *Session) ListResources(ctx context.Context) ([]Resource, error) {
	var resources []Resource
	req := mcp.ListResourcesRequest{}

	for {
		res, err := s.client.ListResources(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to list resources: %w", err)
		}

		for _, r := range res.Resources {
			resources = append(resources, Resource{
				URI:         r.URI,
				Name:        r.Name,
				Description: r.Description,
				MIMEType:    r.MIMEType,
			})
		}

		if res.NextCursor == "" {
			return resources, nil
		}
		req.Params.Cursor = res.NextCursor
	}
}

func (s *Session) ReadResource(ctx context.Context, uri string) ([]ResourceContent, error) {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri

	res, err := s.client.ReadResource(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to read resource %s: %w", uri, err)
	}

	out := make([]ResourceContent, 0, len(res.Contents))
	for _, c := range res.Contents {
		m := toMap(c)
		text, hasText := m["text"].(string)
		out = append(out, ResourceContent{
			URI:      stringField(m, "uri"),
			MIMEType: stringField(m, "mimeType"),
			Text:     text,
			HasText:  hasText,
		})
	}
	return out, nil
}

// CallTool runs tools/call. Expiry of opts.Timeout yields *TimeoutError.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any, opts CallOptions) (*CallResult, error) {
	callCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	token := fmt.Sprintf("mcphost-%d", s.tokens.Add(1))

	if opts.Timeout > 0 {
		timeout := &TimeoutError{Tool: name, After: opts.Timeout}
		timer := time.AfterFunc(opts.Timeout, func() { cancel(timeout) })
		defer timer.Stop()

		if opts.ResetTimeoutOnProgress {
			s.progress.register(token, func() { timer.Reset(opts.Timeout) })
			defer s.progress.unregister(token)
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	req.Params.Meta = &mcp.Meta{ProgressToken: token}

	res, err := s.client.CallTool(callCtx, req)
	if err != nil {
		var timeout *TimeoutError
		if errors.As(context.Cause(callCtx), &timeout) {
			return nil, timeout
		}
		return nil, fmt.Errorf("MCP call %s failed: %w", name, err)
	}

	return convertResult(res), nil
}

// progressRegistry routes notifications/progress to the call that owns the
// token.
type progressRegistry struct {
	mu       sync.Mutex
	handlers map[string]func()
}

func newProgressRegistry() *progressRegistry {
	return &progressRegistry{handlers: make(map[string]func())}
}

func (p *progressRegistry) register(token string, fn func()) {
	p.mu.Lock()
	p.handlers[token] = fn
	p.mu.Unlock()
}

func (p *progressRegistry) unregister(token string) {
	p.mu.Lock()
	delete(p.handlers, token)
	p.mu.Unlock()
}

func (p *progressRegistry) handle(n mcp.JSONRPCNotification) {
	if n.Method != "notifications/progress" {
		return
	}
	token, ok := n.Params.AdditionalFields["progressToken"]
	if !ok {
		return
	}

	p.mu.Lock()
	fn := p.handlers[fmt.Sprint(token)]
	p.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func convertResult(res *mcp.CallToolResult) *CallResult {
	out := &CallResult{IsError: res.IsError}

	for _, c := range res.Content {
		m := toMap(c)
		block := ContentBlock{
			Type: stringField(m, "type"),
			Text: stringField(m, "text"),
			JSON: m["json"],
		}
		if r, ok := m["resource"].(map[string]any); ok && block.Text == "" {
			block.Text = stringField(r, "text")
		}
		out.Content = append(out.Content, block)
	}

	if res.StructuredContent != nil {
		if sc := toMap(res.StructuredContent); len(sc) > 0 {
			out.StructuredContent = sc
		}
	}
	return out
}

func inputSchema(t mcp.Tool) map[string]any {
	m := toMap(t)
	schema, _ := m["inputSchema"].(map[string]any)
	return schema
}

// toMap normalises mcp-go values, which are a mix of value and pointer
// types, through their JSON encoding.
func toMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
