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
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertResult(t *testing.T) {
	res := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(`{"uid":"u-1","tx_id":"0xabc"}`),
		},
		StructuredContent: map[string]any{"summary": "stamped", "uid": "u-1"},
	}

	out := convertResult(res)
	require.Len(t, out.Content, 1)
	assert.Equal(t, "text", out.Content[0].Type)
	assert.Equal(t, `{"uid":"u-1","tx_id":"0xabc"}`, out.Content[0].Text)
	assert.Equal(t, "stamped", out.StructuredContent["summary"])
	assert.False(t, out.IsError)
}

func TestConvertResult_NoStructuredContent(t *testing.T) {
	out := convertResult(&mcp.CallToolResult{IsError: true})
	assert.Nil(t, out.StructuredContent)
	assert.True(t, out.IsError)
}

func TestInputSchema(t *testing.T) {
	tool := mcp.NewTool("stamp_data",
		mcp.WithDescription("Stamp a file"),
		mcp.WithString("file_hash", mcp.Required()),
	)

	schema := inputSchema(tool)
	require.NotNil(t, schema)
	assert.Equal(t, "object", schema["type"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "file_hash")
}

func TestProgressRegistry(t *testing.T) {
	reg := newProgressRegistry()
	hits := 0
	reg.register("mcphost-7", func() { hits++ })

	notify := func(method string, token any) {
		reg.handle(mcp.JSONRPCNotification{
			Notification: mcp.Notification{
				Method: method,
				Params: mcp.NotificationParams{
					AdditionalFields: map[string]any{"progressToken": token},
				},
			},
		})
	}

	notify("notifications/progress", "mcphost-7")
	notify("notifications/progress", "mcphost-8")
	notify("notifications/message", "mcphost-7")
	assert.Equal(t, 1, hits)

	reg.unregister("mcphost-7")
	notify("notifications/progress", "mcphost-7")
	assert.Equal(t, 1, hits)
}

func TestTimeoutError(t *testing.T) {
	err := error(&TimeoutError{Tool: "stamp_data", After: 2 * time.Minute})
	assert.Contains(t, err.Error(), "request timed out")
	assert.Contains(t, err.Error(), "-32001")

	var timeout *TimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.Equal(t, CodeRequestTimeout, timeout.Code())
}

func TestNewClient_RejectsBadConfig(t *testing.T) {
	_, err := newClient(Config{Mode: "carrier-pigeon"})
	assert.ErrorContains(t, err, "unsupported MCP mode")

	_, err = newClient(Config{Mode: ModeHTTP})
	assert.ErrorContains(t, err, "requires a URL")

	_, err = newClient(Config{Mode: ModeStdio})
	assert.ErrorContains(t, err, "requires a command")
}
