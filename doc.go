// Package mcphost is an HTTP chat host that lets a language model drive the
// tools of an MCP server.
//
// A chat turn is scoped to the tools the user's latest message calls for.
// Questions about the product are answered from the server's documentation
// resources without any tool access. Requests that carry an unambiguous
// stamp or verify intent skip the model and call the tool directly. All
// other turns run a bounded tool-calling loop against the configured
// provider (Anthropic, OpenAI, OpenRouter, Gemini or a local mock), and the
// final answer is rebuilt from the last primary tool result so it never
// claims more than the chain reported.
//
// # Quick Start
//
// Start the host against a local stdio tool server:
//
//	export ANTHROPIC_API_KEY=...
//	mcphost serve
//
// Send a message:
//
//	curl -s localhost:8788/chat \
//	  -H 'content-type: application/json' \
//	  -d '{"messages":[{"role":"user","content":"what can you do?"}]}'
//
// # Configuration
//
// Settings come from defaults, an optional YAML file (--config) and the
// environment, in that order. See pkg/config for the recognised keys and
// run "mcphost schema" for the JSON Schema of the file format.
//
// # Endpoints
//
//	GET  /health        liveness
//	POST /chat          one chat turn
//	GET  /_tools        sanitized tool catalog
//	GET  /_tool/health  calls the tool server's health tool
//	GET  /metrics       Prometheus metrics, when enabled
package mcphost
