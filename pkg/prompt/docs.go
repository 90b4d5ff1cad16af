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

package prompt

// DocsSystemPrompt grounds documentation answers in the fetched resources.
const DocsSystemPrompt = `You answer questions about this MCP server's capabilities and the Integritas product.
Use the provided MCP resources as ground truth and answer only from them.
Tools are unavailable in this mode: never call or propose a tool call. If the
resources do not cover the question, say so.`

// DocsContext wraps rendered resource text for the second system message.
func DocsContext(rendered string) string {
	return "MCP Resources:\n\n" + rendered
}
