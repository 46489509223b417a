package mcpwrap

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nox-hq/mcpwrap/hook"
)

// ServerLike is the minimal surface Wrap needs from an MCP server. The
// concrete *mark3labs/mcp-go/server.MCPServer satisfies this already; any
// other type exposing the same AddTool signature can be wrapped too.
type ServerLike interface {
	AddTool(tool mcp.Tool, handler server.ToolHandlerFunc)
}

// toolRegistrar is an optional capability: a ServerLike that can enumerate
// its already-registered tools. Wrap logs a warning for each tool such a
// server reports but does not re-register it, so tools added before Wrap was
// called stay unwrapped. mcp-go's MCPServer does not implement this.
type toolRegistrar interface {
	ToolRegistry() map[string]server.ToolHandlerFunc
}

// wrapperServer is the ServerLike Wrap hands back to the caller. Its AddTool
// runs every future registration through the interception pipeline before
// delegating to the wrapped original.
type wrapperServer struct {
	inner    ServerLike
	instance *Instance
	install  func(toolName string, schema map[string]any, original server.ToolHandlerFunc) server.ToolHandlerFunc
}

func (w *wrapperServer) AddTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	schema := toolSchema(tool)
	w.inner.AddTool(tool, w.install(tool.Name, schema, handler))
}

// mcpwrapInstance implements instanceHolder, the idempotence marker a
// second Wrap call on this wrapper detects via type assertion.
func (w *wrapperServer) mcpwrapInstance() *Instance { return w.instance }

// toolSchema extracts the best-effort JSON-Schema-ish map mcp.Tool carries
// for its input, for use by security.Gate.ValidateArgs. Tools built without
// mcp.WithString/mcp.WithObject etc. may have a zero-value schema; callers
// must treat a nil/empty result as "no schema available".
func toolSchema(tool mcp.Tool) map[string]any {
	schema := map[string]any{
		"type":       tool.InputSchema.Type,
		"properties": tool.InputSchema.Properties,
		"required":   tool.InputSchema.Required,
	}
	return schema
}

// toMCPResult converts a hook.Result produced by the interception pipeline
// back into the wire type mcp-go expects from a tool handler.
func toMCPResult(res *hook.Result) *mcp.CallToolResult {
	if res == nil {
		res = &hook.Result{}
	}
	content := make([]mcp.Content, 0, len(res.Content))
	for _, part := range res.Content {
		content = append(content, mcp.TextContent{Type: "text", Text: part.Text})
	}
	return &mcp.CallToolResult{Content: content, IsError: res.IsError}
}

// fromMCPResult converts a *mcp.CallToolResult returned by an original tool
// handler into a hook.Result the pipeline's after-hooks can observe and
// transform.
func fromMCPResult(res *mcp.CallToolResult) *hook.Result {
	if res == nil {
		return &hook.Result{}
	}
	out := &hook.Result{IsError: res.IsError}
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			out.Content = append(out.Content, hook.ContentPart{Type: "text", Text: tc.Text})
		}
	}
	return out
}
