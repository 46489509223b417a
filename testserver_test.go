package mcpwrap

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// fakeServer is a minimal in-memory ServerLike double, letting tests drive
// AddTool/CallTool without a real transport.
type fakeServer struct {
	tools map[string]server.ToolHandlerFunc
}

func newFakeServer() *fakeServer {
	return &fakeServer{tools: make(map[string]server.ToolHandlerFunc)}
}

func (f *fakeServer) AddTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	f.tools[tool.Name] = handler
}

func (f *fakeServer) Call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	h, ok := f.tools[name]
	if !ok {
		return nil, errNoSuchTool(name)
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return h(ctx, req)
}

type errNoSuchTool string

func (e errNoSuchTool) Error() string { return "no such tool: " + string(e) }
