package mcpwrap_test

import (
	"context"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	mcpwrap "github.com/nox-hq/mcpwrap"
	"github.com/nox-hq/mcpwrap/hook"
	"github.com/nox-hq/mcpwrap/security"
)

// auditPlugin logs every tool call's name before it reaches the handler.
type auditPlugin struct{}

func (auditPlugin) Name() string    { return "audit" }
func (auditPlugin) Version() string { return "1.0.0" }
func (auditPlugin) BeforeToolCall(ctx *hook.Context) (*hook.Result, error) {
	log.Printf("tool call: %s", ctx.ToolName)
	return nil, nil
}

// Example demonstrates wrapping a mark3labs/mcp-go server so every tool call
// passes through a registered plugin and the redaction gate before running.
func Example() {
	srv := server.NewMCPServer("example", "1.0.0")

	wrapped, instance, err := mcpwrap.Wrap(srv,
		mcpwrap.WithPlugins(auditPlugin{}),
		mcpwrap.WithSecurity(security.Options{RedactFields: []string{"password"}}),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer instance.Dispose(context.Background())

	wrapped.AddTool(
		mcp.NewTool("login", mcp.WithString("password", mcp.Required())),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("ok"), nil
		},
	)

	fmt.Println("server wrapped")
}
