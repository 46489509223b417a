package mcpwrap

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestToolSchema_CapturesRequiredAndProperties(t *testing.T) {
	tool := mcp.NewTool("greet",
		mcp.WithString("name", mcp.Required()),
	)
	schema := toolSchema(tool)
	if schema["type"] == "" {
		t.Error("expected a non-empty schema type")
	}
	if _, ok := schema["properties"]; !ok {
		t.Error("expected properties to be present")
	}
}

func TestToMCPResult_RoundTripsThroughFromMCPResult(t *testing.T) {
	original := &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "hello"}},
		IsError: false,
	}
	hr := fromMCPResult(original)
	if len(hr.Content) != 1 || hr.Content[0].Text != "hello" {
		t.Fatalf("unexpected hook.Result from conversion: %+v", hr)
	}

	back := toMCPResult(hr)
	if len(back.Content) != 1 {
		t.Fatalf("expected one content part, got %d", len(back.Content))
	}
	tc, ok := back.Content[0].(mcp.TextContent)
	if !ok || tc.Text != "hello" {
		t.Fatalf("round-trip lost content: %+v", back.Content[0])
	}
}

func TestToMCPResult_NilResultIsEmptySuccess(t *testing.T) {
	res := toMCPResult(nil)
	if res.IsError {
		t.Error("nil hook.Result should not convert to an error result")
	}
	if len(res.Content) != 0 {
		t.Errorf("expected no content, got %v", res.Content)
	}
}

func TestWrapperServer_ImplementsInstanceHolder(t *testing.T) {
	fs := newFakeServer()
	wrapped, inst, err := Wrap(fs)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	defer inst.Dispose(context.Background())

	holder, ok := wrapped.(instanceHolder)
	if !ok {
		t.Fatal("wrapperServer should implement instanceHolder")
	}
	if holder.mcpwrapInstance() != inst {
		t.Error("mcpwrapInstance should return the Instance Wrap returned")
	}
}
