package security

import (
	"testing"
	"time"
)

func TestGate_ValidateArgsRequiredField(t *testing.T) {
	g := NewGate(Options{ValidateInputs: true})
	schema := map[string]any{
		"required":   []any{"path"},
		"properties": map[string]any{"path": map[string]any{"type": "string"}},
	}
	if err := g.ValidateArgs(map[string]any{}, schema); err == nil {
		t.Error("expected missing-field validation error")
	}
	if err := g.ValidateArgs(map[string]any{"path": "ok"}, schema); err != nil {
		t.Errorf("unexpected err: %v", err)
	}
}

func TestGate_ValidateArgsTypeMismatch(t *testing.T) {
	g := NewGate(Options{ValidateInputs: true})
	schema := map[string]any{"properties": map[string]any{"count": map[string]any{"type": "number"}}}
	if err := g.ValidateArgs(map[string]any{"count": "not-a-number"}, schema); err == nil {
		t.Error("expected type mismatch error")
	}
}

func TestGate_ValidateArgsDisabledIsNoop(t *testing.T) {
	g := NewGate(Options{ValidateInputs: false})
	schema := map[string]any{"required": []any{"path"}}
	if err := g.ValidateArgs(map[string]any{}, schema); err != nil {
		t.Errorf("validation should be a no-op when disabled, got %v", err)
	}
}

func TestGate_RedactExactKeyMatchNested(t *testing.T) {
	g := NewGate(Options{RedactFields: []string{"password", "token"}})
	args := map[string]any{
		"username": "alice",
		"password": "hunter2",
		"nested": map[string]any{
			"token": "abc123",
			"other": "visible",
		},
	}
	redacted, sealed := g.Redact(args)

	if redacted["password"] != "[REDACTED]" {
		t.Errorf("password = %v, want redacted", redacted["password"])
	}
	nested := redacted["nested"].(map[string]any)
	if nested["token"] != "[REDACTED]" {
		t.Errorf("nested token = %v, want redacted", nested["token"])
	}
	if nested["other"] != "visible" {
		t.Errorf("unrelated nested field should be untouched, got %v", nested["other"])
	}
	if redacted["username"] != "alice" {
		t.Error("unrelated top-level field should be untouched")
	}

	unsealed := g.Unseal(sealed, redacted)
	if unsealed["password"] != "hunter2" {
		t.Errorf("unsealed password = %v, want hunter2", unsealed["password"])
	}
	unNested := unsealed["nested"].(map[string]any)
	if unNested["token"] != "abc123" {
		t.Errorf("unsealed nested token = %v, want abc123", unNested["token"])
	}
	// Original args map used to build redacted must remain untouched.
	if args["password"] != "hunter2" {
		t.Error("Redact must not mutate the original args map")
	}
}

func TestGate_RedactCaseSensitiveExactMatchOnly(t *testing.T) {
	g := NewGate(Options{RedactFields: []string{"password"}})
	args := map[string]any{"Password": "not-matched", "passwordPlus": "not-matched-either"}
	redacted, _ := g.Redact(args)
	if redacted["Password"] != "not-matched" {
		t.Error("redaction must be case-sensitive")
	}
	if redacted["passwordPlus"] != "not-matched-either" {
		t.Error("redaction must be exact-match, not substring")
	}
}

func TestGate_CheckCapExceeded(t *testing.T) {
	g := NewGate(Options{MaxExecutionTimeMs: 5})
	started := time.Now().Add(-50 * time.Millisecond)
	if err := g.CheckCap(started); err == nil {
		t.Error("expected cap exceeded error")
	}
}

func TestGate_CheckCapDisabledWhenZero(t *testing.T) {
	g := NewGate(Options{})
	started := time.Now().Add(-time.Hour)
	if err := g.CheckCap(started); err != nil {
		t.Errorf("zero cap should mean unlimited, got %v", err)
	}
}
