package observability

import (
	"strings"
	"testing"
)

func TestRedactForLog_NestedFields(t *testing.T) {
	payload := []byte(`{"user":"alice","password":"hunter2","nested":{"token":"abc","keep":"yes"}}`)
	out := RedactForLog(payload, []string{"password", "token"})
	s := string(out)
	if strings.Contains(s, "hunter2") || strings.Contains(s, "abc") {
		t.Errorf("secrets leaked into log payload: %s", s)
	}
	if !strings.Contains(s, "yes") {
		t.Errorf("unrelated field should survive redaction: %s", s)
	}
}

func TestRedactForLog_NoFieldsIsNoop(t *testing.T) {
	payload := []byte(`{"a":1}`)
	out := RedactForLog(payload, nil)
	if string(out) != string(payload) {
		t.Error("no redact fields should return payload unchanged")
	}
}

func TestRedactForLog_InvalidJSONPassthrough(t *testing.T) {
	payload := []byte("not json")
	out := RedactForLog(payload, []string{"password"})
	if string(out) != string(payload) {
		t.Error("invalid JSON should pass through unchanged")
	}
}
