package mcpwrap

import "fmt"

// ErrorKind classifies a PipelineError.
type ErrorKind string

const (
	// ValidationErrorKind: arguments failed schema validation before any
	// hook ran.
	ValidationErrorKind ErrorKind = "validation_error"
	// HookErrorKind: a hook returned an error; isolated, the call continues
	// unless the hook set FailFast.
	HookErrorKind ErrorKind = "hook_error"
	// HookTimeoutKind: a hook exceeded its configured timeout.
	HookTimeoutKind ErrorKind = "hook_timeout"
	// CallCapExceededKind: the wall-clock budget across before+handler+after
	// was exceeded.
	CallCapExceededKind ErrorKind = "call_cap_exceeded"
	// ShortCircuitKind is informational only; a before-hook intentionally
	// produced the final result. Never surfaced with IsError set on its own
	// account.
	ShortCircuitKind ErrorKind = "short_circuit"
	// HandlerErrorKind: the original tool handler returned an error or
	// panicked.
	HandlerErrorKind ErrorKind = "handler_error"
	// DisposalErrorKind: a plugin failed to dispose cleanly.
	DisposalErrorKind ErrorKind = "disposal_error"
	// DependencyErrorKind: a plugin's declared dependency cannot be
	// satisfied (missing or cyclic).
	DependencyErrorKind ErrorKind = "dependency_error"
	// PluginFatalKind: a plugin failed to initialize and aborted Wrap.
	PluginFatalKind ErrorKind = "plugin_fatal"
)

// PipelineError wraps a pipeline failure with its ErrorKind, so callers can
// use errors.As to branch on it without string matching.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	Plugin  string
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Plugin != "" {
		return fmt.Sprintf("mcpwrap: %s (plugin %q): %s", e.Kind, e.Plugin, e.Message)
	}
	return fmt.Sprintf("mcpwrap: %s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Cause }

func newPipelineError(kind ErrorKind, plugin string, cause error) *PipelineError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &PipelineError{Kind: kind, Message: msg, Plugin: plugin, Cause: cause}
}
