// Package security implements the validation, redaction, and execution-cap
// gate the interception layer applies around every tool call, plus a
// per-plugin rate limiter guarding against runaway hooks.
package security

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Options configures a Gate.
type Options struct {
	ValidateInputs     bool
	RedactFields       []string
	MaxExecutionTimeMs int
	RateLimitPerMinute int
}

// DefaultOptions disables input validation (schemas are optional) and sets a
// generous 30s execution cap with no redaction and no rate limit.
func DefaultOptions() Options {
	return Options{MaxExecutionTimeMs: 30000}
}

// Gate is the Security/Validation component: it validates arguments against
// a tool's declared schema, redacts sensitive fields before they reach
// plugin hooks (while sealing the originals for the real handler), and
// enforces a wall-clock cap across before+handler+after.
type Gate struct {
	mu   sync.RWMutex
	opts Options
}

// NewGate returns a Gate configured with opts.
func NewGate(opts Options) *Gate {
	return &Gate{opts: opts}
}

// SetOptions atomically replaces the Gate's configuration, for config-file
// hot-reload. Already-running calls finish against whichever options they
// read; nothing in flight is torn down.
func (g *Gate) SetOptions(opts Options) {
	g.mu.Lock()
	g.opts = opts
	g.mu.Unlock()
}

// Options returns the Gate's current configuration.
func (g *Gate) Options() Options {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.opts
}

// ValidationError is returned by ValidateArgs.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %q: %s", e.Field, e.Message)
}

// ValidateArgs checks required-field presence and coarse type shape against
// schema (sourced from the tool's declared JSON-Schema-ish input schema). A
// no-op when ValidateInputs is false or schema is nil.
func (g *Gate) ValidateArgs(args map[string]any, schema map[string]any) error {
	opts := g.Options()
	if !opts.ValidateInputs || schema == nil {
		return nil
	}

	for _, name := range requiredFields(schema["required"]) {
		if _, present := args[name]; !present {
			return &ValidationError{Field: name, Message: "required field missing"}
		}
	}

	props, _ := schema["properties"].(map[string]any)
	for name, rawProp := range props {
		val, present := args[name]
		if !present {
			continue
		}
		prop, ok := rawProp.(map[string]any)
		if !ok {
			continue
		}
		wantType, _ := prop["type"].(string)
		if wantType == "" {
			continue
		}
		if !typeMatches(val, wantType) {
			return &ValidationError{Field: name, Message: fmt.Sprintf("expected type %q", wantType)}
		}
	}
	return nil
}

// requiredFields normalizes a schema's "required" entry, accepting either
// []string (as mcp-go's ToolInputSchema exposes it) or []any (as a plain
// decoded-JSON schema would).
func requiredFields(raw any) []string {
	switch t := raw.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, r := range t {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func typeMatches(v any, want string) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	default:
		return true
	}
}

// Sealed holds the pre-redaction values for a Redact call, keyed by the
// slash-separated path the value was found at, so the original handler can see the
// real arguments while every plugin hook sees "[REDACTED]".
type Sealed struct {
	originals map[string]any
}

const redactedPlaceholder = "[REDACTED]"

// Redact returns a copy of args with any key in RedactFields (exact,
// case-sensitive match, applied recursively through nested maps and slices)
// replaced by "[REDACTED]", plus a Sealed value Unseal can use to recover
// the originals.
func (g *Gate) Redact(args map[string]any) (map[string]any, *Sealed) {
	sealed := &Sealed{originals: make(map[string]any)}
	redactFields := g.Options().RedactFields
	if len(redactFields) == 0 {
		return args, sealed
	}
	fields := make(map[string]struct{}, len(redactFields))
	for _, f := range redactFields {
		fields[f] = struct{}{}
	}
	redacted := redactValue(args, fields, "", sealed).(map[string]any)
	return redacted, sealed
}

func redactValue(v any, fields map[string]struct{}, path string, sealed *Sealed) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			childPath := path + "/" + k
			if _, match := fields[k]; match {
				sealed.originals[childPath] = val
				out[k] = redactedPlaceholder
				continue
			}
			out[k] = redactValue(val, fields, childPath, sealed)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = redactValue(e, fields, fmt.Sprintf("%s/%d", path, i), sealed)
		}
		return out
	default:
		return v
	}
}

// Unseal reconstitutes the true argument values from redacted using sealed,
// for use only on the path that invokes the original handler.
func (g *Gate) Unseal(sealed *Sealed, redacted map[string]any) map[string]any {
	if sealed == nil || len(sealed.originals) == 0 {
		return redacted
	}
	out := deepCopy(redacted).(map[string]any)
	for path, val := range sealed.originals {
		setAtPath(out, path, val)
	}
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}

func setAtPath(root map[string]any, path string, value any) {
	segs := splitPath(path)
	var cur any = root
	for i, seg := range segs {
		last := i == len(segs)-1
		switch node := cur.(type) {
		case map[string]any:
			if last {
				node[seg] = value
				return
			}
			cur = node[seg]
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return
			}
			if last {
				node[idx] = value
				return
			}
			cur = node[idx]
		default:
			return
		}
	}
}

func splitPath(path string) []string {
	var segs []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			if i > start {
				segs = append(segs, path[start:i])
			}
			start = i + 1
		}
	}
	if start < len(path) {
		segs = append(segs, path[start:])
	}
	return segs
}

// CapExceededError is returned by CheckCap.
type CapExceededError struct {
	ElapsedMs int64
	LimitMs   int
}

func (e *CapExceededError) Error() string {
	return fmt.Sprintf("call exceeded execution cap: %dms elapsed, limit %dms", e.ElapsedMs, e.LimitMs)
}

// CheckCap enforces the wall-clock budget covering before+handler+after.
func (g *Gate) CheckCap(startedAt time.Time) error {
	limit := g.Options().MaxExecutionTimeMs
	if limit <= 0 {
		return nil
	}
	elapsed := time.Since(startedAt).Milliseconds()
	if elapsed > int64(limit) {
		return &CapExceededError{ElapsedMs: elapsed, LimitMs: limit}
	}
	return nil
}
