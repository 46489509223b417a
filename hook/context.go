// Package hook implements the per-call context, the before/after runner, and
// the execution scheduler (serial, parallel, hybrid) that together drive the
// interception pipeline a wrapped MCP server's tool calls pass through.
package hook

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// idSource produces monotonically increasing ULIDs so RequestID never repeats
// within a process, without reaching for a global dedup table.
var idSource = &monotonicSource{entropy: ulid.Monotonic(newEntropyReader(), 0)}

type monotonicSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func (m *monotonicSource) next(t time.Time) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(t), m.entropy)
	if err != nil {
		// ulid.Monotonic only errors on overflow after ~2^80 IDs within the
		// same millisecond; fall back to a fresh timestamp rather than panic.
		id, _ = ulid.New(ulid.Timestamp(time.Now()), m.entropy)
	}
	return id.String()
}

// ContentPart is one ordered piece of a tool call result.
type ContentPart struct {
	Type string
	Text string
	Data map[string]any
}

// CancellationSignal is the cooperative-cancellation primitive shared by every
// hook invoked for a single call. Hooks that honor ctx.Done() observe it
// through the context returned by Context(); only the pipeline invokes
// Cancel (the Runner, and the ExecutionManager when a hook times out).
type CancellationSignal struct {
	ctx    context.Context
	cancel context.CancelCauseFunc

	mu     sync.Mutex
	caused error
}

// NewCancellationSignal derives a cancellable context from parent.
func NewCancellationSignal(parent context.Context) *CancellationSignal {
	ctx, cancel := context.WithCancelCause(parent)
	return &CancellationSignal{ctx: ctx, cancel: cancel}
}

// Context returns the context hooks should select on.
func (c *CancellationSignal) Context() context.Context { return c.ctx }

// Cancel signals cancellation with cause. Safe to call more than once; only
// the first cause is retained.
func (c *CancellationSignal) Cancel(cause error) {
	c.mu.Lock()
	if c.caused == nil {
		c.caused = cause
	}
	c.mu.Unlock()
	c.cancel(cause)
}

// Cause returns the first cause passed to Cancel, or nil if not cancelled.
func (c *CancellationSignal) Cause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caused
}

// Context is the immutable-per-call bundle threaded through the pipeline.
// Args is mutable during the before phase and frozen once the original
// handler is about to be invoked; writes after that point are rejected.
type Context struct {
	ToolName  string
	Args      map[string]any
	Extra     map[string]any
	Metadata  map[string]any
	RequestID string
	StartedAt time.Time
	Cancel    *CancellationSignal

	mu     sync.RWMutex
	frozen bool
}

// NewContext builds a Context for a fresh tool call.
func NewContext(parent context.Context, toolName string, args, extra, globalMetadata map[string]any) *Context {
	md := make(map[string]any, len(globalMetadata))
	for k, v := range globalMetadata {
		md[k] = v
	}
	return &Context{
		ToolName:  toolName,
		Args:      args,
		Extra:     extra,
		Metadata:  md,
		RequestID: idSource.next(time.Now()),
		StartedAt: time.Now(),
		Cancel:    NewCancellationSignal(parent),
	}
}

// Freeze prevents further mutation of Args. Idempotent.
func (c *Context) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
}

// Frozen reports whether Args has been frozen.
func (c *Context) Frozen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frozen
}

// SetArgs replaces Args, honoring the freeze invariant. ok is false (and Args
// is left unchanged) if the context is frozen.
func (c *Context) SetArgs(args map[string]any) (ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return false
	}
	c.Args = args
	return true
}

// CloneArgs returns a deep-enough copy of Args suitable for diffing after
// concurrent (Parallel/Hybrid) hook dispatch.
func (c *Context) CloneArgs() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return deepCopyMap(c.Args)
}

// Fork returns an independent per-hook Context for concurrent (Parallel, or
// cross-SCC Hybrid) dispatch. Args and Metadata are private deep copies, so
// two hooks dispatched together never read or write through each other's
// map; ToolName, Extra, RequestID, StartedAt and Cancel are shared, since
// nothing concurrent writes them. The caller is responsible for diffing the
// fork's final Args against the pre-dispatch baseline and merging (or
// discarding, on conflict) the result back onto the original Context.
func (c *Context) Fork() *Context {
	c.mu.RLock()
	argsCopy := deepCopyMap(c.Args)
	frozen := c.frozen
	c.mu.RUnlock()

	mdCopy := make(map[string]any, len(c.Metadata))
	for k, v := range c.Metadata {
		mdCopy[k] = v
	}

	return &Context{
		ToolName:  c.ToolName,
		Args:      argsCopy,
		Extra:     c.Extra,
		Metadata:  mdCopy,
		RequestID: c.RequestID,
		StartedAt: c.StartedAt,
		Cancel:    c.Cancel,
		frozen:    frozen,
	}
}

func deepCopyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

// Elapsed returns the time since StartedAt.
func (c *Context) Elapsed() time.Duration { return time.Since(c.StartedAt) }

// SetMeta writes a key into Metadata safely from any goroutine; Parallel and
// Hybrid hook dispatch call this instead of writing Metadata directly.
func (c *Context) SetMeta(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Metadata[key] = value
}
