// Package plugin defines the in-process plugin contract, the registry that
// orders plugins by dependency and priority, and the lifecycle manager that
// initializes, health-checks, and disposes them.
package plugin

import (
	"context"
	"time"

	"github.com/nox-hq/mcpwrap/hook"
)

// Plugin is the contract a caller of Wrap implements to extend the
// interception pipeline. Only Name and Version are required; every other
// capability is discovered by asserting the concrete value against the
// optional interfaces below, the same way the standard library probes for
// io.Closer or http.Flusher.
type Plugin interface {
	Name() string
	Version() string
}

// Prioritized plugins run earlier in the before phase and later in the
// after phase, relative to lower-priority plugins. Default priority is 0.
type Prioritized interface {
	Priority() int
}

// Dependent plugins declare other plugins (by Name) that must run before
// them in the before phase (and, symmetrically, after them in the after
// phase).
type Dependent interface {
	Dependencies() []string
}

// Configurable plugins expose a Config the Registry uses to scope which
// tools they participate in.
type Configurable interface {
	PluginConfig() Config
}

// Initializer plugins run Initialize once, serially, before any tool call
// reaches them.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// BeforeHook plugins participate in the before phase. A non-nil *hook.Result
// short-circuits the remaining before-hooks and the original handler.
type BeforeHook interface {
	BeforeToolCall(ctx *hook.Context) (*hook.Result, error)
}

// AfterHook plugins participate in the after phase, transforming the
// in-flight result.
type AfterHook interface {
	AfterToolCall(ctx *hook.Context, result *hook.Result) (*hook.Result, error)
}

// Scheduled plugins override the default ExecutionConfig (timeout, retries,
// fail-fast, exclusivity) their hooks run under. A plugin that only
// implements Dependent still gets its before/after ordering from the
// Registry; Scheduled is for the finer-grained, per-call scheduling knobs
// hook.ExecutionConfig exposes.
type Scheduled interface {
	HookConfig() hook.ExecutionConfig
}

// ErrorObserver plugins are notified of errors returned by their own hooks.
type ErrorObserver interface {
	OnError(err error)
}

// HealthChecker plugins report their own health on demand.
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}

// StatsProvider plugins expose their own ExecutionStats in addition to the
// ones the runtime tracks automatically around BeforeToolCall/AfterToolCall.
type StatsProvider interface {
	Stats() ExecutionStats
}

// Disposer plugins release resources when the wrapper is disposed.
type Disposer interface {
	Dispose(ctx context.Context) error
}

// ForceDisposer plugins support a best-effort, non-blocking teardown used
// when Dispose does not return within its timeout.
type ForceDisposer interface {
	ForceDispose()
}

// ResourceProvider plugins publish resources they currently hold, for
// aggregate reporting and leak detection at disposal.
type ResourceProvider interface {
	Resources() []ResourceInfo
}

// State is a plugin's position in its lifecycle state machine.
type State int

const (
	StateUnregistered State = iota
	StateRegistered
	StateInitializing
	StateReady
	StateDegraded
	StateDisposing
	StateDisposed
	// StateLeaked marks a plugin whose Dispose call exceeded its timeout and
	// had to be force-disposed (or, lacking ForceDisposer, simply abandoned).
	StateLeaked
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateDisposing:
		return "disposing"
	case StateDisposed:
		return "disposed"
	case StateLeaked:
		return "leaked"
	default:
		return "unknown"
	}
}

// Health is the outcome of the most recent HealthCheck call.
type Health int

const (
	HealthUnknown Health = iota
	HealthHealthy
	HealthDegraded
	HealthUnhealthy
)

func (h Health) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	case HealthUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Config scopes a plugin's participation to a subset of tools.
type Config struct {
	Enabled      bool
	IncludeTools map[string]struct{}
	ExcludeTools map[string]struct{}
	Options      map[string]any
}

// DefaultConfig returns an enabled, unrestricted Config.
func DefaultConfig() Config { return Config{Enabled: true} }

// ResourceInfo describes one resource a plugin currently holds.
type ResourceInfo struct {
	Type        string
	ID          string
	Description string
	AcquiredAt  time.Time
	SizeBytes   int64
	Metadata    map[string]string
}
