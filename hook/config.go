package hook

import "time"

// Mode selects how a set of hooks with no ordering constraint between them
// is scheduled by the ExecutionManager.
type Mode int

const (
	// Serial runs hooks one at a time in resolved order.
	Serial Mode = iota
	// Parallel runs independent hooks concurrently via an errgroup.
	Parallel
	// Hybrid partitions hooks into strongly-connected components (Tarjan);
	// each component runs Serial internally, components run Parallel
	// relative to one another.
	Hybrid
)

func (m Mode) String() string {
	switch m {
	case Serial:
		return "serial"
	case Parallel:
		return "parallel"
	case Hybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// DependencyKind classifies an edge between two hooks.
type DependencyKind int

const (
	// DependencyBefore requires the named hook to run before this one.
	DependencyBefore DependencyKind = iota
	// DependencyAfter requires the named hook to run after this one.
	DependencyAfter
	// DependencyExclusive forbids the two hooks from running concurrently
	// within the same call, without otherwise ordering them.
	DependencyExclusive
)

// Dependency is one ordering or exclusivity constraint on a hook.
type Dependency struct {
	HookID   string
	Kind     DependencyKind
	Optional bool
}

// Predicate decides whether a hook runs for a given call. Returning false
// skips the hook without counting as a failure.
type Predicate func(toolName string, args map[string]any) bool

// ExecutionConfig configures how a single hook participates in scheduling.
type ExecutionConfig struct {
	Mode         Mode
	Timeout      time.Duration
	MaxRetries   int
	FailFast     bool
	ReverseAfter *bool // nil means "use the phase default" (true)
	Conditions   []Predicate
	Dependencies []Dependency
}

// ReversesAfter reports whether this hook should run in reverse order during
// the after phase, defaulting to true (the documented default) when unset.
func (c ExecutionConfig) ReversesAfter() bool {
	if c.ReverseAfter == nil {
		return true
	}
	return *c.ReverseAfter
}

// DefaultExecutionConfig returns the zero-value-safe defaults: Serial mode,
// a 5 second timeout, no retries.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{Mode: Serial, Timeout: 5 * time.Second}
}
