package plugin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LifecycleOptions configures timeouts and thresholds for Lifecycle.
type LifecycleOptions struct {
	DisposalTimeoutMs                int
	HealthCheckTimeoutMs             int
	DegradedAfterConsecutiveUnhealthy int
}

// DefaultLifecycleOptions mirrors the defaults named in the interception
// layer's design: 5s per-plugin disposal budget, 2s health-check budget,
// three consecutive unhealthy results before a plugin is sidelined.
func DefaultLifecycleOptions() LifecycleOptions {
	return LifecycleOptions{
		DisposalTimeoutMs:                  5000,
		HealthCheckTimeoutMs:               2000,
		DegradedAfterConsecutiveUnhealthy: 3,
	}
}

// Lifecycle initializes, health-checks, and disposes the plugins held by a
// Registry. It borrows plugin references scoped to a single call and never
// outlives the Registry it was built from.
type Lifecycle struct {
	Registry *Registry
	Options  LifecycleOptions
}

// NewLifecycle returns a Lifecycle bound to registry with default options.
func NewLifecycle(registry *Registry) *Lifecycle {
	return &Lifecycle{Registry: registry, Options: DefaultLifecycleOptions()}
}

// Initialize runs each plugin's Initialize (if implemented) serially in
// ResolvedOrder. On the first failure, every plugin initialized so far is
// disposed in reverse order before the wrapped error is returned.
func (l *Lifecycle) Initialize(ctx context.Context) error {
	order, err := l.Registry.ResolvedOrder()
	if err != nil {
		return fmt.Errorf("plugin: cannot initialize, %w", err)
	}

	var initialized []string
	for _, name := range order {
		l.Registry.setState(name, StateInitializing)
		p, ok := l.Registry.Get(name)
		if !ok {
			continue
		}
		if initer, ok := p.(Initializer); ok {
			if err := initer.Initialize(ctx); err != nil {
				l.Registry.setState(name, StateDegraded)
				l.rollback(ctx, initialized)
				return fmt.Errorf("plugin: %q failed to initialize: %w", name, err)
			}
		}
		l.Registry.setState(name, StateReady)
		initialized = append(initialized, name)
	}
	return nil
}

func (l *Lifecycle) rollback(ctx context.Context, initialized []string) {
	for i := len(initialized) - 1; i >= 0; i-- {
		name := initialized[i]
		p, ok := l.Registry.Get(name)
		if !ok {
			continue
		}
		if d, ok := p.(Disposer); ok {
			disposeCtx, cancel := context.WithTimeout(ctx, l.disposalTimeout())
			_ = d.Dispose(disposeCtx)
			cancel()
		}
		l.Registry.setState(name, StateDisposed)
	}
}

// Dispose disposes every plugin in reverse resolved order, each bounded by
// DisposalTimeoutMs. A plugin that does not finish within that timeout is
// force-disposed if it implements ForceDisposer, and in either case marked
// Leaked; disposal continues with the rest. Errors from individual plugins
// (including timeouts) are joined, never fatal to the loop.
func (l *Lifecycle) Dispose(ctx context.Context) error {
	order, err := l.Registry.ResolvedOrder()
	if err != nil {
		order = l.Registry.Names()
	}

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		l.Registry.setState(name, StateDisposing)
		p, ok := l.Registry.Get(name)
		if !ok {
			continue
		}
		disposer, ok := p.(Disposer)
		if !ok {
			l.Registry.setState(name, StateDisposed)
			continue
		}

		disposeCtx, cancel := context.WithTimeout(ctx, l.disposalTimeout())
		done := make(chan error, 1)
		go func() { done <- disposer.Dispose(disposeCtx) }()

		select {
		case err := <-done:
			cancel()
			if err != nil {
				errs = append(errs, fmt.Errorf("plugin %q: %w", name, err))
			}
			l.Registry.setState(name, StateDisposed)
		case <-disposeCtx.Done():
			cancel()
			if forcer, ok := p.(ForceDisposer); ok {
				forcer.ForceDispose()
			}
			l.Registry.setState(name, StateLeaked)
			errs = append(errs, fmt.Errorf("plugin %q: disposal timed out", name))
		}
	}
	return errors.Join(errs...)
}

func (l *Lifecycle) disposalTimeout() time.Duration {
	ms := l.Options.DisposalTimeoutMs
	if ms <= 0 {
		ms = DefaultLifecycleOptions().DisposalTimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

func (l *Lifecycle) healthTimeout() time.Duration {
	ms := l.Options.HealthCheckTimeoutMs
	if ms <= 0 {
		ms = DefaultLifecycleOptions().HealthCheckTimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

func (l *Lifecycle) degradedThreshold() int {
	n := l.Options.DegradedAfterConsecutiveUnhealthy
	if n <= 0 {
		n = DefaultLifecycleOptions().DegradedAfterConsecutiveUnhealthy
	}
	return n
}

// HealthCheck runs HealthCheck on every plugin that implements HealthChecker,
// called on demand only (never on an internal timer). A plugin not
// implementing HealthChecker is reported Unknown and never transitions to
// Degraded on that basis alone.
func (l *Lifecycle) HealthCheck(ctx context.Context) map[string]Health {
	out := make(map[string]Health)
	for _, name := range l.Registry.Names() {
		p, ok := l.Registry.Get(name)
		if !ok {
			continue
		}
		checker, ok := p.(HealthChecker)
		if !ok {
			out[name] = HealthUnknown
			continue
		}

		hctx, cancel := context.WithTimeout(ctx, l.healthTimeout())
		done := make(chan bool, 1)
		go func() { done <- checker.HealthCheck(hctx) }()

		var h Health
		select {
		case healthy := <-done:
			if healthy {
				h = HealthHealthy
			} else {
				h = HealthUnhealthy
			}
		case <-hctx.Done():
			h = HealthUnknown
		}
		cancel()

		l.recordHealth(name, h)
		out[name] = h
	}
	return out
}

func (l *Lifecycle) recordHealth(name string, h Health) {
	l.Registry.mu.RLock()
	rp, ok := l.Registry.byName[name]
	l.Registry.mu.RUnlock()
	if !ok {
		return
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.health = h
	if h == HealthUnhealthy || h == HealthUnknown {
		rp.unhealthyStreak++
		if rp.unhealthyStreak >= l.degradedThreshold() && rp.state == StateReady {
			rp.state = StateDegraded
		}
	} else {
		rp.unhealthyStreak = 0
		if rp.state == StateDegraded {
			rp.state = StateReady
		}
	}
}

// ResourceUsage aggregates every plugin's published Resources, plus one
// synthetic {Type: "plugin"} entry per registered plugin.
func (l *Lifecycle) ResourceUsage() []ResourceInfo {
	var out []ResourceInfo
	for _, name := range l.Registry.Names() {
		p, ok := l.Registry.Get(name)
		if !ok {
			continue
		}
		out = append(out, ResourceInfo{Type: "plugin", ID: name, Description: "registered plugin"})
		if rp, ok := p.(ResourceProvider); ok {
			for _, res := range rp.Resources() {
				if res.ID == "" {
					// A plugin that reports a resource without an identifier still
					// needs one that is stable enough to diff across snapshots.
					res.ID = uuid.NewString()
				}
				out = append(out, res)
			}
		}
	}
	return out
}
