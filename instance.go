package mcpwrap

import (
	"context"
	"reflect"
	"sync"
	"weak"

	"github.com/mark3labs/mcp-go/server"

	"github.com/nox-hq/mcpwrap/observability"
	"github.com/nox-hq/mcpwrap/plugin"
	"github.com/nox-hq/mcpwrap/security"
)

// LifecycleEvent is one entry in an Instance's Events stream.
type LifecycleEvent struct {
	Kind  string // "starting", "started", "stopping", "stopped", "error"
	Error error
}

// Instance is the handle Wrap returns alongside the wrapped server: the
// accessor for disposal, health, resource usage, and performance stats.
type Instance struct {
	Registry  *plugin.Registry
	Lifecycle *plugin.Lifecycle
	Gate      *security.Gate
	Limiters  *security.Limiters
	Logger    *observability.Logger
	Stats     *observability.Stats

	events chan LifecycleEvent
	done   chan struct{}

	// installer builds the intercepted handler for one AddTool call; stored
	// here (rather than only on the wrapperServer returned to the caller) so
	// a later Wrap call that recovers this Instance via the weak-reference
	// registry can still produce a working wrapperServer.
	installer func(toolName string, schema map[string]any, original server.ToolHandlerFunc) server.ToolHandlerFunc

	mu       sync.Mutex
	disposed bool
}

func newInstance(registry *plugin.Registry, lc *plugin.Lifecycle, gate *security.Gate, limiters *security.Limiters, logger *observability.Logger, stats *observability.Stats) *Instance {
	return &Instance{
		Registry:  registry,
		Lifecycle: lc,
		Gate:      gate,
		Limiters:  limiters,
		Logger:    logger,
		Stats:     stats,
		events:    make(chan LifecycleEvent, 16),
		done:      make(chan struct{}),
	}
}

func (i *Instance) emit(kind string, err error) {
	select {
	case i.events <- LifecycleEvent{Kind: kind, Error: err}:
	default:
		// Events is a best-effort observability stream; a full buffer drops
		// the event rather than blocking the call path.
	}
}

// Events streams lifecycle transitions (Starting, Started, Stopping,
// Stopped, Error).
func (i *Instance) Events() <-chan LifecycleEvent { return i.events }

// Done closes when Dispose has run, for internal goroutines (e.g. the
// config-file watcher) that need to stop without competing with callers
// for a read off Events.
func (i *Instance) Done() <-chan struct{} { return i.done }

// Dispose disposes every registered plugin in reverse order and closes the
// Events channel. Safe to call more than once; subsequent calls are no-ops.
func (i *Instance) Dispose(ctx context.Context) error {
	i.mu.Lock()
	if i.disposed {
		i.mu.Unlock()
		return nil
	}
	i.disposed = true
	i.mu.Unlock()

	i.emit("stopping", nil)
	err := i.Lifecycle.Dispose(ctx)
	if err != nil {
		i.emit("error", err)
	}
	i.emit("stopped", nil)
	close(i.events)
	close(i.done)
	return err
}

// GetHealthStatus runs HealthCheck across all plugins on demand.
func (i *Instance) GetHealthStatus(ctx context.Context) map[string]plugin.Health {
	return i.Lifecycle.HealthCheck(ctx)
}

// GetResourceUsage aggregates every plugin's published resources.
func (i *Instance) GetResourceUsage() []plugin.ResourceInfo {
	return i.Lifecycle.ResourceUsage()
}

// GetPerformanceStats returns the current aggregated performance report.
func (i *Instance) GetPerformanceStats() observability.PerformanceReport {
	return i.Stats.Snapshot()
}

// --- idempotence + weak-reference lookup ---

// instanceHolder is implemented by the wrapper Wrap returns, so a second
// Wrap call on the same wrapper is detected cheaply via a type assertion
// instead of a map lookup.
type instanceHolder interface {
	mcpwrapInstance() *Instance
}

var (
	identityMu sync.Mutex
	identity   = map[weak.Pointer[byte]]*Instance{}
)

// serverIdentity returns a weak, GC-transparent key identifying the
// concrete object behind a ServerLike value. It never pins server alive:
// the map holds weak.Pointer keys, not the server itself.
func serverIdentity(server ServerLike) (weak.Pointer[byte], bool) {
	rv := reflect.ValueOf(server)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return weak.Pointer[byte]{}, false
	}
	return weak.Make((*byte)(rv.UnsafePointer())), true
}

// rememberInstance records server's identity -> inst so a later InstanceFor
// call on the original (un-wrapped) server reference can still find it.
func rememberInstance(server ServerLike, inst *Instance) {
	key, ok := serverIdentity(server)
	if !ok {
		return
	}
	identityMu.Lock()
	identity[key] = inst
	identityMu.Unlock()
}

// InstanceFor returns the Instance a prior Wrap call associated with server,
// whether server is the returned wrapper or the original pre-wrap value.
func InstanceFor(server ServerLike) (*Instance, bool) {
	if holder, ok := server.(instanceHolder); ok {
		return holder.mcpwrapInstance(), true
	}
	key, ok := serverIdentity(server)
	if !ok {
		return nil, false
	}
	identityMu.Lock()
	inst, ok := identity[key]
	identityMu.Unlock()
	return inst, ok
}
