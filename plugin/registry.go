package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// ErrDuplicateName is returned by Register when a plugin with the same Name
// is already registered.
var ErrDuplicateName = errors.New("plugin: duplicate name")

// ErrInvalidDependency is returned by Register when a plugin declares itself
// as one of its own dependencies.
var ErrInvalidDependency = errors.New("plugin: invalid dependency")

// DependencyCycleError is returned by ResolvedOrder when the dependency
// graph cannot be topologically sorted.
type DependencyCycleError struct {
	Cycle []string
}

func (e *DependencyCycleError) Error() string {
	return fmt.Sprintf("plugin: dependency cycle: %v", e.Cycle)
}

// MissingDependencyError is returned by ResolvedOrder when a registered
// plugin declares a dependency on a name that is not itself registered.
type MissingDependencyError struct {
	Plugin    string
	DependsOn string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("plugin: %q depends on unregistered plugin %q", e.Plugin, e.DependsOn)
}

// registered is the Registry's internal record for one plugin.
type registered struct {
	plugin Plugin
	name   string

	mu     sync.RWMutex
	state  State
	health Health
	config Config
	stats  *ExecutionStats

	unhealthyStreak int
}

// Registry holds registered plugins and resolves the order hooks run in.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*registered
	order   []string // registration order, as returned by Names
	cached  atomic.Pointer[[]string]

	// GlobalPriority is the priority assigned to the synthetic "__global__"
	// hook set installed via WithHooks, for tie-break purposes only; the
	// Registry itself never schedules the global hooks.
	GlobalPriority int
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*registered)}
}

// Register adds a plugin. config.Enabled defaults to true when the plugin
// does not implement Configurable.
func (r *Registry) Register(p Plugin) error {
	name := p.Name()
	if name == "" {
		return fmt.Errorf("plugin: empty name")
	}

	deps := dependenciesOf(p)
	for _, d := range deps {
		if d == name {
			return ErrInvalidDependency
		}
	}

	cfg := DefaultConfig()
	if c, ok := p.(Configurable); ok {
		cfg = c.PluginConfig()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return ErrDuplicateName
	}
	r.byName[name] = &registered{
		plugin: p,
		name:   name,
		state:  StateRegistered,
		health: HealthUnknown,
		config: cfg,
		stats:  NewExecutionStats(),
	}
	r.order = append(r.order, name)
	r.invalidate()
	return nil
}

// Unregister removes a plugin. Reports false if no such plugin existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; !ok {
		return false
	}
	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.invalidate()
	return true
}

// invalidate must be called with mu held.
func (r *Registry) invalidate() { r.cached.Store(nil) }

// Get returns the registered plugin by name.
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rp, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return rp.plugin, true
}

// Names returns every registered plugin's name in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// ResolvedOrder returns the before-phase order: topological (dependencies
// before dependents), with ties within a topological layer broken by
// Priority descending then Name ascending. The after-phase order is simply
// this slice reversed by the caller.
func (r *Registry) ResolvedOrder() ([]string, error) {
	if cached := r.cached.Load(); cached != nil {
		return append([]string(nil), *cached...), nil
	}

	r.mu.RLock()
	type node struct {
		name     string
		priority int
		deps     []string
	}
	nodes := make(map[string]*node, len(r.byName))
	for name, rp := range r.byName {
		nodes[name] = &node{name: name, priority: priorityOf(rp.plugin), deps: dependenciesOf(rp.plugin)}
	}
	r.mu.RUnlock()

	// in-degree: number of unresolved dependencies each node still has.
	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	var missing []*MissingDependencyError
	for name, n := range nodes {
		count := 0
		for _, d := range n.deps {
			if _, ok := nodes[d]; ok {
				count++
				dependents[d] = append(dependents[d], name)
				continue
			}
			missing = append(missing, &MissingDependencyError{Plugin: name, DependsOn: d})
		}
		indegree[name] = count
	}
	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool {
			if missing[i].Plugin != missing[j].Plugin {
				return missing[i].Plugin < missing[j].Plugin
			}
			return missing[i].DependsOn < missing[j].DependsOn
		})
		return nil, missing[0]
	}

	var ready []*node
	for name, n := range nodes {
		if indegree[name] == 0 {
			ready = append(ready, n)
		}
	}

	var resolved []string
	for len(resolved) < len(nodes) {
		if len(ready) == 0 {
			done := make(map[string]bool, len(resolved))
			for _, n := range resolved {
				done[n] = true
			}
			var left []string
			for name := range nodes {
				if !done[name] {
					left = append(left, name)
				}
			}
			sort.Strings(left)
			return nil, &DependencyCycleError{Cycle: left}
		}
		sort.Slice(ready, func(i, j int) bool {
			if ready[i].priority != ready[j].priority {
				return ready[i].priority > ready[j].priority
			}
			return ready[i].name < ready[j].name
		})
		next := ready[0]
		ready = ready[1:]
		resolved = append(resolved, next.name)

		for _, dep := range dependents[next.name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, nodes[dep])
			}
		}
	}

	out := append([]string(nil), resolved...)
	r.cached.Store(&out)
	return append([]string(nil), out...), nil
}

// EnabledFor reports whether the named plugin should participate in hooks
// for toolName right now (config scoping + Degraded state).
func (r *Registry) EnabledFor(name, toolName string) bool {
	r.mu.RLock()
	rp, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	rp.mu.RLock()
	defer rp.mu.RUnlock()
	if !rp.config.Enabled || rp.state == StateDegraded || rp.state == StateDisposed || rp.state == StateDisposing {
		return false
	}
	if len(rp.config.IncludeTools) > 0 {
		if _, ok := rp.config.IncludeTools[toolName]; !ok {
			return false
		}
	}
	if _, excluded := rp.config.ExcludeTools[toolName]; excluded {
		return false
	}
	return true
}

// State returns the named plugin's current lifecycle state.
func (r *Registry) State(name string) (State, bool) {
	r.mu.RLock()
	rp, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return StateUnregistered, false
	}
	rp.mu.RLock()
	defer rp.mu.RUnlock()
	return rp.state, true
}

// setState transitions the named plugin's lifecycle state.
func (r *Registry) setState(name string, s State) {
	r.mu.RLock()
	rp, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return
	}
	rp.mu.Lock()
	rp.state = s
	rp.mu.Unlock()
}

// Health returns the named plugin's last-known health.
func (r *Registry) Health(name string) (Health, bool) {
	r.mu.RLock()
	rp, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return HealthUnknown, false
	}
	rp.mu.RLock()
	defer rp.mu.RUnlock()
	return rp.health, true
}

// Stats returns the named plugin's ExecutionStats, for recording or
// snapshotting.
func (r *Registry) Stats(name string) (*ExecutionStats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rp, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return rp.stats, true
}

// AllStats returns every registered plugin's name and Snapshot.
func (r *Registry) AllStats() map[string]Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Snapshot, len(r.byName))
	for name, rp := range r.byName {
		out[name] = rp.stats.Snapshot()
	}
	return out
}

func priorityOf(p Plugin) int {
	if pr, ok := p.(Prioritized); ok {
		return pr.Priority()
	}
	return 0
}

func dependenciesOf(p Plugin) []string {
	if d, ok := p.(Dependent); ok {
		return d.Dependencies()
	}
	return nil
}
