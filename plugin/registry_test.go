package plugin

import "testing"

type stubPlugin struct {
	name     string
	version  string
	priority int
	deps     []string
}

func (s *stubPlugin) Name() string      { return s.name }
func (s *stubPlugin) Version() string   { return s.version }
func (s *stubPlugin) Priority() int     { return s.priority }
func (s *stubPlugin) Dependencies() []string { return s.deps }

func TestRegistry_TopologicalOrderRespectsDependencies(t *testing.T) {
	r := NewRegistry()
	must(t, r.Register(&stubPlugin{name: "c", deps: []string{"b"}}))
	must(t, r.Register(&stubPlugin{name: "b", deps: []string{"a"}}))
	must(t, r.Register(&stubPlugin{name: "a"}))

	order, err := r.ResolvedOrder()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := []string{"a", "b", "c"}
	if !equalSlices(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestRegistry_PriorityTieBreakHigherFirst(t *testing.T) {
	r := NewRegistry()
	must(t, r.Register(&stubPlugin{name: "low", priority: 1}))
	must(t, r.Register(&stubPlugin{name: "high", priority: 10}))
	must(t, r.Register(&stubPlugin{name: "mid", priority: 5}))

	order, err := r.ResolvedOrder()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := []string{"high", "mid", "low"}
	if !equalSlices(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestRegistry_PriorityTieBrokenByNameAscending(t *testing.T) {
	r := NewRegistry()
	must(t, r.Register(&stubPlugin{name: "zebra"}))
	must(t, r.Register(&stubPlugin{name: "apple"}))

	order, err := r.ResolvedOrder()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := []string{"apple", "zebra"}
	if !equalSlices(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestRegistry_CycleDetected(t *testing.T) {
	r := NewRegistry()
	must(t, r.Register(&stubPlugin{name: "a", deps: []string{"b"}}))
	must(t, r.Register(&stubPlugin{name: "b", deps: []string{"a"}}))

	_, err := r.ResolvedOrder()
	if err == nil {
		t.Fatal("expected a dependency cycle error")
	}
	var cycleErr *DependencyCycleError
	if !asCycleError(err, &cycleErr) {
		t.Fatalf("err = %v, want *DependencyCycleError", err)
	}
}

func TestRegistry_MissingDependencyRejected(t *testing.T) {
	r := NewRegistry()
	must(t, r.Register(&stubPlugin{name: "a", deps: []string{"nonexistent"}}))

	_, err := r.ResolvedOrder()
	if err == nil {
		t.Fatal("expected a missing dependency error")
	}
	var missingErr *MissingDependencyError
	if !asMissingDependencyError(err, &missingErr) {
		t.Fatalf("err = %v, want *MissingDependencyError", err)
	}
	if missingErr.Plugin != "a" || missingErr.DependsOn != "nonexistent" {
		t.Errorf("err = %+v, want Plugin=a DependsOn=nonexistent", missingErr)
	}
}

func TestRegistry_DuplicateNameRejected(t *testing.T) {
	r := NewRegistry()
	must(t, r.Register(&stubPlugin{name: "dup"}))
	if err := r.Register(&stubPlugin{name: "dup"}); err != ErrDuplicateName {
		t.Errorf("err = %v, want ErrDuplicateName", err)
	}
}

func TestRegistry_SelfDependencyRejected(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubPlugin{name: "self", deps: []string{"self"}}); err != ErrInvalidDependency {
		t.Errorf("err = %v, want ErrInvalidDependency", err)
	}
}

func TestRegistry_UnregisterInvalidatesCache(t *testing.T) {
	r := NewRegistry()
	must(t, r.Register(&stubPlugin{name: "a"}))
	must(t, r.Register(&stubPlugin{name: "b"}))
	if _, err := r.ResolvedOrder(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	r.Unregister("a")
	order, err := r.ResolvedOrder()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if equalSlices(order, []string{"a", "b"}) {
		t.Error("cache should have been invalidated after Unregister")
	}
	if !equalSlices(order, []string{"b"}) {
		t.Errorf("order = %v, want [b]", order)
	}
}

func TestRegistry_EnabledForRespectsIncludeExclude(t *testing.T) {
	r := NewRegistry()
	must(t, r.Register(&configuredStub{stubPlugin: stubPlugin{name: "scoped"}, cfg: Config{
		Enabled:      true,
		IncludeTools: map[string]struct{}{"allowed": {}},
	}}))
	if !r.EnabledFor("scoped", "allowed") {
		t.Error("expected enabled for included tool")
	}
	if r.EnabledFor("scoped", "other") {
		t.Error("expected disabled for tool not in IncludeTools")
	}
}

type configuredStub struct {
	stubPlugin
	cfg Config
}

func (c *configuredStub) PluginConfig() Config { return c.cfg }

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func asCycleError(err error, target **DependencyCycleError) bool {
	ce, ok := err.(*DependencyCycleError)
	if ok {
		*target = ce
	}
	return ok
}

func asMissingDependencyError(err error, target **MissingDependencyError) bool {
	me, ok := err.(*MissingDependencyError)
	if ok {
		*target = me
	}
	return ok
}
