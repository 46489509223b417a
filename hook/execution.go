package hook

import (
	"context"
	"errors"
	"reflect"
	"time"

	"golang.org/x/sync/errgroup"
)

// Phase identifies which half of the pipeline a set of hooks belongs to.
type Phase int

const (
	Before Phase = iota
	After
)

// HookFunc is one plugin's (or the global hook set's) contribution to a
// phase. For Before, current is nil on entry; a non-nil returned Result
// short-circuits. For After, current is the in-flight result to transform.
type HookFunc func(ctx context.Context, callCtx *Context, current *Result) (*Result, error)

// Retryable is implemented by errors that the ExecutionManager may retry
// according to a hook's MaxRetries.
type Retryable interface {
	Retryable() bool
}

// ScheduledHook is one hook ready to be dispatched by the ExecutionManager.
type ScheduledHook struct {
	ID       string
	Priority int
	Config   ExecutionConfig
	Run      HookFunc
}

// OutcomeKind classifies how a scheduled hook's invocation concluded.
type OutcomeKind string

const (
	OutcomeSuccess        OutcomeKind = "success"
	OutcomeFailed         OutcomeKind = "failed"
	OutcomeSkipped        OutcomeKind = "skipped"
	OutcomeTimeout        OutcomeKind = "timeout"
	OutcomeCancelled      OutcomeKind = "cancelled"
	OutcomeShortCircuited OutcomeKind = "short_circuited"
)

// HookOutcome records one hook's contribution to a phase run.
type HookOutcome struct {
	ID       string
	Result   *Result
	Err      error
	Duration time.Duration
	Outcome  OutcomeKind
}

// MissingDependency describes a dependency edge that names a hook not
// present in the scheduled set.
type MissingDependency struct {
	HookID   string
	DependsOn string
}

// ExecutionManager schedules a phase's hooks under Serial, Parallel, or
// Hybrid mode, enforcing per-hook timeouts, retries, and dependency
// ordering/exclusivity.
type ExecutionManager struct {
	MaxParallelism int
}

// NewExecutionManager returns an ExecutionManager with no parallelism cap
// (bounded only by the number of hooks in a given phase).
func NewExecutionManager() *ExecutionManager { return &ExecutionManager{} }

// ValidateDependencies reports dependency cycles and references to hooks
// absent from items, without executing anything.
func (m *ExecutionManager) ValidateDependencies(items []ScheduledHook) (cycles [][]string, missing []MissingDependency) {
	index := make(map[string]bool, len(items))
	for _, it := range items {
		index[it.ID] = true
	}
	adj := make(map[string][]string, len(items))
	for _, it := range items {
		for _, d := range it.Config.Dependencies {
			if !index[d.HookID] {
				missing = append(missing, MissingDependency{HookID: it.ID, DependsOn: d.HookID})
				continue
			}
			if d.Kind == DependencyBefore || d.Kind == DependencyAfter {
				adj[it.ID] = append(adj[it.ID], d.HookID)
			}
		}
	}
	cycles = findCycles(items, adj)
	return cycles, missing
}

// Run executes items for the given phase and mode. For Before in Serial
// mode, the first hook to produce a non-nil Result short-circuits the
// remainder. In Parallel mode every hook runs until it returns or times out
// (a Result from one hook does not cancel the others), and among the hooks
// that produced a Result the one with higher Priority, then lexicographically
// smaller ID, wins. In Hybrid mode the Result of the earliest-scheduled
// component wins. For After, every hook runs serially and each sees the prior
// hook's Result; a Result with no content and IsError unset is ignored and
// the prior Result kept.
func (m *ExecutionManager) Run(ctx context.Context, phase Phase, mode Mode, items []ScheduledHook, callCtx *Context, seed *Result) ([]HookOutcome, *Result, error) {
	switch mode {
	case Parallel:
		return m.runParallel(ctx, phase, items, callCtx, seed)
	case Hybrid:
		return m.runHybrid(ctx, phase, items, callCtx, seed)
	default:
		return m.runSerial(ctx, phase, items, callCtx, seed)
	}
}

func (m *ExecutionManager) runSerial(ctx context.Context, phase Phase, items []ScheduledHook, callCtx *Context, seed *Result) ([]HookOutcome, *Result, error) {
	current := seed
	outcomes := make([]HookOutcome, 0, len(items))
	for _, it := range items {
		if ctx.Err() != nil {
			outcomes = append(outcomes, HookOutcome{ID: it.ID, Outcome: OutcomeCancelled, Err: ctx.Err()})
			continue
		}
		res, err, outcome, dur := m.invokeWithRetry(ctx, it, callCtx, current)
		outcomes = append(outcomes, HookOutcome{ID: it.ID, Result: res, Err: err, Duration: dur, Outcome: outcome})
		if phase == Before && res != nil && err == nil {
			return outcomes, res, nil
		}
		if phase == After && err == nil && res != nil && !(res.Empty() && !res.IsError) {
			current = res
		}
		if err != nil && it.Config.FailFast {
			return outcomes, current, err
		}
	}
	return outcomes, current, nil
}

func (m *ExecutionManager) runParallel(ctx context.Context, phase Phase, items []ScheduledHook, callCtx *Context, seed *Result) ([]HookOutcome, *Result, error) {
	if phase == After {
		// After-hooks transform a shared, evolving result; true concurrency
		// would race on `current`, so Parallel degrades to the same
		// sequential application Hybrid's intra-SCC phase uses.
		return m.runSerial(ctx, phase, items, callCtx, seed)
	}

	baseline := callCtx.CloneArgs()

	limit := len(items)
	if m.MaxParallelism > 0 && m.MaxParallelism < limit {
		limit = m.MaxParallelism
	}
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	outcomes := make([]HookOutcome, len(items))
	deltas := make([]map[string]argDelta, len(items))
	type winner struct {
		idx int
		res *Result
	}
	winners := make(chan winner, len(items))

	for i, it := range items {
		i, it := i, it
		g.Go(func() error {
			// Each hook gets its own copy of Args: two hooks dispatched
			// together must never read or write through the same map.
			fork := callCtx.Fork()
			res, err, outcome, dur := m.invokeWithRetry(gctx, it, fork, nil)
			outcomes[i] = HookOutcome{ID: it.ID, Result: res, Err: err, Duration: dur, Outcome: outcome}
			deltas[i] = diffArgs(baseline, fork.CloneArgs())
			if res != nil && err == nil {
				winners <- winner{idx: i, res: res}
			}
			return nil
		})
	}
	_ = g.Wait()
	close(winners)

	applyArgDeltas(callCtx, baseline, deltas)

	var best *winner
	for w := range winners {
		w := w
		if best == nil {
			best = &w
			continue
		}
		bi, wi := items[best.idx], items[w.idx]
		if wi.Priority > bi.Priority || (wi.Priority == bi.Priority && wi.ID < bi.ID) {
			best = &w
		}
	}
	if best == nil {
		return outcomes, seed, nil
	}
	for i := range outcomes {
		if i != best.idx && outcomes[i].Outcome == OutcomeSuccess {
			outcomes[i].Outcome = OutcomeCancelled
		}
	}
	outcomes[best.idx].Outcome = OutcomeShortCircuited
	return outcomes, best.res, nil
}

// argDelta is one key's change relative to a pre-dispatch baseline map: a new
// or updated value, or a removal.
type argDelta struct {
	removed bool
	value   any
}

func deltaEqual(a, b argDelta) bool {
	if a.removed != b.removed {
		return false
	}
	if a.removed {
		return true
	}
	return reflect.DeepEqual(a.value, b.value)
}

// diffArgs reports updated's changes relative to base: keys added or changed
// in value, and keys present in base but missing from updated.
func diffArgs(base, updated map[string]any) map[string]argDelta {
	deltas := make(map[string]argDelta)
	for k, v := range updated {
		if bv, ok := base[k]; !ok || !reflect.DeepEqual(bv, v) {
			deltas[k] = argDelta{value: v}
		}
	}
	for k := range base {
		if _, ok := updated[k]; !ok {
			deltas[k] = argDelta{removed: true}
		}
	}
	return deltas
}

// applyArgDeltas merges the per-hook diffs computed by concurrently
// dispatched forks back onto callCtx: a key changed identically by every
// hook that touched it is applied; a key two hooks changed differently is a
// conflict and is discarded, leaving the pre-dispatch baseline value in
// place, so that no hook's mutation can silently clobber another's under
// concurrent execution.
func applyArgDeltas(callCtx *Context, baseline map[string]any, deltas []map[string]argDelta) {
	merged := make(map[string]argDelta)
	conflicted := make(map[string]bool)
	for _, d := range deltas {
		for k, v := range d {
			if prev, ok := merged[k]; ok {
				if !deltaEqual(prev, v) {
					conflicted[k] = true
				}
				continue
			}
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		return
	}

	final := deepCopyMap(baseline)
	for k, d := range merged {
		if conflicted[k] {
			continue
		}
		if d.removed {
			delete(final, k)
		} else {
			final[k] = d.value
		}
	}
	callCtx.SetArgs(final)
}

func (m *ExecutionManager) runHybrid(ctx context.Context, phase Phase, items []ScheduledHook, callCtx *Context, seed *Result) ([]HookOutcome, *Result, error) {
	index := make(map[string]int, len(items))
	for i, it := range items {
		index[it.ID] = i
	}
	adj := make([][]int, len(items))
	for i, it := range items {
		for _, d := range it.Config.Dependencies {
			j, ok := index[d.HookID]
			if !ok {
				continue
			}
			adj[i] = append(adj[i], j)
			if d.Kind == DependencyExclusive {
				adj[j] = append(adj[j], i)
			}
		}
	}
	sccs := tarjanSCC(adj)

	if phase == After {
		// Symmetric collapse to Serial; After never short-circuits, so SCC
		// partitioning buys nothing but complexity.
		return m.runSerial(ctx, phase, items, callCtx, seed)
	}

	baseline := callCtx.CloneArgs()

	// Each SCC runs serially internally; independent SCCs run in parallel.
	outcomes := make([]HookOutcome, len(items))
	deltas := make([]map[string]argDelta, len(sccs))
	g, gctx := errgroup.WithContext(ctx)
	type sccResult struct {
		order int
		res   *Result
	}
	results := make(chan sccResult, len(sccs))
	for order, scc := range sccs {
		order, scc := order, scc
		sub := make([]ScheduledHook, len(scc))
		for k, idx := range scc {
			sub[k] = items[idx]
		}
		g.Go(func() error {
			// Hooks within one SCC still see each other's mutations (they
			// run serially against the same fork); across SCCs, each group
			// gets its own copy so concurrent groups never share a map.
			fork := callCtx.Fork()
			subOutcomes, res, _ := m.runSerial(gctx, phase, sub, fork, nil)
			for k, idx := range scc {
				outcomes[idx] = subOutcomes[k]
			}
			deltas[order] = diffArgs(baseline, fork.CloneArgs())
			if res != nil {
				results <- sccResult{order: order, res: res}
			}
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	applyArgDeltas(callCtx, baseline, deltas)

	var best *sccResult
	for r := range results {
		r := r
		if best == nil || r.order < best.order {
			best = &r
		}
	}
	if best == nil {
		return outcomes, seed, nil
	}
	return outcomes, best.res, nil
}

func (m *ExecutionManager) invokeWithRetry(ctx context.Context, it ScheduledHook, callCtx *Context, current *Result) (*Result, error, OutcomeKind, time.Duration) {
	attempts := it.Config.MaxRetries + 1
	var lastErr error
	var lastOutcome OutcomeKind
	var lastDur time.Duration
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			callCtx.SetMeta("isRetry", true)
			callCtx.SetMeta("retryAttempt", attempt)
		}
		res, err, outcome, dur := m.invokeOnce(ctx, it, callCtx, current)
		lastErr, lastOutcome, lastDur = err, outcome, dur
		if err == nil {
			return res, nil, outcome, dur
		}
		if !isRetryable(err, outcome) {
			return res, err, outcome, dur
		}
	}
	return nil, lastErr, lastOutcome, lastDur
}

func isRetryable(err error, outcome OutcomeKind) bool {
	if outcome == OutcomeTimeout {
		return true
	}
	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

func (m *ExecutionManager) invokeOnce(ctx context.Context, it ScheduledHook, callCtx *Context, current *Result) (*Result, error, OutcomeKind, time.Duration) {
	for _, cond := range it.Config.Conditions {
		if !cond(callCtx.ToolName, callCtx.Args) {
			return nil, nil, OutcomeSkipped, 0
		}
	}

	timeout := it.Config.Timeout
	if timeout <= 0 {
		timeout = DefaultExecutionConfig().Timeout
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type out struct {
		res *Result
		err error
	}
	done := make(chan out, 1)
	start := time.Now()
	go func() {
		res, err := it.Run(hctx, callCtx, current)
		done <- out{res, err}
	}()

	select {
	case o := <-done:
		dur := time.Since(start)
		if o.err != nil {
			return o.res, o.err, OutcomeFailed, dur
		}
		if o.res == nil && current == nil {
			return nil, nil, OutcomeSuccess, dur
		}
		return o.res, nil, OutcomeSuccess, dur
	case <-hctx.Done():
		callCtx.Cancel.Cancel(hctx.Err())
		return nil, hctx.Err(), OutcomeTimeout, time.Since(start)
	}
}

// findCycles returns any cycles in adj (hook -> its dependencies) via DFS.
func findCycles(items []ScheduledHook, adj map[string][]string) [][]string {
	const (white = iota
		gray
		black
	)
	color := make(map[string]int, len(items))
	var cycles [][]string
	var stack []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range adj[id] {
			switch color[dep] {
			case gray:
				// Found a cycle; extract the portion of the stack from dep.
				for i, s := range stack {
					if s == dep {
						cyc := append([]string(nil), stack[i:]...)
						cycles = append(cycles, append(cyc, dep))
						break
					}
				}
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}
	for _, it := range items {
		if color[it.ID] == white {
			visit(it.ID)
		}
	}
	return cycles
}

// tarjanSCC computes strongly-connected components of the graph described by
// adj (node index -> dependency indices), returned as slices of node
// indices, each inner slice one component.
func tarjanSCC(adj [][]int) [][]int {
	n := len(adj)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}
	var stack []int
	var sccs [][]int
	counter := 0

	var strongconnect func(v int)
	strongconnect = func(v int) {
		index[v] = counter
		low[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if index[w] == -1 {
				strongconnect(w)
				if low[w] < low[v] {
					low[v] = low[w]
				}
			} else if onStack[w] {
				if index[w] < low[v] {
					low[v] = index[w]
				}
			}
		}

		if low[v] == index[v] {
			var comp []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, comp)
		}
	}

	for v := 0; v < n; v++ {
		if index[v] == -1 {
			strongconnect(v)
		}
	}

	// Reverse so that components with no remaining dependents (sources in the
	// dependency-points-to-dependency graph) are scheduled first.
	for i, j := 0, len(sccs)-1; i < j; i, j = i+1, j-1 {
		sccs[i], sccs[j] = sccs[j], sccs[i]
	}
	return sccs
}
