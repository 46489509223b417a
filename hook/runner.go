package hook

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// OriginalHandler is the tool's real implementation, invoked between the
// before and after phases unless a before-hook short-circuits.
type OriginalHandler func(ctx context.Context, callCtx *Context) (*Result, error)

// Observer receives lifecycle events from a Runner. observability.Logger
// satisfies this structurally; Runner never imports that package.
type Observer interface {
	CallStarted(callCtx *Context)
	HookExecuted(callCtx *Context, phase Phase, hookID string, outcome OutcomeKind, dur time.Duration, err error)
	CallEnded(callCtx *Context, result *Result, shortCircuited bool)
	InvariantRepaired(callCtx *Context)
}

type noopObserver struct{}

func (noopObserver) CallStarted(*Context)                                                 {}
func (noopObserver) HookExecuted(*Context, Phase, string, OutcomeKind, time.Duration, error) {}
func (noopObserver) CallEnded(*Context, *Result, bool)                                     {}
func (noopObserver) InvariantRepaired(*Context)                                            {}

// Runner executes the before/original-handler/after pipeline for one tool
// call, given an already-resolved, already-filtered hook set for each phase.
type Runner struct {
	Exec     *ExecutionManager
	Observer Observer
	Debug    bool

	// CapCheck, if set, is consulted after the before phase, after the
	// original handler, and after the after phase, against the wall-clock
	// budget covering the whole before+handler+after sequence. A non-nil
	// error ends the call immediately with an error Result and cancels
	// callCtx.Cancel, so any hook still honoring ctx.Done() unwinds.
	CapCheck func(startedAt time.Time) error
}

// NewRunner builds a Runner with a default ExecutionManager and a no-op
// Observer; callers typically override both via the struct fields.
func NewRunner() *Runner {
	return &Runner{Exec: NewExecutionManager(), Observer: noopObserver{}}
}

func (r *Runner) observer() Observer {
	if r.Observer == nil {
		return noopObserver{}
	}
	return r.Observer
}

// Run executes one call's full pipeline. before/after are the resolved,
// filtered ScheduledHook lists for this tool (a global hook configured via
// WithHooks is just another entry, conventionally named "__global__").
func (r *Runner) Run(ctx context.Context, callCtx *Context, before, after []ScheduledHook, beforeMode, afterMode Mode, original OriginalHandler) (result *Result, shortCircuited bool, err error) {
	obs := r.observer()
	obs.CallStarted(callCtx)
	defer func() {
		obs.CallEnded(callCtx, result, shortCircuited)
	}()

	hctx := callCtx.Cancel.Context()

	beforeOutcomes, short, _ := r.Exec.Run(hctx, Before, beforeMode, before, callCtx, nil)
	for _, o := range beforeOutcomes {
		obs.HookExecuted(callCtx, Before, o.ID, o.Outcome, o.Duration, o.Err)
	}

	callCtx.Freeze()

	// The cap covers before+handler+after as a whole, so it is checked after
	// every phase step, including the before phase a short-circuit result
	// came from; a short-circuit never bypasses it.
	if capped := r.checkCap(callCtx); capped != nil {
		return capped, true, nil
	}

	var current *Result
	if short != nil {
		current = short
		shortCircuited = true
	} else {
		current = r.invokeOriginal(hctx, callCtx, original)
	}

	if capped := r.checkCap(callCtx); capped != nil {
		return capped, shortCircuited, nil
	}

	afterOutcomes, final, _ := r.Exec.Run(hctx, After, afterMode, after, callCtx, current)
	for _, o := range afterOutcomes {
		obs.HookExecuted(callCtx, After, o.ID, o.Outcome, o.Duration, o.Err)
	}
	if final == nil {
		final = current
	}

	if capped := r.checkCap(callCtx); capped != nil {
		return capped, shortCircuited, nil
	}

	if final.Empty() && !final.IsError {
		final = &Result{Content: []ContentPart{{Type: "text", Text: ""}}, Meta: final.Meta}
		obs.InvariantRepaired(callCtx)
	}

	return final, shortCircuited, nil
}

// checkCap consults CapCheck, if set, and cancels callCtx.Cancel on
// violation so outstanding work (still-running concurrent hooks honoring
// ctx.Done(), or a hook about to be dispatched) unwinds instead of running
// to completion after the budget is already spent.
func (r *Runner) checkCap(callCtx *Context) *Result {
	if r.CapCheck == nil {
		return nil
	}
	if err := r.CapCheck(callCtx.StartedAt); err != nil {
		callCtx.Cancel.Cancel(err)
		return ErrorResult(err.Error())
	}
	return nil
}

// invokeOriginal calls the real handler, converting panics into an error
// Result rather than crashing the process.
func (r *Runner) invokeOriginal(ctx context.Context, callCtx *Context, original OriginalHandler) (result *Result) {
	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprintf("tool handler panicked: %v", rec)
			if r.Debug {
				msg = fmt.Sprintf("%s\n%s", msg, debug.Stack())
			}
			result = ErrorResult(msg)
		}
	}()

	if original == nil {
		return ErrorResult("no handler registered for tool")
	}
	res, err := original(ctx, callCtx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if res == nil {
		return TextResult("")
	}
	return res
}
