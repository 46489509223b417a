// Package observability provides the structured logger and performance
// statistics aggregation the interception layer reports through.
package observability

import (
	"log/slog"
	"time"

	"github.com/nox-hq/mcpwrap/hook"
)

// Logger wraps log/slog with a per-plugin namespace and satisfies
// hook.Observer, so a Runner can report every phase transition without
// importing this package.
type Logger struct {
	base   *slog.Logger
	debug  bool
	sample *sampler
}

// NewLogger wraps base (or slog.Default() if nil).
func NewLogger(base *slog.Logger, debug bool) *Logger {
	if base == nil {
		base = slog.Default()
	}
	return &Logger{base: base, debug: debug, sample: &sampler{}}
}

// For returns a Logger namespaced to one plugin, matching the teacher's
// `.With("plugin", name)` idiom.
func (l *Logger) For(pluginName string) *Logger {
	return &Logger{base: l.base.With("plugin", pluginName), debug: l.debug, sample: l.sample}
}

// Sampled returns a Logger whose debug-level payload logging only fires on
// every 1/rate-th call; counters feeding Stats are unaffected by sampling.
func (l *Logger) Sampled(rate float64) *Logger {
	return &Logger{base: l.base, debug: l.debug, sample: &sampler{rate: rate}}
}

func (l *Logger) Debug(msg string, args ...any) { l.base.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.base.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.base.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.base.Error(msg, args...) }

// sampler gates full-payload debug logs deterministically rather than via
// math/rand, so behavior is reproducible across runs.
type sampler struct {
	rate    float64
	counter int
}

func (s *sampler) shouldLog() bool {
	if s == nil || s.rate <= 0 || s.rate >= 1 {
		return true
	}
	s.counter++
	every := int(1 / s.rate)
	if every <= 0 {
		every = 1
	}
	return s.counter%every == 0
}

// --- hook.Observer implementation ---

func (l *Logger) CallStarted(callCtx *hook.Context) {
	l.base.Info("call.start", "requestId", callCtx.RequestID, "toolName", callCtx.ToolName)
}

func (l *Logger) HookExecuted(callCtx *hook.Context, phase hook.Phase, hookID string, outcome hook.OutcomeKind, dur time.Duration, err error) {
	attrs := []any{
		"requestId", callCtx.RequestID,
		"pluginName", hookID,
		"phase", phaseName(phase),
		"durationMs", dur.Milliseconds(),
		"outcome", string(outcome),
	}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
		l.base.Warn("hook.exec", attrs...)
		return
	}
	l.base.Debug("hook.exec", attrs...)
}

func (l *Logger) CallEnded(callCtx *hook.Context, result *hook.Result, shortCircuited bool) {
	isError := result != nil && result.IsError
	l.base.Info("call.end",
		"requestId", callCtx.RequestID,
		"durationMs", callCtx.Elapsed().Milliseconds(),
		"isError", isError,
		"shortCircuited", shortCircuited,
	)
	if l.sample.shouldLog() {
		l.logPayload(callCtx)
	}
}

func (l *Logger) InvariantRepaired(callCtx *hook.Context) {
	l.base.Warn("result.invariant_repaired", "requestId", callCtx.RequestID, "toolName", callCtx.ToolName)
}

func (l *Logger) logPayload(callCtx *hook.Context) {
	if !l.debug {
		return
	}
	l.base.Debug("call.payload", "requestId", callCtx.RequestID, "args", callCtx.Args)
}

func phaseName(p hook.Phase) string {
	if p == hook.Before {
		return "before"
	}
	return "after"
}
