// Package mcpwrap wraps an MCP server so every tool call flows through an
// ordered chain of before/after hooks contributed by in-process plugins,
// with dependency-aware scheduling, cooperative cancellation, execution
// caps, argument redaction, and performance instrumentation.
package mcpwrap

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nox-hq/mcpwrap/hook"
	"github.com/nox-hq/mcpwrap/observability"
	"github.com/nox-hq/mcpwrap/plugin"
	"github.com/nox-hq/mcpwrap/security"
)

const globalHookID = "__global__"

// Wrap installs the interception pipeline in front of server: every tool
// registered on the returned ServerLike (not on server directly) passes
// through validation, the registered plugins' before/after hooks, and the
// security gate before reaching the original handler.
//
// Wrap is idempotent: calling it again on its own return value, or on the
// original server once already wrapped, returns the existing Instance
// instead of building a second pipeline.
func Wrap(srv ServerLike, opts ...WrapOption) (ServerLike, *Instance, error) {
	if inst, ok := InstanceFor(srv); ok {
		if w, ok := srv.(*wrapperServer); ok {
			return w, inst, nil
		}
		return &wrapperServer{inner: srv, instance: inst, install: inst.installer}, inst, nil
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	registry := plugin.NewRegistry()
	registry.GlobalPriority = o.globalPriority
	for _, p := range o.plugins {
		if err := registry.Register(p); err != nil {
			return nil, nil, newPipelineError(DependencyErrorKind, p.Name(), err)
		}
	}

	lifecycle := plugin.NewLifecycle(registry)
	lifecycle.Options = o.lifecycle

	if _, err := registry.ResolvedOrder(); err != nil {
		return nil, nil, newPipelineError(DependencyErrorKind, "", err)
	}
	if err := lifecycle.Initialize(context.Background()); err != nil {
		return nil, nil, newPipelineError(PluginFatalKind, "", err)
	}

	gate := security.NewGate(o.security)
	limiters := security.NewLimiters(o.security.RateLimitPerMinute)
	logger := observability.NewLogger(nil, o.debug)
	if o.performance.Enabled && o.performance.SamplingRate > 0 {
		logger = logger.Sampled(o.performance.SamplingRate)
	}
	stats := observability.NewStats(registry, buildThresholds(o.performance), logger)

	runner := hook.NewRunner()
	runner.Observer = logger
	runner.Debug = o.debug
	runner.CapCheck = gate.CheckCap

	inst := newInstance(registry, lifecycle, gate, limiters, logger, stats)
	inst.emit("starting", nil)
	if err := lifecycle.Initialize(context.Background()); err != nil {
		return nil, nil, newPipelineError(PluginFatalKind, "", err)
	}
	inst.emit("started", nil)

	inst.installer = func(toolName string, schema map[string]any, original server.ToolHandlerFunc) server.ToolHandlerFunc {
		return buildHandler(o, registry, gate, limiters, runner, stats, toolName, schema, original)
	}
	w := &wrapperServer{inner: srv, instance: inst, install: inst.installer}

	if o.configFileErr != nil {
		logger.Warn("config.load_failed", "error", o.configFileErr.Error())
	}
	if o.configFilePath != "" {
		watchConfigFile(inst, o.configFilePath, logger)
	}

	rememberInstance(srv, inst)
	rememberInstance(w, inst)

	// A ServerLike that can enumerate its pre-existing tools gets one warning
	// per tool it reports; those tools are not re-registered and stay
	// unwrapped. A server that hides its registry (mcp-go's MCPServer does
	// not implement toolRegistrar) gets a single warning that tools it
	// already holds, if any, are not intercepted.
	if tr, ok := srv.(toolRegistrar); ok {
		for name := range tr.ToolRegistry() {
			logger.Warn("tool.preexisting_unwrapped", "toolName", name)
		}
	} else {
		logger.Warn("tool.prewrap_not_intercepted")
	}

	return w, inst, nil
}

// buildThresholds translates PerformanceOptions.Thresholds (keyed by plugin
// name, with "" as the default) into observability.Thresholds.
func buildThresholds(p PerformanceOptions) observability.Thresholds {
	t := observability.Thresholds{PerPluginMs: make(map[string]int64, len(p.Thresholds))}
	for name, d := range p.Thresholds {
		if name == "" {
			t.SlowHookMs = d.Milliseconds()
			continue
		}
		t.PerPluginMs[name] = d.Milliseconds()
	}
	return t
}

// buildHandler closes over one tool's original handler, returning the
// intercepted replacement AddTool actually registers.
func buildHandler(
	o options,
	registry *plugin.Registry,
	gate *security.Gate,
	limiters *security.Limiters,
	runner *hook.Runner,
	stats *observability.Stats,
	toolName string,
	schema map[string]any,
	original server.ToolHandlerFunc,
) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		if err := gate.ValidateArgs(args, schema); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		redacted, sealed := gate.Redact(args)

		callCtx := hook.NewContext(ctx, toolName, redacted, nil, o.metadata)

		before, after, err := scheduledHooks(registry, limiters, o, toolName)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		originalHandler := func(ctx context.Context, cc *hook.Context) (*hook.Result, error) {
			realArgs := gate.Unseal(sealed, cc.Args)
			res, err := original(ctx, requestWithArgs(req, realArgs))
			if err != nil {
				return nil, err
			}
			return fromMCPResult(res), nil
		}

		result, _, err := runner.Run(ctx, callCtx, before, after, o.beforeMode, o.afterMode, originalHandler)
		if err != nil {
			if o.hooks.OnError != nil {
				o.hooks.OnError(err)
			}
			return mcp.NewToolResultError(err.Error()), nil
		}
		stats.ObserveDuration(toolName, callCtx.Elapsed())
		return toMCPResult(result), nil
	}
}

// requestWithArgs returns a copy of req with its arguments replaced by args,
// used to hand the original handler its unsealed (un-redacted) values.
func requestWithArgs(req mcp.CallToolRequest, args map[string]any) mcp.CallToolRequest {
	req.Params.Arguments = args
	return req
}

// scheduledHooks builds the before/after ScheduledHook lists for one call:
// every plugin enabled for toolName, in the Registry's resolved order for the
// before phase and in reverse for the after phase, plus the synthetic
// "__global__" hook set installed via WithHooks, which runs outermost (first
// in the before phase, last in the after phase).
func scheduledHooks(registry *plugin.Registry, limiters *security.Limiters, o options, toolName string) (before, after []hook.ScheduledHook, err error) {
	order, rerr := registry.ResolvedOrder()
	if rerr != nil {
		return nil, nil, fmt.Errorf("mcpwrap: %w", rerr)
	}

	for _, name := range order {
		if !registry.EnabledFor(name, toolName) {
			continue
		}
		p, ok := registry.Get(name)
		if !ok {
			continue
		}
		stats, _ := registry.Stats(name)
		limiter := limiters.For(name)
		cfg := executionConfigFor(p)

		if bh, ok := p.(plugin.BeforeHook); ok {
			before = append(before, hook.ScheduledHook{
				ID:       name,
				Priority: priorityFor(p),
				Config:   cfg,
				Run:      beforeRun(bh, limiter, stats, p),
			})
		}
		if ah, ok := p.(plugin.AfterHook); ok {
			after = append(after, hook.ScheduledHook{
				ID:       name,
				Priority: priorityFor(p),
				Config:   cfg,
				Run:      afterRun(ah, limiter, stats, p),
			})
		}
	}

	for i, j := 0, len(after)-1; i < j; i, j = i+1, j-1 {
		after[i], after[j] = after[j], after[i]
	}

	if o.hooks.Before != nil {
		before = append([]hook.ScheduledHook{{
			ID:       globalHookID,
			Priority: o.globalPriority,
			Config:   hook.DefaultExecutionConfig(),
			Run: func(ctx context.Context, cc *hook.Context, current *hook.Result) (*hook.Result, error) {
				return o.hooks.Before(cc)
			},
		}}, before...)
	}
	if o.hooks.After != nil {
		after = append(after, hook.ScheduledHook{
			ID:       globalHookID,
			Priority: o.globalPriority,
			Config:   hook.DefaultExecutionConfig(),
			Run: func(ctx context.Context, cc *hook.Context, current *hook.Result) (*hook.Result, error) {
				return o.hooks.After(cc, current)
			},
		})
	}
	return before, after, nil
}

func priorityFor(p plugin.Plugin) int {
	if pr, ok := p.(plugin.Prioritized); ok {
		return pr.Priority()
	}
	return 0
}

// executionConfigFor returns a plugin's per-hook scheduling config: its own
// hook.ExecutionConfig if it implements Scheduled, the library default
// otherwise.
func executionConfigFor(p plugin.Plugin) hook.ExecutionConfig {
	if s, ok := p.(plugin.Scheduled); ok {
		return s.HookConfig()
	}
	return hook.DefaultExecutionConfig()
}

func beforeRun(bh plugin.BeforeHook, limiter *security.RateLimiter, stats *plugin.ExecutionStats, p plugin.Plugin) hook.HookFunc {
	return func(ctx context.Context, cc *hook.Context, current *hook.Result) (*hook.Result, error) {
		if err := limiter.AllowRequest(ctx); err != nil {
			return nil, err
		}
		started := time.Now()
		res, err := bh.BeforeToolCall(cc)
		recordOutcome(ctx, stats, started, err)
		if err != nil {
			if obs, ok := p.(plugin.ErrorObserver); ok {
				obs.OnError(err)
			}
		}
		return res, err
	}
}

func afterRun(ah plugin.AfterHook, limiter *security.RateLimiter, stats *plugin.ExecutionStats, p plugin.Plugin) hook.HookFunc {
	return func(ctx context.Context, cc *hook.Context, current *hook.Result) (*hook.Result, error) {
		if err := limiter.AllowRequest(ctx); err != nil {
			return nil, err
		}
		started := time.Now()
		res, err := ah.AfterToolCall(cc, current)
		recordOutcome(ctx, stats, started, err)
		if err != nil {
			if obs, ok := p.(plugin.ErrorObserver); ok {
				obs.OnError(err)
			}
		}
		return res, err
	}
}

func recordOutcome(ctx context.Context, stats *plugin.ExecutionStats, started time.Time, err error) {
	if stats == nil {
		return
	}
	d := time.Since(started)
	if err == nil && ctx.Err() == context.DeadlineExceeded {
		// The hook returned only after its per-hook timeout had fired.
		stats.RecordFailure(d, "timeout")
		return
	}
	if err != nil {
		stats.RecordFailure(d, err.Error())
		return
	}
	stats.RecordSuccess(d)
}
