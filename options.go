package mcpwrap

import (
	"time"

	"github.com/nox-hq/mcpwrap/hook"
	"github.com/nox-hq/mcpwrap/plugin"
	"github.com/nox-hq/mcpwrap/security"
)

// GlobalHooks is the "__global__" before/after/error hook set installed via
// WithHooks. It runs outermost: its before-hook ahead of every plugin's and
// its after-hook behind every plugin's.
type GlobalHooks struct {
	Before  func(ctx *hook.Context) (*hook.Result, error)
	After   func(ctx *hook.Context, result *hook.Result) (*hook.Result, error)
	OnError func(err error)
}

// PerformanceOptions configures sampling, execution-time tracking, and
// slow-hook thresholds. There is no memory tracking.
type PerformanceOptions struct {
	Enabled            bool
	SamplingRate       float64
	TrackExecutionTime bool
	Thresholds         map[string]time.Duration
}

// options is the fully-resolved configuration Wrap builds from WrapOptions.
type options struct {
	hooks          GlobalHooks
	globalPriority int
	plugins        []plugin.Plugin
	metadata       map[string]any
	debug          bool
	lifecycle      plugin.LifecycleOptions
	performance    PerformanceOptions
	security       security.Options
	beforeMode     hook.Mode
	afterMode      hook.Mode
	configFilePath string
	configFileErr  error
}

func defaultOptions() options {
	return options{
		globalPriority: 1 << 30, // global hooks run outermost by default
		lifecycle:      plugin.DefaultLifecycleOptions(),
		security:       security.DefaultOptions(),
		beforeMode:     hook.Serial,
		afterMode:      hook.Serial,
	}
}

// WrapOption configures Wrap.
type WrapOption func(*options)

// WithHooks installs a global before/after/error hook set, scheduled as a
// synthetic plugin named "__global__".
func WithHooks(h GlobalHooks) WrapOption {
	return func(o *options) { o.hooks = h }
}

// WithPlugins registers plugins to participate in the interception pipeline.
func WithPlugins(plugins ...plugin.Plugin) WrapOption {
	return func(o *options) { o.plugins = append(o.plugins, plugins...) }
}

// WithMetadata seeds every call's Context.Metadata with the given map.
func WithMetadata(md map[string]any) WrapOption {
	return func(o *options) { o.metadata = md }
}

// WithDebug enables verbose error messages (including panic stack traces)
// and debug-level payload logging, which still follows the performance
// sampling rate when one is set.
func WithDebug(debug bool) WrapOption {
	return func(o *options) { o.debug = debug }
}

// WithLifecycle overrides disposal/health-check timeouts and the degraded
// threshold.
func WithLifecycle(opts plugin.LifecycleOptions) WrapOption {
	return func(o *options) { o.lifecycle = opts }
}

// WithPerformance configures sampling and slow-hook thresholds.
func WithPerformance(opts PerformanceOptions) WrapOption {
	return func(o *options) { o.performance = opts }
}

// WithSecurity configures input validation, field redaction, the execution
// cap, and per-plugin rate limiting.
func WithSecurity(opts security.Options) WrapOption {
	return func(o *options) { o.security = opts }
}

// WithExecutionMode overrides the scheduling Mode used for the before and
// after phases (Serial by default).
func WithExecutionMode(before, after hook.Mode) WrapOption {
	return func(o *options) { o.beforeMode = before; o.afterMode = after }
}
