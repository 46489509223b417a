package observability

import (
	"sync"
	"time"

	"github.com/nox-hq/mcpwrap/plugin"
)

// PerformanceReport is a snapshot of every plugin's ExecutionStats, keyed by
// plugin name, as exposed through Instance.GetPerformanceStats.
type PerformanceReport struct {
	GeneratedAt time.Time
	Plugins     map[string]plugin.Snapshot
}

// Thresholds configures the one-time slow-hook warning: SlowHookMs is the
// default applied to every plugin, PerPluginMs overrides it for specific
// plugin names.
type Thresholds struct {
	SlowHookMs  int64
	PerPluginMs map[string]int64
}

func (t Thresholds) forPlugin(name string) int64 {
	if ms, ok := t.PerPluginMs[name]; ok {
		return ms
	}
	return t.SlowHookMs
}

// Stats aggregates a Registry's per-plugin ExecutionStats and tracks which
// plugins have already triggered a slow-hook warning this process, so the
// warning fires once per plugin rather than once per call.
type Stats struct {
	registry   *plugin.Registry
	thresholds Thresholds
	logger     *Logger

	mu      sync.Mutex
	warned  map[string]bool
}

// NewStats binds a Stats aggregator to registry.
func NewStats(registry *plugin.Registry, thresholds Thresholds, logger *Logger) *Stats {
	return &Stats{registry: registry, thresholds: thresholds, logger: logger, warned: make(map[string]bool)}
}

// Snapshot returns the current PerformanceReport.
func (s *Stats) Snapshot() PerformanceReport {
	return PerformanceReport{GeneratedAt: time.Now(), Plugins: s.registry.AllStats()}
}

// ObserveDuration checks a just-completed hook's duration against
// Thresholds.SlowHookMs and logs a one-time warning per plugin if exceeded.
func (s *Stats) ObserveDuration(pluginName string, d time.Duration) {
	threshold := s.thresholds.forPlugin(pluginName)
	if threshold <= 0 || d.Milliseconds() < threshold {
		return
	}
	s.mu.Lock()
	already := s.warned[pluginName]
	s.warned[pluginName] = true
	s.mu.Unlock()
	if !already && s.logger != nil {
		s.logger.Warn("hook.slow", "plugin", pluginName, "durationMs", d.Milliseconds(), "thresholdMs", threshold)
	}
}
