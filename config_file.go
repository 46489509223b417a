package mcpwrap

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/nox-hq/mcpwrap/security"
)

// fileConfig is the YAML shape WithConfigFile reads. Only the security
// settings are hot-reloadable; performance settings are read once at Wrap
// time, and plugins are wired in code and never read from this file.
type fileConfig struct {
	Security struct {
		ValidateInputs     bool     `yaml:"validate_inputs"`
		RedactFields       []string `yaml:"redact_fields"`
		MaxExecutionTimeMs int      `yaml:"max_execution_time_ms"`
		RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
	} `yaml:"security"`
	Performance struct {
		Enabled      bool    `yaml:"enabled"`
		SamplingRate float64 `yaml:"sampling_rate"`
	} `yaml:"performance"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("mcpwrap: reading config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("mcpwrap: parsing config file %q: %w", path, err)
	}
	return fc, nil
}

func (fc fileConfig) securityOptions() security.Options {
	return security.Options{
		ValidateInputs:     fc.Security.ValidateInputs,
		RedactFields:       fc.Security.RedactFields,
		MaxExecutionTimeMs: fc.Security.MaxExecutionTimeMs,
		RateLimitPerMinute: fc.Security.RateLimitPerMinute,
	}
}

// WithConfigFile loads security and performance settings from a YAML file at
// path and applies them at Wrap time. The returned option also arranges for
// the Instance built by Wrap to watch path via fsnotify and hot-reload the
// security gate's options (validation, redaction, execution cap) whenever
// the file changes. The per-plugin rate limiters keep the rate read at Wrap
// time, and plugins themselves are never affected by a reload.
func WithConfigFile(path string) WrapOption {
	return func(o *options) {
		o.configFilePath = path
		fc, err := loadFileConfig(path)
		if err != nil {
			// Fall back to whatever defaults/options were already set;
			// watchConfigFile below will retry from scratch on the next write.
			o.configFileErr = err
			return
		}
		o.security = fc.securityOptions()
		o.performance.Enabled = fc.Performance.Enabled
		o.performance.SamplingRate = fc.Performance.SamplingRate
	}
}

// watchConfigFile starts a background watcher (stopped by Instance.Dispose)
// that reloads path on every write and pushes the new security.Options into
// gate. Debounced the same way the teacher's directory watcher debounces
// rescans, since editors commonly emit several write events per save.
func watchConfigFile(inst *Instance, path string, logger interface {
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("config.watch_failed", "path", path, "error", err.Error())
		return
	}
	if err := watcher.Add(path); err != nil {
		logger.Warn("config.watch_failed", "path", path, "error", err.Error())
		_ = watcher.Close()
		return
	}

	var mu sync.Mutex
	var timer *time.Timer
	const debounce = 250 * time.Millisecond

	reload := func() {
		fc, err := loadFileConfig(path)
		if err != nil {
			logger.Warn("config.reload_failed", "path", path, "error", err.Error())
			return
		}
		inst.Gate.SetOptions(fc.securityOptions())
		logger.Info("config.reloaded", "path", path)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					mu.Lock()
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(debounce, reload)
					mu.Unlock()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-inst.Done():
				return
			}
		}
	}()
}
