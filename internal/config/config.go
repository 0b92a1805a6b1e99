// Package config loads and live-reloads application configuration with
// spf13/viper, watching the config file for changes via fsnotify so
// operators can adjust thresholds without a restart.
package config

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/atsv3/resilience-core/internal/domain"
)

// Config is every tunable the system reads at startup or on reload.
type Config struct {
	ServiceName string `mapstructure:"service_name"`

	Dispatcher struct {
		WorkerCount     int           `mapstructure:"worker_count"`
		SinkTimeout     time.Duration `mapstructure:"sink_timeout"`
		RetryAttempts   int           `mapstructure:"retry_attempts"`
		RetryDelay      time.Duration `mapstructure:"retry_delay"`
	} `mapstructure:"dispatcher"`

	Throttle struct {
		MaxTrackedKeys int `mapstructure:"max_tracked_keys"`
	} `mapstructure:"throttle"`

	Recorder struct {
		Mode        string        `mapstructure:"mode"` // "immediate" | "batch"
		MaxQueue    int           `mapstructure:"max_queue"`
		FlushPeriod time.Duration `mapstructure:"flush_period"`
		Retention   time.Duration `mapstructure:"retention"`
	} `mapstructure:"recorder"`

	Health struct {
		ProbePeriod         time.Duration `mapstructure:"probe_period"`
		ProbeTimeout        time.Duration `mapstructure:"probe_timeout"`
		DegradedLatency     time.Duration `mapstructure:"degraded_latency"`
		UnhealthyLatency    time.Duration `mapstructure:"unhealthy_latency"`
		MaxErrorRate        float64       `mapstructure:"max_error_rate"`
		ConsecutiveUnhealthy int          `mapstructure:"consecutive_unhealthy"`
	} `mapstructure:"health"`

	Failover struct {
		FailbackCooldown time.Duration `mapstructure:"failback_cooldown"`
	} `mapstructure:"failover"`

	Breaker struct {
		MaxRequests         uint32        `mapstructure:"max_requests"`
		Interval            time.Duration `mapstructure:"interval"`
		Timeout             time.Duration `mapstructure:"timeout"`
		ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	} `mapstructure:"breaker"`

	API struct {
		ListenAddr string `mapstructure:"listen_addr"`
	} `mapstructure:"api"`

	Slack struct {
		WebhookURL string `mapstructure:"webhook_url"`
	} `mapstructure:"slack"`
}

// Default returns the configuration used when no config file overrides a
// value.
func Default() Config {
	var c Config
	c.ServiceName = "resilience-core"
	c.Dispatcher.WorkerCount = 0 // 0 -> runtime.NumCPU
	c.Dispatcher.SinkTimeout = 30 * time.Second
	c.Dispatcher.RetryAttempts = 3
	c.Dispatcher.RetryDelay = 5 * time.Second
	c.Throttle.MaxTrackedKeys = 100_000
	c.Recorder.Mode = "batch"
	c.Recorder.MaxQueue = 10_000
	c.Recorder.FlushPeriod = 30 * time.Second
	c.Recorder.Retention = 30 * 24 * time.Hour
	c.Health.ProbePeriod = 30 * time.Second
	c.Health.ProbeTimeout = 10 * time.Second
	c.Health.DegradedLatency = 2 * time.Second
	c.Health.UnhealthyLatency = 5 * time.Second
	c.Health.MaxErrorRate = 0.1
	c.Health.ConsecutiveUnhealthy = 3
	c.Failover.FailbackCooldown = 2 * time.Minute
	c.Breaker.MaxRequests = 2
	c.Breaker.Interval = 60 * time.Second
	c.Breaker.Timeout = 30 * time.Second
	c.Breaker.ConsecutiveFailures = 5
	c.API.ListenAddr = ":8090"
	c.Slack.WebhookURL = ""
	return c
}

// Load reads configFile (if non-empty) over the defaults, validates the
// result, and returns it. An empty configFile yields Default() unmodified.
func Load(configFile string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return Config{}, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
		}
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects nonsensical configuration before the application starts,
// rather than letting a bad value surface as a confusing runtime failure.
func Validate(c Config) error {
	switch {
	case c.Dispatcher.RetryAttempts < 1:
		return fmt.Errorf("%w: dispatcher.retry_attempts must be >= 1", domain.ErrConfigInvalid)
	case c.Health.MaxErrorRate < 0 || c.Health.MaxErrorRate > 1:
		return fmt.Errorf("%w: health.max_error_rate must be in [0,1]", domain.ErrConfigInvalid)
	case c.Health.ConsecutiveUnhealthy < 1:
		return fmt.Errorf("%w: health.consecutive_unhealthy must be >= 1", domain.ErrConfigInvalid)
	case c.Breaker.ConsecutiveFailures < 1:
		return fmt.Errorf("%w: breaker.consecutive_failures must be >= 1", domain.ErrConfigInvalid)
	case c.Recorder.Mode != "immediate" && c.Recorder.Mode != "batch":
		return fmt.Errorf("%w: recorder.mode must be 'immediate' or 'batch'", domain.ErrConfigInvalid)
	case c.API.ListenAddr == "":
		return fmt.Errorf("%w: api.listen_addr must not be empty", domain.ErrConfigInvalid)
	}
	return nil
}

// Watcher live-reloads Config from disk via fsnotify (wired in by viper's
// WatchConfig), invoking onChange with every successfully validated reload.
// A reload that fails validation is logged and the prior Config is kept.
type Watcher struct {
	v   *viper.Viper
	log *slog.Logger

	mu        sync.RWMutex
	current   Config
	onChange  []func(Config)
}

// NewWatcher starts watching configFile for changes; an empty configFile
// yields a Watcher that never reloads. The fsnotify watch is not released
// before the process exits. onChange, if non-nil, is registered as the first subscriber; components that need
// to react to a later reload call Subscribe instead, since every
// config-consuming fx module wires its own callback independently.
func NewWatcher(configFile string, initial Config, log *slog.Logger, onChange func(Config)) (*Watcher, error) {
	w := &Watcher{current: initial, log: log}
	if onChange != nil {
		w.onChange = append(w.onChange, onChange)
	}
	if configFile == "" {
		return w, nil
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	w.v = v
	v.OnConfigChange(func(e fsnotify.Event) {
		w.reload()
	})
	v.WatchConfig()
	return w, nil
}

// Subscribe registers fn to run on every successfully validated reload.
// Subscribers registered before the watch starts (or before the first
// reload) all fire on each change; there is no unsubscribe since every
// current subscriber lives for the process's lifetime.
func (w *Watcher) Subscribe(fn func(Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

func (w *Watcher) reload() {
	next := Default()
	if err := w.v.Unmarshal(&next); err != nil {
		w.log.Error("config: reload failed to unmarshal, keeping prior config", "error", err)
		return
	}
	if err := Validate(next); err != nil {
		w.log.Error("config: reload failed validation, keeping prior config", "error", err)
		return
	}
	w.mu.Lock()
	w.current = next
	subscribers := append([]func(Config){}, w.onChange...)
	w.mu.Unlock()
	w.log.Info("config: reloaded")
	for _, fn := range subscribers {
		fn(next)
	}
}

// Current returns the most recently validated Config.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}
