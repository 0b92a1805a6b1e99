package breaker

import (
	"go.uber.org/fx"

	"github.com/atsv3/resilience-core/internal/bus"
	"github.com/atsv3/resilience-core/internal/config"
)

var Module = fx.Module("breaker",
	fx.Provide(newForFx),
	fx.Invoke(subscribeReload),
)

func settingsFromConfig(cfg config.Config) Settings {
	settings := DefaultSettings()
	if cfg.Breaker.ConsecutiveFailures > 0 {
		settings.ConsecutiveFailures = cfg.Breaker.ConsecutiveFailures
	}
	if cfg.Breaker.MaxRequests > 0 {
		settings.MaxRequests = cfg.Breaker.MaxRequests
	}
	if cfg.Breaker.Interval > 0 {
		settings.Interval = cfg.Breaker.Interval
	}
	if cfg.Breaker.Timeout > 0 {
		settings.Timeout = cfg.Breaker.Timeout
	}
	return settings
}

func newForFx(b *bus.Bus, cfg config.Config) *Manager {
	return NewManager(settingsFromConfig(cfg), b)
}

// subscribeReload applies every live config reload's breaker section to m,
// so an operator can retune trip thresholds without a restart. Breakers
// already built keep their original settings (see Manager.UpdateSettings).
func subscribeReload(w *config.Watcher, m *Manager) {
	w.Subscribe(func(cfg config.Config) {
		m.UpdateSettings(settingsFromConfig(cfg))
	})
}
