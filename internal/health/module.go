package health

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/atsv3/resilience-core/internal/bus"
	"github.com/atsv3/resilience-core/internal/config"
	"github.com/atsv3/resilience-core/internal/task"
)

// ProbePeriod is the default interval between sweeps, used when
// config.Config.Health.ProbePeriod is unset.
const ProbePeriod = 30 * time.Second

var Module = fx.Module("health",
	fx.Provide(newForFx),
	fx.Invoke(registerTask, subscribeReload),
)

func thresholdsFromConfig(cfg config.Config) Thresholds {
	thresholds := DefaultThresholds()
	if cfg.Health.DegradedLatency > 0 {
		thresholds.DegradedLatency = cfg.Health.DegradedLatency
	}
	if cfg.Health.UnhealthyLatency > 0 {
		thresholds.UnhealthyLatency = cfg.Health.UnhealthyLatency
	}
	if cfg.Health.MaxErrorRate > 0 {
		thresholds.MaxErrorRate = cfg.Health.MaxErrorRate
	}
	if cfg.Health.ProbeTimeout > 0 {
		thresholds.ProbeTimeout = cfg.Health.ProbeTimeout
	}
	if cfg.Health.ConsecutiveUnhealthy > 0 {
		thresholds.ConsecutiveUnhealthyToTrip = cfg.Health.ConsecutiveUnhealthy
	}
	return thresholds
}

func newForFx(b *bus.Bus, log *slog.Logger, cfg config.Config) *Prober {
	return NewProber(thresholdsFromConfig(cfg), b, log)
}

func registerTask(sched *task.Scheduler, p *Prober, cfg config.Config) {
	period := cfg.Health.ProbePeriod
	if period <= 0 {
		period = ProbePeriod
	}
	sched.Register("health-probe", period, func(ctx context.Context, _ time.Time) {
		p.ProbeAll(ctx)
	})
}

// subscribeReload applies every live config reload's health section to p.
// The probe-sweep period itself is read by the task scheduler's own timer
// cadence at registration time and is not live-adjustable without
// restarting that timer, which registerTask does not currently support.
func subscribeReload(w *config.Watcher, p *Prober) {
	w.Subscribe(func(cfg config.Config) {
		p.UpdateThresholds(thresholdsFromConfig(cfg))
	})
}
