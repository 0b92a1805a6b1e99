package recorder

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/atsv3/resilience-core/internal/config"
	"github.com/atsv3/resilience-core/internal/repo"
	"github.com/atsv3/resilience-core/internal/task"
)

// FlushInterval is how often a batch-mode Recorder's background flush runs.
const FlushInterval = 30 * time.Second

// retentionCheckInterval is how often the retention task checks for records
// past their horizon; the horizon itself comes from config.
const retentionCheckInterval = time.Hour

// Module wires a Recorder into the fx graph and registers its flush,
// hourly/daily aggregation, and retention cleanup with the shared task
// scheduler (spec.md §4.2).
var Module = fx.Module("recorder",
	fx.Provide(newForFx),
	fx.Invoke(registerTasks),
)

func newForFx(repository repo.TimeSeriesRepo, log *slog.Logger, cfg config.Config) *Recorder {
	mode := ModeBatch
	if cfg.Recorder.Mode == "immediate" {
		mode = ModeImmediate
	}
	return New(repository, log, WithMode(mode), WithMaxQueue(cfg.Recorder.MaxQueue))
}

func registerTasks(sched *task.Scheduler, r *Recorder, cfg config.Config) {
	flushPeriod := cfg.Recorder.FlushPeriod
	if flushPeriod <= 0 {
		flushPeriod = FlushInterval
	}
	sched.Register("recorder-flush", flushPeriod, func(ctx context.Context, _ time.Time) {
		r.Flush(ctx)
	})
	sched.Register("recorder-aggregate-hourly", time.Hour, func(ctx context.Context, _ time.Time) {
		r.AggregateHourly(ctx)
	})
	sched.Register("recorder-aggregate-daily", 24*time.Hour, func(ctx context.Context, _ time.Time) {
		r.AggregateDaily(ctx)
	})

	retention := cfg.Recorder.Retention
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	sched.Register("recorder-retention", retentionCheckInterval, func(ctx context.Context, _ time.Time) {
		r.Cleanup(ctx, retention)
	})
}
