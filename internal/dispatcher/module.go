package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/atsv3/resilience-core/internal/batch"
	"github.com/atsv3/resilience-core/internal/config"
	"github.com/atsv3/resilience-core/internal/recorder"
	"github.com/atsv3/resilience-core/internal/repo"
	"github.com/atsv3/resilience-core/internal/sink"
	"github.com/atsv3/resilience-core/internal/task"
	"github.com/atsv3/resilience-core/internal/throttle"
)

// BatchTickInterval is how often pending batches are checked for a due
// deadline.
const BatchTickInterval = 10 * time.Second

var Module = fx.Module("dispatcher",
	fx.Provide(
		newForFx,
		newScheduler,
		newThrottleGate,
	),
	fx.Invoke(registerBatchTask, subscribeReload),
)

func newScheduler() *batch.Scheduler {
	return batch.NewScheduler(nil)
}

func newThrottleGate(cfg config.Config) *throttle.Gate {
	return throttle.NewGate(cfg.Throttle.MaxTrackedKeys, nil)
}

// registerBatchTask hands the periodic due-batch check to the shared task
// scheduler, and separately drains whatever is left un-sent at shutdown.
func registerBatchTask(lc fx.Lifecycle, sched *task.Scheduler, d *Dispatcher, s *batch.Scheduler) {
	sched.Register("batch-tick", BatchTickInterval, func(ctx context.Context, now time.Time) {
		d.DrainBatches(ctx, s.Tick(now))
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			d.DrainBatches(context.Background(), s.Drain())
			return nil
		},
	})
}

func retryPolicyFromConfig(cfg config.Config) RetryPolicy {
	policy := DefaultRetryPolicy()
	if cfg.Dispatcher.RetryAttempts > 0 {
		policy.Attempts = cfg.Dispatcher.RetryAttempts
	}
	if cfg.Dispatcher.RetryDelay > 0 {
		policy.Delay = cfg.Dispatcher.RetryDelay
	}
	return policy
}

func sinkTimeoutFromConfig(cfg config.Config) time.Duration {
	if cfg.Dispatcher.SinkTimeout > 0 {
		return cfg.Dispatcher.SinkTimeout
	}
	return 30 * time.Second
}

func newForFx(users repo.UserRepo, devices repo.DeviceRepo, gate *throttle.Gate, scheduler *batch.Scheduler, rec *recorder.Recorder, sinks sink.Set, log *slog.Logger, cfg config.Config) *Dispatcher {
	opts := []Option{
		WithWorkerCount(cfg.Dispatcher.WorkerCount),
		WithSinkTimeout(sinkTimeoutFromConfig(cfg)),
		WithRetryPolicy(retryPolicyFromConfig(cfg)),
	}
	return New(users, devices, gate, scheduler, rec, sinks, log, opts...)
}

// subscribeReload applies every live config reload's retry policy and sink
// timeout to d. Worker count is excluded: the worker pool's semaphore
// channel is sized once at construction and cannot be resized live.
func subscribeReload(w *config.Watcher, d *Dispatcher) {
	w.Subscribe(func(cfg config.Config) {
		d.UpdateRuntimeConfig(retryPolicyFromConfig(cfg), sinkTimeoutFromConfig(cfg))
	})
}
