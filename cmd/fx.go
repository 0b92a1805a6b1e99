package cmd

import (
	"log/slog"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/atsv3/resilience-core/internal/api"
	"github.com/atsv3/resilience-core/internal/breaker"
	"github.com/atsv3/resilience-core/internal/bus"
	"github.com/atsv3/resilience-core/internal/config"
	"github.com/atsv3/resilience-core/internal/coupling"
	"github.com/atsv3/resilience-core/internal/dispatcher"
	"github.com/atsv3/resilience-core/internal/executor"
	"github.com/atsv3/resilience-core/internal/failover"
	"github.com/atsv3/resilience-core/internal/health"
	"github.com/atsv3/resilience-core/internal/recorder"
	"github.com/atsv3/resilience-core/internal/repo"
	"github.com/atsv3/resilience-core/internal/sink"
	"github.com/atsv3/resilience-core/internal/task"
	"github.com/atsv3/resilience-core/internal/telemetry"
)

// NewApp assembles the full fx graph: config/logging at the bottom, the
// notification pipeline and exchange resilience orchestrator as independent
// module trees, and internal/coupling wiring their event bus together per
// spec.md's callback-bus re-architecture (Design Notes, spec.md §9).
func NewApp(configFile string) *fx.App {
	return fx.New(
		fx.Provide(
			func() config.FilePath { return config.FilePath(configFile) },
			ProvideLogger,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),
		config.Module,
		telemetry.Module,
		task.Module,
		bus.Module,
		repo.Module,
		sink.Module,
		breaker.Module,
		failover.Module,
		health.Module,
		executor.Module,
		recorder.Module,
		dispatcher.Module,
		coupling.Module,
		api.Module,
	)
}

// ProvideLogger builds the process-wide structured logger every component
// constructor takes by parameter, matching the teacher's slog-everywhere
// convention instead of a package-global logger.
func ProvideLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
