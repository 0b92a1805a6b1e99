package executor

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/atsv3/resilience-core/internal/breaker"
	"github.com/atsv3/resilience-core/internal/failover"
)

var Module = fx.Module("executor",
	fx.Provide(newForFx),
)

func newForFx(breakers *breaker.Manager, order *failover.Controller, log *slog.Logger) *Executor {
	return New(breakers, order, log)
}
