package coupling

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/atsv3/resilience-core/internal/bus"
	"github.com/atsv3/resilience-core/internal/dispatcher"
)

var Module = fx.Module("coupling",
	fx.Invoke(registerBridge),
)

func registerBridge(lc fx.Lifecycle, b *bus.Bus, d *dispatcher.Dispatcher, log *slog.Logger) {
	br := NewBridge(b, d.HandlerFor(Category), log)
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return br.Start(ctx)
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
