package bus

import (
	"context"

	"go.uber.org/fx"
)

// Module provides a process-wide Bus and closes it on shutdown.
var Module = fx.Module("bus",
	fx.Provide(New),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, b *Bus) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return b.Close()
		},
	})
}
