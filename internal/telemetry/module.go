package telemetry

import (
	"context"

	"go.uber.org/fx"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var Module = fx.Module("telemetry",
	fx.Provide(NewTracerProvider),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, tp *sdktrace.TracerProvider) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return Shutdown(ctx, tp)
		},
	})
}
