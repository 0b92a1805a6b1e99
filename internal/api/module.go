package api

import (
	"context"
	"log/slog"
	"net/http"

	"go.uber.org/fx"

	"github.com/atsv3/resilience-core/internal/config"
)

var Module = fx.Module("api",
	fx.Provide(NewServer),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, s *Server, cfg config.Config, log *slog.Logger) {
	httpServer := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: s.Router(),
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("api: server error", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
	})
}
