package failover

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/atsv3/resilience-core/internal/bus"
	"github.com/atsv3/resilience-core/internal/config"
)

// FailbackCooldown is the minimum time after an exchange loses primary
// before it can reclaim it through auto-failback, used when
// config.Config.Failover.FailbackCooldown is unset.
const FailbackCooldown = 2 * time.Minute

var Module = fx.Module("failover",
	fx.Provide(newForFx),
	fx.Invoke(subscribeHealth, subscribeReload),
)

func cooldownFromConfig(cfg config.Config) time.Duration {
	if cfg.Failover.FailbackCooldown <= 0 {
		return FailbackCooldown
	}
	return cfg.Failover.FailbackCooldown
}

func newForFx(b *bus.Bus, log *slog.Logger, cfg config.Config) *Controller {
	return NewController(b, log, cooldownFromConfig(cfg))
}

// subscribeReload applies every live config reload's failback cooldown to
// c, affecting failback decisions made after the reload.
func subscribeReload(w *config.Watcher, c *Controller) {
	w.Subscribe(func(cfg config.Config) {
		c.UpdateCooldown(cooldownFromConfig(cfg))
	})
}

// subscribeHealth wires the controller to internal/bus's health-change
// topic so a Health Prober running in a different package never needs a
// direct reference to the Controller.
func subscribeHealth(lc fx.Lifecycle, b *bus.Bus, c *Controller, log *slog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			msgs, err := b.Subscribe(ctx, bus.TopicHealthChanged)
			if err != nil {
				return err
			}
			go func() {
				for msg := range msgs {
					var ev bus.HealthChangedEvent
					if err := json.Unmarshal(msg.Payload, &ev); err != nil {
						log.Error("failover: malformed health event", "error", err)
						msg.Ack()
						continue
					}
					c.UpdateHealth(ev.ExchangeID, ev.Current)
					msg.Ack()
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
