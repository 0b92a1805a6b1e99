// Package coupling wires the exchange resilience orchestrator (health,
// failover, circuit breaker) to the notification pipeline through
// internal/bus: every transition becomes a synthetic NotificationMessage
// fed into the dispatcher, exactly as spec.md's "Data flow (exchange
// event)" describes (sample -> failover -> transition callback -> C7 as a
// synthetic notification event). Neither side holds a direct reference to
// the other, breaking the back-reference cycle spec.md §9's Design Notes
// call out in the source.
package coupling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/atsv3/resilience-core/internal/bus"
	"github.com/atsv3/resilience-core/internal/domain"
)

// Category is the routing category every bridged event carries into the
// Rule Evaluator: "system", matching the category set spec.md §3 documents
// for NotificationRule (risk/trade/system/market/all).
const Category = "system"

// Bridge subscribes to every C8/C9/C10 transition topic and turns each into
// a NotificationMessage handed to a dispatcher-shaped handler.
type Bridge struct {
	bus     *bus.Bus
	handler func(*domain.NotificationMessage)
	log     *slog.Logger
}

// NewBridge builds a Bridge. handler is normally
// dispatcher.Dispatcher.HandlerFor(coupling.Category).
func NewBridge(b *bus.Bus, handler func(*domain.NotificationMessage), log *slog.Logger) *Bridge {
	return &Bridge{bus: b, handler: handler, log: log}
}

// Start subscribes to every bridged topic; each subscription runs its own
// goroutine so a burst on one topic never delays another. Callers should
// cancel ctx at shutdown; Start returns once every subscription is attached.
func (br *Bridge) Start(ctx context.Context) error {
	if err := br.subscribe(ctx, bus.TopicHealthChanged, br.onHealthChanged); err != nil {
		return err
	}
	if err := br.subscribe(ctx, bus.TopicFailoverTriggered, br.onFailoverTriggered); err != nil {
		return err
	}
	if err := br.subscribe(ctx, bus.TopicCircuitChanged, br.onCircuitChanged); err != nil {
		return err
	}
	return nil
}

func (br *Bridge) subscribe(ctx context.Context, topic string, decode func([]byte) (*domain.NotificationMessage, error)) error {
	msgs, err := br.bus.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("coupling: subscribe %s: %w", topic, err)
	}
	go func() {
		for msg := range msgs {
			notification, err := decode(msg.Payload)
			if err != nil {
				br.log.Error("coupling: malformed event", "topic", topic, "error", err)
				msg.Ack()
				continue
			}
			br.handler(notification)
			msg.Ack()
		}
	}()
	return nil
}

func (br *Bridge) onHealthChanged(payload []byte) (*domain.NotificationMessage, error) {
	var ev bus.HealthChangedEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	level := healthLevel(ev.Current.Status)
	msg := domain.NewNotificationMessage(level,
		fmt.Sprintf("Exchange %s health: %s", ev.ExchangeID, ev.Current.Status),
		fmt.Sprintf("%s transitioned from %s to %s (latency=%s, error_rate=%.2f)",
			ev.ExchangeID, ev.Previous, ev.Current.Status, ev.Current.Latency, ev.Current.ErrorRate),
		map[string]string{
			"exchange_id": ev.ExchangeID,
			"previous":    string(ev.Previous),
			"current":     string(ev.Current.Status),
		})
	msg.ExchangeID = ev.ExchangeID
	msg.Timestamp = ev.At
	return msg, nil
}

func (br *Bridge) onFailoverTriggered(payload []byte) (*domain.NotificationMessage, error) {
	var ev bus.FailoverTriggeredEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	msg := domain.NewNotificationMessage(domain.Warning,
		fmt.Sprintf("Failover: %s -> %s", ev.FromExchangeID, ev.ToExchangeID),
		fmt.Sprintf("primary exchange changed from %s to %s (%s)", ev.FromExchangeID, ev.ToExchangeID, ev.Reason),
		map[string]string{
			"from_exchange_id": ev.FromExchangeID,
			"to_exchange_id":   ev.ToExchangeID,
			"reason":           string(ev.Reason),
		})
	msg.ExchangeID = ev.ToExchangeID
	msg.Timestamp = ev.At
	return msg, nil
}

func (br *Bridge) onCircuitChanged(payload []byte) (*domain.NotificationMessage, error) {
	var ev bus.CircuitChangedEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	msg := domain.NewNotificationMessage(circuitLevel(ev.Current),
		fmt.Sprintf("Circuit %s: %s -> %s", ev.Name, ev.Previous, ev.Current),
		fmt.Sprintf("circuit breaker for %s moved from %s to %s", ev.Name, ev.Previous, ev.Current),
		map[string]string{
			"breaker":  ev.Name,
			"previous": string(ev.Previous),
			"current":  string(ev.Current),
		})
	msg.Timestamp = ev.At
	return msg, nil
}

func healthLevel(status domain.HealthStatus) domain.Level {
	switch status {
	case domain.Unhealthy:
		return domain.Error
	case domain.Degraded:
		return domain.Warning
	default:
		return domain.Info
	}
}

func circuitLevel(state domain.CircuitState) domain.Level {
	switch state {
	case domain.CircuitOpen:
		return domain.Error
	case domain.CircuitHalfOpen:
		return domain.Warning
	default:
		return domain.Info
	}
}
