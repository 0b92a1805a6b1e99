// Package bus implements the in-process event bus that couples the exchange
// resilience orchestrator (health/failover/circuit transitions) to the
// notification pipeline, replacing direct function-object callbacks with a
// publish/subscribe seam so a slow or panicking subscriber can never stall
// the component that raised the event.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Topic names transition events are published under. One topic per
// component keeps subscribers narrow; the dispatcher subscribes to all of
// them.
const (
	TopicHealthChanged    = "health.changed"
	TopicFailoverTriggered = "failover.triggered"
	TopicCircuitChanged   = "circuit.changed"
)

// Event is anything publishable on the bus: a routing key plus a
// JSON-serializable payload.
type Event interface {
	RoutingKey() string
}

// Bus wraps a watermill Publisher/Subscriber pair backed by an in-process
// gochannel transport.
type Bus struct {
	pubsub *gochannel.GoChannel
	log    *slog.Logger
}

// New builds an in-process Bus. Messages published before a subscriber
// attaches are not replayed (gochannel.Config.Persistent=false): subscribers
// are expected to attach during application startup, before traffic begins.
func New(log *slog.Logger) *Bus {
	logger := watermill.NewSlogLogger(log)
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            256,
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: false,
	}, logger)
	return &Bus{pubsub: pubsub, log: log}
}

// Publish marshals ev to JSON and publishes it under ev.RoutingKey(). A
// publish error only ever indicates the bus itself is closed; callers treat
// it as best-effort and log rather than fail the originating operation.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("bus: marshal event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := b.pubsub.Publish(ev.RoutingKey(), msg); err != nil {
		return fmt.Errorf("bus: publish to %s: %w", ev.RoutingKey(), err)
	}
	return nil
}

// Subscribe returns the channel of raw messages for topic. Handlers must
// call msg.Ack() (or Nack()) for every message they receive.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close shuts down the underlying transport. Call during application
// shutdown after all subscribers have drained.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
