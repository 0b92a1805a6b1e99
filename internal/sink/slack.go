package sink

import (
	"context"
	"errors"

	"github.com/atsv3/resilience-core/internal/domain"
)

// SlackSink delivers via SlackPort.
type SlackSink struct {
	port SlackPort
}

func NewSlackSink(port SlackPort) *SlackSink {
	return &SlackSink{port: port}
}

func (s *SlackSink) Kind() domain.ChannelKind { return domain.ChannelSlack }

func (s *SlackSink) Send(ctx context.Context, env Envelope) Result {
	channel := env.Recipient
	if channel == "" {
		channel = env.UserID
	}
	err := s.port.Send(ctx, SlackRequest{Channel: channel, Text: env.Subject + "\n" + env.BodyText})
	if err == nil {
		return Result{Delivered: true}
	}
	if errors.Is(err, domain.ErrSinkPermanent) {
		return failure(FailurePermanent, "slack sink: %w", err)
	}
	return failure(FailureTransient, "slack sink: %w", err)
}
