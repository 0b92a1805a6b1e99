package sink

import (
	"context"

	"github.com/atsv3/resilience-core/internal/domain"
)

// PushSink delivers to a single device via PushPort.
type PushSink struct {
	port PushPort
}

func NewPushSink(port PushPort) *PushSink {
	return &PushSink{port: port}
}

func (s *PushSink) Kind() domain.ChannelKind { return domain.ChannelPush }

func (s *PushSink) Send(ctx context.Context, env Envelope) Result {
	resp, err := s.port.Send(ctx, PushRequest{
		Token:    env.Token,
		Title:    env.Subject,
		Body:     env.BodyText,
		Icon:     env.Icon,
		Priority: envPriority(env.Priority),
		TTLSecs:  env.TTLSecs,
		Data:     env.Data,
	})
	if err != nil {
		return failure(FailureTransient, "push sink: %w", err)
	}
	if resp.TokenInvalid {
		return Result{Delivered: false, Failure: FailureInvalidRecipient, TokenInvalid: true, Error: resp.Error}
	}
	if !resp.Delivered {
		return failure(FailureTransient, "push sink: not delivered: %w", resp.Error)
	}
	return Result{Delivered: true}
}

func envPriority(p string) string {
	if p == "high" {
		return "high"
	}
	return "normal"
}
