package sink

import (
	"context"
	"errors"

	"github.com/atsv3/resilience-core/internal/domain"
)

// SMSSink delivers via SMSPort.
type SMSSink struct {
	port SMSPort
}

func NewSMSSink(port SMSPort) *SMSSink {
	return &SMSSink{port: port}
}

func (s *SMSSink) Kind() domain.ChannelKind { return domain.ChannelSMS }

func (s *SMSSink) Send(ctx context.Context, env Envelope) Result {
	err := s.port.Send(ctx, SMSRequest{To: env.Recipient, Body: env.BodyText})
	if err == nil {
		return Result{Delivered: true}
	}
	if errors.Is(err, domain.ErrSinkPermanent) || errors.Is(err, domain.ErrInvalidRecipient) {
		return failure(FailurePermanent, "sms sink: %w", err)
	}
	return failure(FailureTransient, "sms sink: %w", err)
}
