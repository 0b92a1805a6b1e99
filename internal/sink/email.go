package sink

import (
	"context"
	"errors"

	"github.com/atsv3/resilience-core/internal/domain"
)

// EmailSink delivers via EmailPort. Retryable on connection errors,
// permanent on auth failure: the port is expected to wrap its
// error with domain.ErrSinkPermanent for the latter.
type EmailSink struct {
	port EmailPort
}

func NewEmailSink(port EmailPort) *EmailSink {
	return &EmailSink{port: port}
}

func (s *EmailSink) Kind() domain.ChannelKind { return domain.ChannelEmail }

func (s *EmailSink) Send(ctx context.Context, env Envelope) Result {
	err := s.port.Send(ctx, EmailRequest{
		To:       env.Recipient,
		Subject:  env.Subject,
		BodyHTML: env.BodyHTML,
		BodyText: env.BodyText,
		Priority: env.Priority,
		Headers:  env.Headers,
	})
	if err == nil {
		return Result{Delivered: true}
	}
	if errors.Is(err, domain.ErrSinkPermanent) {
		return failure(FailurePermanent, "email sink: %w", err)
	}
	if errors.Is(err, domain.ErrInvalidRecipient) {
		return failure(FailureInvalidRecipient, "email sink: %w", err)
	}
	return failure(FailureTransient, "email sink: %w", err)
}
