package sink

import (
	"context"

	"github.com/atsv3/resilience-core/internal/domain"
)

// WebhookSink delivers via WebhookPort. HTTP 2xx = success, 429 = rate
// limited (retry delay respected by the dispatcher), other 4xx = permanent.
type WebhookSink struct {
	port WebhookPort
}

func NewWebhookSink(port WebhookPort) *WebhookSink {
	return &WebhookSink{port: port}
}

func (s *WebhookSink) Kind() domain.ChannelKind { return domain.ChannelWebhook }

func (s *WebhookSink) Send(ctx context.Context, env Envelope) Result {
	resp, err := s.port.Send(ctx, WebhookRequest{
		URL:      env.URL,
		Headers:  env.Headers,
		JSONBody: env.JSONBody,
	})
	if err != nil {
		return failure(FailureTransient, "webhook sink: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Result{Delivered: true}
	case resp.StatusCode == 429:
		return failure(FailureRateLimited, "webhook sink: rate limited (status %d)", resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return failure(FailurePermanent, "webhook sink: client error (status %d)", resp.StatusCode)
	default:
		return failure(FailureTransient, "webhook sink: status %d", resp.StatusCode)
	}
}
