// Package transport provides the concrete port implementations the
// application wiring hands to internal/sink's channel Sinks. Webhook and
// Slack both reduce to "POST JSON to a URL", so they get a real net/http
// client; push/email/SMS require provider SDKs (FCM, SMTP, Twilio, ...)
// that are out of scope, so they log the would-be send and report it as
// delivered.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/atsv3/resilience-core/internal/sink"
)

// HTTPWebhook implements sink.WebhookPort over a plain net/http.Client.
type HTTPWebhook struct {
	client *http.Client
}

func NewHTTPWebhook(client *http.Client) *HTTPWebhook {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPWebhook{client: client}
}

func (h *HTTPWebhook) Send(ctx context.Context, req sink.WebhookRequest) (sink.WebhookResponse, error) {
	body, err := json.Marshal(req.JSONBody)
	if err != nil {
		return sink.WebhookResponse{}, fmt.Errorf("transport: marshal webhook body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		return sink.WebhookResponse{}, fmt.Errorf("transport: build webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return sink.WebhookResponse{}, fmt.Errorf("transport: webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	return sink.WebhookResponse{StatusCode: resp.StatusCode}, nil
}

// SlackWebhook implements sink.SlackPort by posting the Slack incoming-webhook
// payload shape to a single configured URL.
type SlackWebhook struct {
	url    string
	client *http.Client
}

func NewSlackWebhook(url string, client *http.Client) *SlackWebhook {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &SlackWebhook{url: url, client: client}
}

func (s *SlackWebhook) Send(ctx context.Context, req sink.SlackRequest) error {
	payload := map[string]any{"channel": req.Channel, "text": req.Text}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("transport: marshal slack payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("transport: build slack request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("transport: slack request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("transport: slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// LoggingPush, LoggingEmail and LoggingSMS stand in for the FCM/SMTP/Twilio
// clients a real deployment would plug in. They log at debug level and
// report success, so SendDirect/dispatcher wiring exercises the full path
// end to end without requiring credentials to a third-party provider.
type LoggingPush struct{ log *slog.Logger }

func NewLoggingPush(log *slog.Logger) *LoggingPush { return &LoggingPush{log: log} }

func (p *LoggingPush) Send(ctx context.Context, req sink.PushRequest) (sink.PushResponse, error) {
	p.log.Debug("transport: push send (no provider configured)", "title", req.Title, "priority", req.Priority)
	return sink.PushResponse{Delivered: true}, nil
}

type LoggingEmail struct{ log *slog.Logger }

func NewLoggingEmail(log *slog.Logger) *LoggingEmail { return &LoggingEmail{log: log} }

func (e *LoggingEmail) Send(ctx context.Context, req sink.EmailRequest) error {
	e.log.Debug("transport: email send (no provider configured)", "to", req.To, "subject", req.Subject)
	return nil
}

type LoggingSMS struct{ log *slog.Logger }

func NewLoggingSMS(log *slog.Logger) *LoggingSMS { return &LoggingSMS{log: log} }

func (s *LoggingSMS) Send(ctx context.Context, req sink.SMSRequest) error {
	s.log.Debug("transport: sms send (no provider configured)", "to", req.To)
	return nil
}
