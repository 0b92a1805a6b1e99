package sink

import "context"

// The port interfaces below are the external collaborators each Sink wraps,
// contract-only: the actual SMTP/HTTP/FCM clients are out of scope. Each
// concrete Sink in this package wraps exactly one of these ports.

// PushRequest is the payload handed to PushPort.Send.
type PushRequest struct {
	Token    string
	Title    string
	Body     string
	Icon     string
	Priority string // "normal" | "high"
	TTLSecs  int
	Data     map[string]string
}

// PushResponse is the outcome PushPort.Send reports.
type PushResponse struct {
	Delivered    bool
	Error        error
	TokenInvalid bool
}

// PushPort sends a push notification to a single device token.
type PushPort interface {
	Send(ctx context.Context, req PushRequest) (PushResponse, error)
}

// EmailRequest is the payload handed to EmailPort.Send.
type EmailRequest struct {
	To       string
	Subject  string
	BodyHTML string
	BodyText string
	Priority string
	Headers  map[string]string
}

// EmailPort sends an email. Retryable on connection errors, permanent on
// auth failure.
type EmailPort interface {
	Send(ctx context.Context, req EmailRequest) error
}

// WebhookRequest is the payload handed to WebhookPort.Send.
type WebhookRequest struct {
	URL      string
	Headers  map[string]string
	JSONBody map[string]any
}

// WebhookResponse carries the HTTP status the dispatcher needs to classify
// the outcome: 2xx success, 429 rate-limited, other 4xx permanent.
type WebhookResponse struct {
	StatusCode int
}

// WebhookPort posts a JSON payload to an arbitrary URL.
type WebhookPort interface {
	Send(ctx context.Context, req WebhookRequest) (WebhookResponse, error)
}

// SMSRequest is the SMS-channel analogue of EmailRequest, minus HTML.
type SMSRequest struct {
	To   string
	Body string
}

// SMSPort sends a text message.
type SMSPort interface {
	Send(ctx context.Context, req SMSRequest) error
}

// SlackRequest posts a message to a Slack-shaped webhook/channel target.
type SlackRequest struct {
	Channel string
	Text    string
}

// SlackPort posts to Slack.
type SlackPort interface {
	Send(ctx context.Context, req SlackRequest) error
}
