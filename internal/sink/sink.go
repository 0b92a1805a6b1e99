// Package sink implements the uniform outbound-channel abstraction: one Sink
// per channel kind, each wrapping an external port the core only consumes
// through a narrow interface (PushPort, EmailPort, WebhookPort, ...). The
// actual SMTP/HTTP/FCM clients are out of scope; this package stops at the
// port boundary.
package sink

import (
	"context"
	"fmt"

	"github.com/atsv3/resilience-core/internal/domain"
)

// FailureKind is the closed set of ways a Sink.Send can fail.
// Only Permanent and InvalidRecipient are terminal; Transient and
// RateLimited are retried by the dispatcher.
type FailureKind string

const (
	FailureNone             FailureKind = ""
	FailureTransient        FailureKind = "transient"
	FailurePermanent        FailureKind = "permanent"
	FailureRateLimited      FailureKind = "rate_limited"
	FailureInvalidRecipient FailureKind = "invalid_recipient"
)

// Terminal reports whether the dispatcher should stop retrying on this kind.
func (k FailureKind) Terminal() bool {
	return k == FailurePermanent || k == FailureInvalidRecipient
}

// Envelope is what the dispatcher hands a Sink after rule evaluation and
// template rendering: a correlation id, rendered content, and recipient
// addressing. Not every field is meaningful for every channel kind (e.g.
// Token is push-only); Sinks ignore fields they don't use.
type Envelope struct {
	NotificationID string
	UserID         string
	Level          domain.Level
	Category       string
	Priority       string // "normal" | "high"

	Subject  string
	BodyHTML string
	BodyText string

	// Push.
	DeviceID string
	Token    string
	Icon     string
	TTLSecs  int
	Data     map[string]string

	// Email / webhook.
	Recipient string
	Headers   map[string]string
	URL       string
	JSONBody  map[string]any
}

// Result is what a Sink returns for one Send call.
type Result struct {
	Delivered     bool
	Failure       FailureKind
	Error         error
	TokenInvalid  bool // push only: recipient device token is dead
	RetryAfterMs  int64
}

// Sink is the capability every channel implementation provides. Send never
// panics; all failure modes are reported through Result.Failure/Result.Error.
type Sink interface {
	Kind() domain.ChannelKind
	Send(ctx context.Context, env Envelope) Result
}

// failure is a small helper used by the concrete sinks to build a
// consistent Result for a given FailureKind.
func failure(kind FailureKind, format string, args ...any) Result {
	return Result{Failure: kind, Error: fmt.Errorf(format, args...)}
}
