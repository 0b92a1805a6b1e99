package domain

import (
	"time"

	"github.com/google/uuid"
)

// PendingBatch holds messages coalesced for deferred digest delivery to a
// single (user, channel) pair. At most one un-sent batch exists per pair at
// any instant (internal/batch enforces this).
type PendingBatch struct {
	BatchID    uuid.UUID
	UserID     string
	Channel    ChannelKind
	Messages   []*NotificationMessage // append-only until flushed, insertion order preserved
	CreatedAt  time.Time
	ScheduledAt time.Time
	Sent       bool
}

// DeliveryRecord is a write-only (from the core's perspective) record of one
// dispatch attempt, persisted to a time-series repository.
type DeliveryRecord struct {
	NotificationID uuid.UUID
	UserID         string
	Channel        ChannelKind
	Level          Level
	Category       string
	ExchangeID     string
	DeviceID       string
	Recipient      string

	CreatedAt   time.Time
	SentAt      time.Time
	DeliveredAt time.Time

	Delivered         bool
	RetryCount        int // prior failed attempts at time of this outcome
	DeliveryLatencyMs int64
	ErrorCode         string
	ErrorMessage      string
	TitleLength       int
	MessageLength     int

	Tags   map[string]string
	Fields map[string]any
}

// Latency recomputes DeliveryLatencyMs from DeliveredAt-SentAt, satisfying
// the invariant that delivered records carry a latency consistent with their
// timestamps.
func (r *DeliveryRecord) Latency() time.Duration {
	if !r.Delivered || r.DeliveredAt.IsZero() || r.SentAt.IsZero() {
		return 0
	}
	return r.DeliveredAt.Sub(r.SentAt)
}
