// Package batch implements the Batch Scheduler: holds pending
// messages per (user_id, channel), releasing digests at policy-driven
// deadlines.
package batch

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atsv3/resilience-core/internal/domain"
)

// Scheduler maintains an indexed collection of PendingBatch keyed by
// (user_id, channel). A single mutex guards the index; critical sections are
// brief.
type Scheduler struct {
	mu      sync.Mutex
	batches map[string]*domain.PendingBatch // key(userID, channel) -> batch
	clock   func() time.Time
}

func NewScheduler(clock func() time.Time) *Scheduler {
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{batches: make(map[string]*domain.PendingBatch), clock: clock}
}

func key(userID string, channel domain.ChannelKind) string {
	return userID + "\x00" + string(channel)
}

// Enqueue appends msg to the un-sent batch for (userID, channel), creating
// one with ScheduledAt=deadline if none exists. The earliest deadline wins
// and is never recomputed on append.
func (s *Scheduler) Enqueue(userID string, channel domain.ChannelKind, msg *domain.NotificationMessage, deadline time.Time) *domain.PendingBatch {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(userID, channel)
	b, ok := s.batches[k]
	if !ok || b.Sent {
		b = &domain.PendingBatch{
			BatchID:     uuid.New(),
			UserID:      userID,
			Channel:     channel,
			CreatedAt:   s.clock(),
			ScheduledAt: deadline,
		}
		s.batches[k] = b
	}
	b.Messages = append(b.Messages, msg)
	return b
}

// Tick returns every batch whose ScheduledAt <= now and marks it Sent
// atomically under the index lock, so a concurrent Tick can never double
// dispatch the same batch.
func (s *Scheduler) Tick(now time.Time) []*domain.PendingBatch {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*domain.PendingBatch
	for k, b := range s.batches {
		if !b.Sent && !b.ScheduledAt.After(now) {
			b.Sent = true
			due = append(due, b)
			delete(s.batches, k)
		}
	}
	return due
}

// Drain unconditionally flushes every un-sent batch, used at shutdown.
func (s *Scheduler) Drain() []*domain.PendingBatch {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]*domain.PendingBatch, 0, len(s.batches))
	for k, b := range s.batches {
		if b.Sent {
			continue
		}
		b.Sent = true
		due = append(due, b)
		delete(s.batches, k)
	}
	return due
}

// Pending reports how many un-sent batches currently exist, for
// observability and the invariant-3 property test.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}
