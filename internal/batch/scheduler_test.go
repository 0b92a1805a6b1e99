package batch

import (
	"testing"
	"time"

	"github.com/atsv3/resilience-core/internal/domain"
)

func msg() *domain.NotificationMessage {
	return domain.NewNotificationMessage(domain.Info, "t", "b", nil)
}

func TestScheduler_EnqueueCoalescesIntoOneBatch(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewScheduler(func() time.Time { return now })

	deadline := now.Add(15 * time.Minute)
	b1 := s.Enqueue("u1", domain.ChannelEmail, msg(), deadline)
	b2 := s.Enqueue("u1", domain.ChannelEmail, msg(), now.Add(5*time.Minute))

	if b1.BatchID != b2.BatchID {
		t.Fatal("two enqueues for the same (user, channel) should coalesce into one batch")
	}
	if len(b1.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(b1.Messages))
	}
	if !b1.ScheduledAt.Equal(deadline) {
		t.Fatalf("ScheduledAt = %v, want the first deadline %v (never recomputed)", b1.ScheduledAt, deadline)
	}
}

func TestScheduler_TickReturnsOnlyDueBatchesAndMarksSent(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewScheduler(func() time.Time { return now })

	s.Enqueue("u1", domain.ChannelEmail, msg(), now.Add(-time.Minute)) // already due
	s.Enqueue("u2", domain.ChannelEmail, msg(), now.Add(time.Hour))    // not due

	due := s.Tick(now)
	if len(due) != 1 || due[0].UserID != "u1" {
		t.Fatalf("got %v, want only u1's batch due", due)
	}
	if !due[0].Sent {
		t.Fatal("due batch should be marked Sent")
	}
	if s.Pending() != 1 {
		t.Fatalf("pending = %d, want 1 (u2's batch remains)", s.Pending())
	}

	// Ticking again must not return the same batch twice.
	if due2 := s.Tick(now); len(due2) != 0 {
		t.Fatalf("second Tick returned %v, want none (already sent and removed)", due2)
	}
}

func TestScheduler_EnqueueAfterSentStartsNewBatch(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewScheduler(func() time.Time { return now })

	first := s.Enqueue("u1", domain.ChannelEmail, msg(), now)
	s.Tick(now)

	second := s.Enqueue("u1", domain.ChannelEmail, msg(), now.Add(time.Minute))
	if second.BatchID == first.BatchID {
		t.Fatal("enqueue after the prior batch was sent should start a fresh batch")
	}
}

func TestScheduler_DrainFlushesEverythingRegardlessOfDeadline(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewScheduler(func() time.Time { return now })

	s.Enqueue("u1", domain.ChannelEmail, msg(), now.Add(24*time.Hour))
	s.Enqueue("u2", domain.ChannelPush, msg(), now.Add(48*time.Hour))

	drained := s.Drain()
	if len(drained) != 2 {
		t.Fatalf("got %d drained batches, want 2", len(drained))
	}
	if s.Pending() != 0 {
		t.Fatalf("pending = %d, want 0 after Drain", s.Pending())
	}
}
