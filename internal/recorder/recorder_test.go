package recorder

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/atsv3/resilience-core/internal/domain"
	"github.com/atsv3/resilience-core/internal/repo"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecorder_ImmediateModeWritesThrough(t *testing.T) {
	store := repo.NewInMemoryTimeSeriesRepo()
	r := New(store, discardLogger(), WithMode(ModeImmediate))

	r.Record(domain.DeliveryRecord{
		NotificationID: uuid.New(),
		UserID:         "u1",
		Channel:        domain.ChannelPush,
		Delivered:      true,
		CreatedAt:      time.Now(),
	})

	points := store.Snapshot()
	if len(points) != 1 {
		t.Fatalf("got %d points, want 1", len(points))
	}
	if points[0].Measurement != eventsMeasurement {
		t.Fatalf("measurement = %q, want %q", points[0].Measurement, eventsMeasurement)
	}
	if points[0].Fields["delivered"] != 1 {
		t.Fatalf("delivered field = %v, want 1", points[0].Fields["delivered"])
	}
}

func TestRecorder_DedupByNotificationChannelAndTimestamp(t *testing.T) {
	store := repo.NewInMemoryTimeSeriesRepo()
	r := New(store, discardLogger(), WithMode(ModeImmediate))

	id := uuid.New()
	now := time.Now()
	rec := domain.DeliveryRecord{NotificationID: id, Channel: domain.ChannelEmail, CreatedAt: now}

	r.Record(rec)
	r.Record(rec)

	if got := len(store.Snapshot()); got != 1 {
		t.Fatalf("got %d points after duplicate Record, want 1", got)
	}
}

func TestRecorder_BatchModeQueuesUntilFlush(t *testing.T) {
	store := repo.NewInMemoryTimeSeriesRepo()
	r := New(store, discardLogger(), WithMode(ModeBatch))

	r.Record(domain.DeliveryRecord{NotificationID: uuid.New(), Channel: domain.ChannelSMS, CreatedAt: time.Now()})
	if got := len(store.Snapshot()); got != 0 {
		t.Fatalf("batch mode should not write before Flush, got %d points", got)
	}

	r.Flush(context.Background())
	if got := len(store.Snapshot()); got != 1 {
		t.Fatalf("after Flush, got %d points, want 1", got)
	}
}

func TestRecorder_OverflowDropsOldestAndCounts(t *testing.T) {
	store := repo.NewInMemoryTimeSeriesRepo()
	r := New(store, discardLogger(), WithMode(ModeBatch), WithMaxQueue(2))

	for i := 0; i < 3; i++ {
		r.Record(domain.DeliveryRecord{NotificationID: uuid.New(), Channel: domain.ChannelLog, CreatedAt: time.Now().Add(time.Duration(i) * time.Second)})
	}

	stats := r.Stats()
	if stats.QueueDepth != 2 {
		t.Fatalf("queue depth = %d, want 2", stats.QueueDepth)
	}
	if stats.Dropped != 1 {
		t.Fatalf("dropped = %d, want 1", stats.Dropped)
	}
}

func TestRecorder_StorageErrorsAreCountedNotPropagated(t *testing.T) {
	store := repo.NewInMemoryTimeSeriesRepo()
	store.Fail = true
	r := New(store, discardLogger(), WithMode(ModeImmediate))

	r.Record(domain.DeliveryRecord{NotificationID: uuid.New(), Channel: domain.ChannelPush, CreatedAt: time.Now()})

	if got := r.Stats().StorageErrs; got != 1 {
		t.Fatalf("storage errors = %d, want 1", got)
	}
}

func TestRecorder_AggregateHourlyRollsUpEvents(t *testing.T) {
	store := repo.NewInMemoryTimeSeriesRepo()
	hourStart := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	now := hourStart.Add(time.Hour)
	r := New(store, discardLogger(), WithMode(ModeImmediate), WithClock(func() time.Time { return now }))

	r.Record(domain.DeliveryRecord{
		NotificationID: uuid.New(), Channel: domain.ChannelPush, Level: domain.Warning,
		Delivered: true, DeliveryLatencyMs: 100, CreatedAt: hourStart.Add(10 * time.Minute),
	})
	r.Record(domain.DeliveryRecord{
		NotificationID: uuid.New(), Channel: domain.ChannelEmail, Level: domain.Error,
		Delivered: false, CreatedAt: hourStart.Add(20 * time.Minute),
	})

	r.AggregateHourly(context.Background())

	points := store.Snapshot()
	var agg *repo.Point
	for i := range points {
		if points[i].Measurement == hourlyAggregates {
			agg = &points[i]
		}
	}
	if agg == nil {
		t.Fatal("expected one notification_aggregates point")
	}
	if agg.Fields["total"] != 2 {
		t.Fatalf("total = %v, want 2", agg.Fields["total"])
	}
	if agg.Fields["delivered"] != 1 {
		t.Fatalf("delivered = %v, want 1", agg.Fields["delivered"])
	}
}

func TestRecorder_CleanupRemovesRecordsPastRetention(t *testing.T) {
	store := repo.NewInMemoryTimeSeriesRepo()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r := New(store, discardLogger(), WithMode(ModeImmediate), WithClock(func() time.Time { return now }))

	r.Record(domain.DeliveryRecord{NotificationID: uuid.New(), Channel: domain.ChannelLog, CreatedAt: now.Add(-40 * 24 * time.Hour)})
	r.Record(domain.DeliveryRecord{NotificationID: uuid.New(), Channel: domain.ChannelLog, CreatedAt: now.Add(-1 * time.Hour)})

	r.Cleanup(context.Background(), 30*24*time.Hour)

	points := store.Snapshot()
	if len(points) != 1 {
		t.Fatalf("got %d points after cleanup, want 1 (recent record retained)", len(points))
	}
}
