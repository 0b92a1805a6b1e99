// Package recorder implements the Delivery Recorder: durably logs every
// dispatch attempt without ever blocking the caller, deduplicates by
// notification id, and aggregates hourly/daily counters in the background.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/atsv3/resilience-core/internal/domain"
	"github.com/atsv3/resilience-core/internal/repo"
)

// Mode controls whether records are written immediately or coalesced for a
// later flush.
type Mode int

const (
	ModeImmediate Mode = iota
	ModeBatch
)

// Recorder owns a bounded queue of pending DeliveryRecords, a dedup cache
// keyed by notification id, channel and creation time, and storage-error counters that never propagate
// to callers.
type Recorder struct {
	repo   repo.TimeSeriesRepo
	log    *slog.Logger
	mode   Mode
	maxLen int

	mu     sync.Mutex
	queue  []domain.DeliveryRecord

	dedup *lru.Cache[string, struct{}]

	dropped      atomic.Int64 // overflow drops (queue full)
	storageErrs  atomic.Int64 // failed flush attempts
	recorded     atomic.Int64 // total accepted records

	clock func() time.Time
}

// Option configures a Recorder at construction.
type Option func(*Recorder)

func WithMode(m Mode) Option { return func(r *Recorder) { r.mode = m } }

func WithMaxQueue(n int) Option { return func(r *Recorder) { r.maxLen = n } }

func WithClock(c func() time.Time) Option { return func(r *Recorder) { r.clock = c } }

func New(repository repo.TimeSeriesRepo, log *slog.Logger, opts ...Option) *Recorder {
	dedup, _ := lru.New[string, struct{}](50_000)
	r := &Recorder{
		repo:   repository,
		log:    log,
		mode:   ModeImmediate,
		maxLen: 10_000,
		dedup:  dedup,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record ingests one delivery attempt. Duplicate NotificationID+Channel+
// CreatedAt keys (a retried dispatch re-recording the same attempt) are dropped
// silently. On queue overflow the oldest pending record is dropped to make
// room, and the drop is counted, never blocking the caller.
func (r *Recorder) Record(rec domain.DeliveryRecord) {
	dedupKey := rec.NotificationID.String() + "\x00" + string(rec.Channel) + "\x00" + rec.CreatedAt.String()
	if _, seen := r.dedup.Get(dedupKey); seen {
		return
	}
	r.dedup.Add(dedupKey, struct{}{})

	r.mu.Lock()
	if len(r.queue) >= r.maxLen {
		r.queue = r.queue[1:]
		r.dropped.Add(1)
	}
	r.queue = append(r.queue, rec)
	immediate := r.mode == ModeImmediate
	r.mu.Unlock()

	r.recorded.Add(1)

	if immediate {
		r.flush(context.Background())
	}
}

// flush writes every queued record to the repository. Storage errors are
// logged and counted, never returned to Record's caller.
func (r *Recorder) flush(ctx context.Context) {
	r.mu.Lock()
	pending := r.queue
	r.queue = nil
	r.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	points := make([]repo.Point, 0, len(pending))
	for _, rec := range pending {
		points = append(points, toPoint(rec))
	}

	if err := r.repo.WritePoints(ctx, points); err != nil {
		r.storageErrs.Add(1)
		r.log.Error("recorder flush failed", "error", err, "count", len(pending))
		return
	}
	r.log.Debug("recorder flushed", "count", len(pending))
}

// Flush forces a write of whatever is queued, used by the batch-mode
// background task and at shutdown.
func (r *Recorder) Flush(ctx context.Context) {
	r.flush(ctx)
}

// eventsMeasurement is the time-series measurement name for one dispatch
// attempt, matching the persisted schema: tags identify the attempt, fields
// carry its numeric/boolean outcome.
const eventsMeasurement = "notification_events"

func toPoint(rec domain.DeliveryRecord) repo.Point {
	delivered := 0
	if rec.Delivered {
		delivered = 1
	}
	return repo.Point{
		Measurement: eventsMeasurement,
		Tags: map[string]string{
			"notification_id": rec.NotificationID.String(),
			"user_id":         rec.UserID,
			"channel_type":    string(rec.Channel),
			"level":           rec.Level.String(),
			"category":        rec.Category,
			"exchange_id":     rec.ExchangeID,
			"device_id":       rec.DeviceID,
		},
		Fields: map[string]any{
			"delivered":        delivered,
			"retry_count":      rec.RetryCount,
			"delivery_time_ms": rec.DeliveryLatencyMs,
			"title_length":     rec.TitleLength,
			"message_length":   rec.MessageLength,
		},
		Timestamp: rec.CreatedAt,
	}
}

// hourlyAggregates and dailyAggregates are the roll-up measurement names the
// aggregation task writes one point to per window.
const (
	hourlyAggregates = "notification_aggregates"
	dailyAggregates  = "notification_daily_aggregates"
)

// AggregateHourly rolls up the last complete hour of notification_events
// into one notification_aggregates point: counts by level and channel,
// delivery/retry totals, and delivery-latency min/avg/max.
func (r *Recorder) AggregateHourly(ctx context.Context) {
	r.aggregate(ctx, hourlyAggregates, time.Hour)
}

// AggregateDaily rolls up the last complete day the same way, into
// notification_daily_aggregates.
func (r *Recorder) AggregateDaily(ctx context.Context) {
	r.aggregate(ctx, dailyAggregates, 24*time.Hour)
}

func (r *Recorder) aggregate(ctx context.Context, measurement string, window time.Duration) {
	until := r.clock().Truncate(window)
	since := until.Add(-window)

	points, err := r.repo.QueryRange(ctx, eventsMeasurement, since, until)
	if err != nil {
		r.storageErrs.Add(1)
		r.log.Error("recorder aggregate query failed", "measurement", measurement, "error", err)
		return
	}
	if len(points) == 0 {
		return
	}

	agg := newAggregate()
	for _, p := range points {
		agg.add(p)
	}

	if err := r.repo.WritePoint(ctx, agg.point(measurement, since)); err != nil {
		r.storageErrs.Add(1)
		r.log.Error("recorder aggregate write failed", "measurement", measurement, "error", err)
		return
	}
	r.log.Debug("recorder aggregated", "measurement", measurement, "window_start", since, "events", len(points))
}

// Cleanup removes notification_events and both aggregate measurements older
// than retention, the background retention task's implementation.
func (r *Recorder) Cleanup(ctx context.Context, retention time.Duration) {
	cutoff := r.clock().Add(-retention)
	total := 0
	for _, measurement := range []string{eventsMeasurement, hourlyAggregates, dailyAggregates} {
		n, err := r.repo.DeleteBefore(ctx, measurement, cutoff)
		if err != nil {
			r.storageErrs.Add(1)
			r.log.Error("recorder retention cleanup failed", "measurement", measurement, "error", err)
			continue
		}
		total += n
	}
	if total > 0 {
		r.log.Info("recorder retention cleanup", "removed", total, "cutoff", cutoff)
	}
}

// aggregate accumulates per-window counters keyed by level and channel while
// tracking overall delivery/retry totals and latency bounds.
type aggregate struct {
	total, delivered, retries int
	byLevel, byChannel        map[string]int
	latMin, latMax, latSum    int64
	latCount                  int64
}

func newAggregate() *aggregate {
	return &aggregate{byLevel: map[string]int{}, byChannel: map[string]int{}}
}

func (a *aggregate) add(p repo.Point) {
	a.total++
	a.byLevel[p.Tags["level"]]++
	a.byChannel[p.Tags["channel_type"]]++

	if delivered, _ := p.Fields["delivered"].(int); delivered == 1 {
		a.delivered++
	}
	if retries, ok := p.Fields["retry_count"].(int); ok {
		a.retries += retries
	}
	ms, ok := p.Fields["delivery_time_ms"].(int64)
	if !ok || ms <= 0 {
		return
	}
	if a.latCount == 0 || ms < a.latMin {
		a.latMin = ms
	}
	if ms > a.latMax {
		a.latMax = ms
	}
	a.latSum += ms
	a.latCount++
}

func (a *aggregate) point(measurement string, windowStart time.Time) repo.Point {
	fields := map[string]any{
		"total":         a.total,
		"delivered":     a.delivered,
		"retry_count":   a.retries,
		"latency_min_ms": a.latMin,
		"latency_max_ms": a.latMax,
	}
	if a.latCount > 0 {
		fields["latency_avg_ms"] = a.latSum / a.latCount
	} else {
		fields["latency_avg_ms"] = int64(0)
	}
	for level, n := range a.byLevel {
		fields["count_level_"+level] = n
	}
	for channel, n := range a.byChannel {
		fields["count_channel_"+channel] = n
	}
	return repo.Point{
		Measurement: measurement,
		Tags:        map[string]string{"window_start": windowStart.UTC().Format(time.RFC3339)},
		Fields:      fields,
		Timestamp:   windowStart,
	}
}

// Stats is a point-in-time snapshot of recorder counters, exposed through
// the administrative API.
type Stats struct {
	Recorded    int64
	Dropped     int64
	StorageErrs int64
	QueueDepth  int
}

func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	depth := len(r.queue)
	r.mu.Unlock()
	return Stats{
		Recorded:    r.recorded.Load(),
		Dropped:     r.dropped.Load(),
		StorageErrs: r.storageErrs.Load(),
		QueueDepth:  depth,
	}
}

