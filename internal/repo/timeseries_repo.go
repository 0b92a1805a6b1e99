package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atsv3/resilience-core/internal/domain"
)

// Point is a single time-series write, matching persistent state
// layout: measurement name, tags, fields, timestamp.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]any
	Timestamp   time.Time
}

// TimeSeriesRepo is the port the Delivery Recorder uses to persist
// DeliveryRecord points and drive its background aggregation and retention
// tasks. Best-effort: implementations should not block callers indefinitely,
// and write errors here never propagate as dispatcher failures.
type TimeSeriesRepo interface {
	WritePoint(ctx context.Context, p Point) error
	WritePoints(ctx context.Context, points []Point) error

	// QueryRange returns every point of measurement with Timestamp in
	// [since, until), for the aggregation task to roll up.
	QueryRange(ctx context.Context, measurement string, since, until time.Time) ([]Point, error)

	// DeleteBefore removes every point of measurement with Timestamp before
	// cutoff, returning the count removed, for the retention task.
	DeleteBefore(ctx context.Context, measurement string, cutoff time.Time) (int, error)
}

// InMemoryTimeSeriesRepo retains every written point; used in tests and
// small deployments. Not meant for production retention at scale.
type InMemoryTimeSeriesRepo struct {
	mu     sync.Mutex
	points []Point

	// Fail, when true, makes every write return domain.ErrRepoTransient-like
	// behavior for exercising the recorder's storage-error counter in tests.
	Fail bool
}

func NewInMemoryTimeSeriesRepo() *InMemoryTimeSeriesRepo {
	return &InMemoryTimeSeriesRepo{}
}

func (r *InMemoryTimeSeriesRepo) WritePoint(ctx context.Context, p Point) error {
	return r.WritePoints(ctx, []Point{p})
}

func (r *InMemoryTimeSeriesRepo) WritePoints(ctx context.Context, points []Point) error {
	if r.Fail {
		return fmt.Errorf("timeseries repo: %w", domain.ErrRepoTransient)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append(r.points, points...)
	return nil
}

func (r *InMemoryTimeSeriesRepo) QueryRange(ctx context.Context, measurement string, since, until time.Time) ([]Point, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Point
	for _, p := range r.points {
		if p.Measurement != measurement {
			continue
		}
		if p.Timestamp.Before(since) || !p.Timestamp.Before(until) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *InMemoryTimeSeriesRepo) DeleteBefore(ctx context.Context, measurement string, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.points[:0]
	removed := 0
	for _, p := range r.points {
		if p.Measurement == measurement && p.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	r.points = kept
	return removed, nil
}

// Snapshot returns a copy of every point written so far, for test assertions.
func (r *InMemoryTimeSeriesRepo) Snapshot() []Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Point, len(r.points))
	copy(out, r.points)
	return out
}
