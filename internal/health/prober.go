// Package health implements the Health Prober: periodic, concurrent,
// per-exchange liveness checks that classify each adapter Healthy, Degraded,
// or Unhealthy and publish every status transition to internal/bus.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/atsv3/resilience-core/internal/bus"
	"github.com/atsv3/resilience-core/internal/domain"
)

// Adapter is the narrow contract the prober needs from an exchange
// connector: a liveness check and an optional deeper capability probe.
type Adapter interface {
	ExchangeID() string
	IsConnected(ctx context.Context) error
	// GetSupportedSymbols is an optional deeper probe; implementations that
	// have nothing extra to verify may return nil immediately.
	GetSupportedSymbols(ctx context.Context) error
}

// Thresholds controls how latency and error rate map to a HealthStatus.
type Thresholds struct {
	DegradedLatency   time.Duration
	UnhealthyLatency  time.Duration
	MaxErrorRate      float64 // fraction in [0,1]; exceeding this downgrades Healthy->Degraded
	ProbeTimeout      time.Duration
	ConsecutiveUnhealthyToTrip int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		DegradedLatency:            2 * time.Second,
		UnhealthyLatency:           5 * time.Second,
		MaxErrorRate:               0.1,
		ProbeTimeout:               10 * time.Second,
		ConsecutiveUnhealthyToTrip: 3,
	}
}

// Prober owns the latest ExchangeHealth snapshot per registered adapter and
// runs a periodic probe sweep.
type Prober struct {
	thresholds Thresholds
	bus        *bus.Bus
	log        *slog.Logger
	clock      func() time.Time

	mu       sync.RWMutex
	adapters map[string]Adapter
	health   map[string]domain.ExchangeHealth

	// errWindow tracks a simple error-rate estimate per exchange: the last 20
	// outcomes (true=error) of the deeper GetSupportedSymbols probe, taken
	// only on sweeps where the liveness check passed. Their error fraction is
	// compared against MaxErrorRate.
	errWindow map[string][]bool
}

func NewProber(thresholds Thresholds, b *bus.Bus, log *slog.Logger) *Prober {
	return &Prober{
		thresholds: thresholds,
		bus:        b,
		log:        log,
		clock:      time.Now,
		adapters:   make(map[string]Adapter),
		health:     make(map[string]domain.ExchangeHealth),
		errWindow:  make(map[string][]bool),
	}
}

// Register adds an adapter to the probe set with an initial Unknown status.
func (p *Prober) Register(a Adapter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.adapters[a.ExchangeID()] = a
	if _, ok := p.health[a.ExchangeID()]; !ok {
		p.health[a.ExchangeID()] = domain.ExchangeHealth{Status: domain.Unknown}
	}
}

// Unregister removes an adapter from future probe sweeps.
func (p *Prober) Unregister(exchangeID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.adapters, exchangeID)
	delete(p.health, exchangeID)
	delete(p.errWindow, exchangeID)
}

// Health returns the latest snapshot for exchangeID.
func (p *Prober) Health(exchangeID string) (domain.ExchangeHealth, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.health[exchangeID]
	return h, ok
}

// Snapshot returns every exchange's latest health, for the administrative
// read endpoint.
func (p *Prober) Snapshot() map[string]domain.ExchangeHealth {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]domain.ExchangeHealth, len(p.health))
	for k, v := range p.health {
		out[k] = v
	}
	return out
}

// ProbeAll runs one concurrent sweep across every registered adapter.
func (p *Prober) ProbeAll(ctx context.Context) {
	p.mu.RLock()
	adapters := make([]Adapter, 0, len(p.adapters))
	for _, a := range p.adapters {
		adapters = append(adapters, a)
	}
	p.mu.RUnlock()

	var wg sync.WaitGroup
	for _, a := range adapters {
		a := a
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.probeOne(ctx, a)
		}()
	}
	wg.Wait()
}

// UpdateThresholds replaces the thresholds applied to every probe outcome
// from this point on, including ones already in flight (probeOne reads the
// timeout fresh via thresholdsSnapshot, and record reads the rest under the
// same lock it already took).
func (p *Prober) UpdateThresholds(t Thresholds) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.thresholds = t
}

func (p *Prober) thresholdsSnapshot() Thresholds {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.thresholds
}

func (p *Prober) probeOne(ctx context.Context, a Adapter) {
	probeCtx, cancel := context.WithTimeout(ctx, p.thresholdsSnapshot().ProbeTimeout)
	defer cancel()

	start := p.clock()
	err := a.IsConnected(probeCtx)
	connected := err == nil
	if connected {
		err = a.GetSupportedSymbols(probeCtx)
	}
	latency := p.clock().Sub(start)

	p.record(a.ExchangeID(), latency, err, connected)
}

func (p *Prober) record(exchangeID string, latency time.Duration, probeErr error, connected bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	window := p.errWindow[exchangeID]
	if connected {
		// A failed liveness check is already counted by ConsecutiveFailures;
		// only deeper-probe outcomes feed the error-rate window.
		window = append(window, probeErr != nil)
		if len(window) > 20 {
			window = window[len(window)-20:]
		}
		p.errWindow[exchangeID] = window
	}

	errRate := errorRate(window)
	prev := p.health[exchangeID]
	next := classify(prev, latency, probeErr, errRate, p.thresholds, p.clock())
	p.health[exchangeID] = next

	if next.Status != prev.Status && p.bus != nil {
		_ = p.bus.Publish(context.Background(), bus.HealthChangedEvent{
			ExchangeID: exchangeID,
			Previous:   prev.Status,
			Current:    next,
			At:         next.LastCheck,
		})
		p.log.Info("exchange health changed", "exchange_id", exchangeID, "from", prev.Status, "to", next.Status)
	}
}

func errorRate(window []bool) float64 {
	if len(window) == 0 {
		return 0
	}
	errs := 0
	for _, e := range window {
		if e {
			errs++
		}
	}
	return float64(errs) / float64(len(window))
}

func classify(prev domain.ExchangeHealth, latency time.Duration, probeErr error, errRate float64, t Thresholds, now time.Time) domain.ExchangeHealth {
	next := prev
	next.Latency = latency
	next.LastCheck = now
	next.ErrorRate = errRate

	if probeErr != nil {
		next.ConsecutiveFailures++
		next.LastError = probeErr.Error()
		if next.ConsecutiveFailures >= t.ConsecutiveUnhealthyToTrip || latency >= t.UnhealthyLatency {
			next.Status = domain.Unhealthy
		} else {
			next.Status = domain.Degraded
		}
		return next
	}

	next.ConsecutiveFailures = 0
	next.LastError = ""
	next.LastSuccess = now

	switch {
	case latency >= t.UnhealthyLatency:
		next.Status = domain.Unhealthy
	case latency >= t.DegradedLatency:
		next.Status = domain.Degraded
	case errRate > t.MaxErrorRate:
		// Secondary downgrade signal: latency looks fine but the recent
		// error-rate window crossed the threshold.
		next.Status = domain.Degraded
	default:
		next.Status = domain.Healthy
	}
	return next
}

