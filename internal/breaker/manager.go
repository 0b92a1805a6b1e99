// Package breaker wraps sony/gobreaker behind a Manager keyed by adapter
// name, so the resilient executor can guard an arbitrary, dynamically
// registered set of exchange adapters without constructing a breaker per
// call site.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/atsv3/resilience-core/internal/bus"
	"github.com/atsv3/resilience-core/internal/domain"
)

// Settings configures every breaker the Manager creates. A single set of
// thresholds applies uniformly across adapters; callers needing per-adapter
// tuning should run separate Managers.
type Settings struct {
	// MaxRequests caps the number of calls let through while half-open; the
	// breaker only closes once this many succeed consecutively.
	MaxRequests uint32
	// Interval resets the closed-state failure counter on this cadence; zero
	// disables the periodic reset (counters only clear on a state change).
	Interval time.Duration
	// Timeout is how long the breaker stays open before moving to
	// half-open.
	Timeout time.Duration
	// ConsecutiveFailures is the trip threshold: this many consecutive
	// failures in the closed state opens the breaker.
	ConsecutiveFailures uint32
}

// DefaultSettings mirrors the resilience defaults: five consecutive
// failures trip the breaker, it stays open 30s, and two consecutive
// half-open successes close it again.
func DefaultSettings() Settings {
	return Settings{
		MaxRequests:         2,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// Manager owns one gobreaker.CircuitBreaker per name, created lazily on
// first use and published to internal/bus on every state transition.
type Manager struct {
	settings Settings
	bus      *bus.Bus
	clock    func() time.Time

	mu        sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker
}

func NewManager(settings Settings, b *bus.Bus) *Manager {
	return &Manager{
		settings: settings,
		bus:      b,
		clock:    time.Now,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// UpdateSettings replaces the settings future breakers are built with;
// gobreaker exposes no way to reconfigure a breaker already created, so
// adapters with an existing entry in m.breakers keep their original
// settings until recreated (e.g. via Reset).
func (m *Manager) UpdateSettings(s Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
}

func (m *Manager) breakerFor(name string) *gobreaker.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[name]; ok {
		return cb
	}

	threshold := m.settings.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: m.settings.MaxRequests,
		Interval:    m.settings.Interval,
		Timeout:     m.settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			m.publishTransition(name, from, to)
		},
	})
	m.breakers[name] = cb
	return cb
}

func (m *Manager) publishTransition(name string, from, to gobreaker.State) {
	if m.bus == nil {
		return
	}
	_ = m.bus.Publish(context.Background(), bus.CircuitChangedEvent{
		Name:     name,
		Previous: toDomainState(from),
		Current:  toDomainState(to),
		At:       m.clock(),
	})
}

func toDomainState(s gobreaker.State) domain.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return domain.CircuitOpen
	case gobreaker.StateHalfOpen:
		return domain.CircuitHalfOpen
	default:
		return domain.CircuitClosed
	}
}

// Execute runs fn through the named breaker. A gobreaker.ErrOpenState or
// gobreaker.ErrTooManyRequests is surfaced to the caller as
// domain.ErrCircuitOpen so callers can classify with errors.Is uniformly
// regardless of which underlying state rejected the call.
func (m *Manager) Execute(name string, fn func() (any, error)) (any, error) {
	cb := m.breakerFor(name)
	result, err := cb.Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, domain.ErrCircuitOpen
	}
	return result, err
}

// State reports the current state of the named breaker without forcing its
// creation: an unregistered name reports Closed, matching gobreaker's
// zero-value behavior for a breaker that has never seen a call.
func (m *Manager) State(name string) domain.CircuitState {
	m.mu.Lock()
	cb, ok := m.breakers[name]
	m.mu.Unlock()
	if !ok {
		return domain.CircuitClosed
	}
	return toDomainState(cb.State())
}

// Reset forces the named breaker back to Closed, for the manual reset
// administrative operation.
func (m *Manager) Reset(name string) {
	cb := m.breakerFor(name)
	// gobreaker offers no forced-closed hook, so Reset drops the Manager
	// entry instead: the next call for name builds a fresh breaker, which
	// starts Closed under the Manager's current settings.
	m.mu.Lock()
	delete(m.breakers, name)
	m.mu.Unlock()
	_ = cb
}
