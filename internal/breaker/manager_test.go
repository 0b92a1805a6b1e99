package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/atsv3/resilience-core/internal/domain"
)

func testSettings() Settings {
	return Settings{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             50 * time.Millisecond,
		ConsecutiveFailures: 3,
	}
}

func TestManager_TripsAfterConsecutiveFailures(t *testing.T) {
	m := NewManager(testSettings(), nil)
	failing := func() (any, error) { return nil, errors.New("boom") }

	for i := 0; i < 3; i++ {
		if _, err := m.Execute("exA", failing); err == nil {
			t.Fatalf("call %d should fail", i)
		}
	}

	if got := m.State("exA"); got != domain.CircuitOpen {
		t.Fatalf("breaker state = %v, want Open after 3 consecutive failures", got)
	}

	_, err := m.Execute("exA", func() (any, error) { return "ok", nil })
	if !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("call while open should return ErrCircuitOpen, got %v", err)
	}
}

func TestManager_UnregisteredNameReportsClosed(t *testing.T) {
	m := NewManager(testSettings(), nil)
	if got := m.State("never-called"); got != domain.CircuitClosed {
		t.Fatalf("unregistered breaker state = %v, want Closed", got)
	}
}

func TestManager_SuccessKeepsBreakerClosed(t *testing.T) {
	m := NewManager(testSettings(), nil)
	for i := 0; i < 5; i++ {
		if _, err := m.Execute("exB", func() (any, error) { return "ok", nil }); err != nil {
			t.Fatalf("call %d: unexpected error %v", i, err)
		}
	}
	if got := m.State("exB"); got != domain.CircuitClosed {
		t.Fatalf("breaker state = %v, want Closed", got)
	}
}

func TestManager_UpdateSettingsAppliesToNewBreakersOnly(t *testing.T) {
	m := NewManager(testSettings(), nil)
	failing := func() (any, error) { return nil, errors.New("boom") }

	for i := 0; i < 3; i++ {
		m.Execute("existing", failing)
	}
	if got := m.State("existing"); got != domain.CircuitOpen {
		t.Fatalf("precondition: existing breaker should be open, got %v", got)
	}

	m.UpdateSettings(Settings{MaxRequests: 1, Interval: time.Minute, Timeout: 50 * time.Millisecond, ConsecutiveFailures: 1})

	// existing was tripped under its original 3-failure threshold and the
	// update does not touch it, so it stays open.
	if got := m.State("existing"); got != domain.CircuitOpen {
		t.Fatalf("existing breaker state = %v, want still Open", got)
	}

	// a brand new breaker name picks up the updated 1-failure threshold.
	m.Execute("fresh", failing)
	if got := m.State("fresh"); got != domain.CircuitOpen {
		t.Fatalf("fresh breaker state = %v, want Open after a single failure under updated settings", got)
	}
}

func TestManager_ResetClearsTrippedBreaker(t *testing.T) {
	m := NewManager(testSettings(), nil)
	failing := func() (any, error) { return nil, errors.New("boom") }
	for i := 0; i < 3; i++ {
		m.Execute("exC", failing)
	}
	if got := m.State("exC"); got != domain.CircuitOpen {
		t.Fatalf("precondition: breaker should be open, got %v", got)
	}

	m.Reset("exC")
	if got := m.State("exC"); got != domain.CircuitClosed {
		t.Fatalf("after Reset, state = %v, want Closed", got)
	}
}
