package failover

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/atsv3/resilience-core/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func healthy() domain.ExchangeHealth {
	return domain.ExchangeHealth{Status: domain.Healthy, LastCheck: time.Now()}
}

func unhealthy() domain.ExchangeHealth {
	return domain.ExchangeHealth{Status: domain.Unhealthy, LastCheck: time.Now()}
}

// TestFailoverChain reproduces spec scenario S5: registering A(pri=3),
// B(pri=2), C(pri=1) all healthy elects A as primary (highest priority
// value wins); failing A over elects B; failing B over elects C.
func TestFailoverChain(t *testing.T) {
	c := NewController(nil, discardLogger(), time.Minute)
	c.Register("A", 3)
	c.Register("B", 2)
	c.Register("C", 1)
	c.UpdateHealth("A", healthy())
	c.UpdateHealth("B", healthy())
	c.UpdateHealth("C", healthy())

	if got := c.Primary(); got != "A" {
		t.Fatalf("initial primary = %q, want A (highest priority)", got)
	}

	c.UpdateHealth("A", unhealthy())
	c.TriggerFailover("A", domain.ReasonHealthCheckFailed)
	if got := c.Primary(); got != "B" {
		t.Fatalf("after A fails, primary = %q, want B", got)
	}

	c.UpdateHealth("B", unhealthy())
	c.TriggerFailover("B", domain.ReasonHealthCheckFailed)
	if got := c.Primary(); got != "C" {
		t.Fatalf("after B fails, primary = %q, want C", got)
	}
}

func TestFailoverChain_AutoFailbackAfterCooldown(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewController(nil, discardLogger(), time.Minute)
	c.clock = func() time.Time { return now }

	c.Register("A", 3)
	c.Register("B", 2)
	c.UpdateHealth("A", healthy())
	c.UpdateHealth("B", healthy())
	if got := c.Primary(); got != "A" {
		t.Fatalf("initial primary = %q, want A", got)
	}

	c.UpdateHealth("A", unhealthy())
	c.TriggerFailover("A", domain.ReasonHealthCheckFailed)
	if got := c.Primary(); got != "B" {
		t.Fatalf("primary after A fails = %q, want B", got)
	}

	// A recovers immediately; cooldown hasn't elapsed yet, so no failback.
	c.UpdateHealth("A", healthy())
	if got := c.Primary(); got != "B" {
		t.Fatalf("primary should stay B inside cooldown, got %q", got)
	}

	// Cooldown elapses.
	now = now.Add(2 * time.Minute)
	c.UpdateHealth("A", healthy())
	if got := c.Primary(); got != "A" {
		t.Fatalf("primary should fail back to A after cooldown, got %q", got)
	}
}

func TestController_UpdateCooldownShortensFailbackWait(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewController(nil, discardLogger(), time.Hour)
	c.clock = func() time.Time { return now }

	c.Register("A", 3)
	c.Register("B", 2)
	c.UpdateHealth("A", healthy())
	c.UpdateHealth("B", healthy())

	c.UpdateHealth("A", unhealthy())
	c.TriggerFailover("A", domain.ReasonHealthCheckFailed)
	if got := c.Primary(); got != "B" {
		t.Fatalf("primary after A fails = %q, want B", got)
	}

	// Shrink the cooldown well below the original hour-long wait.
	c.UpdateCooldown(time.Minute)

	now = now.Add(2 * time.Minute)
	c.UpdateHealth("A", healthy())
	if got := c.Primary(); got != "A" {
		t.Fatalf("primary should fail back to A under the shortened cooldown, got %q", got)
	}
}

func TestOrderedAdapters_PrimaryFirstThenDescendingPriority(t *testing.T) {
	c := NewController(nil, discardLogger(), time.Minute)
	c.Register("low", 1)
	c.Register("high", 3)
	c.Register("mid", 2)
	c.UpdateHealth("low", healthy())
	c.UpdateHealth("high", healthy())
	c.UpdateHealth("mid", healthy())
	// Marking "high" healthy fails back to it; a manual failover makes "low"
	// primary again even though its priority is lowest.
	if !c.ManualFailover("low") {
		t.Fatal("manual failover to low should succeed")
	}

	// OrderedAdapters must still place the primary "low" first.
	order := c.OrderedAdapters()
	if len(order) != 3 || order[0] != "low" {
		t.Fatalf("order = %v, want primary (low) first", order)
	}
	if order[1] != "high" || order[2] != "mid" {
		t.Fatalf("order = %v, want high before mid among non-primary entries", order)
	}
}

// TestTriggerFailover_NoopWhenNotPrimary covers spec §4.9's "if id is the
// primary" gate: reporting a failure against an adapter that has already
// lost (or never held) the primary role must not force a new election.
func TestTriggerFailover_NoopWhenNotPrimary(t *testing.T) {
	c := NewController(nil, discardLogger(), time.Minute)
	c.Register("A", 3)
	c.Register("B", 2)
	c.UpdateHealth("A", healthy())
	c.UpdateHealth("B", healthy())

	if got := c.Primary(); got != "A" {
		t.Fatalf("initial primary = %q, want A", got)
	}
	c.TriggerFailover("B", domain.ReasonAPIError)
	if got := c.Primary(); got != "A" {
		t.Fatalf("triggering failover for non-primary B should be a no-op, primary = %q", got)
	}
}

func TestManualFailover_RejectsUnavailableTarget(t *testing.T) {
	c := NewController(nil, discardLogger(), time.Minute)
	c.Register("A", 1)
	c.Register("B", 2)
	c.UpdateHealth("A", healthy())
	c.UpdateHealth("B", unhealthy())

	if c.ManualFailover("B") {
		t.Fatal("manual failover to an unavailable exchange should fail")
	}
	if ok := c.ManualFailover("A"); !ok || c.Primary() != "A" {
		t.Fatalf("manual failover to an available exchange should succeed, primary = %q", c.Primary())
	}
}
