// Package failover implements the Failover Controller: maintains the
// registered set of exchange adapters, elects and tracks which one is
// primary, and triggers or reverses failover under a single-writer lock so
// concurrent health events can never leave two adapters marked primary.
package failover

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/atsv3/resilience-core/internal/bus"
	"github.com/atsv3/resilience-core/internal/domain"
)

// entry is one registered exchange's bookkeeping.
type entry struct {
	exchangeID   string
	priority     int
	isPrimary    bool
	health       domain.ExchangeHealth
	lastFailover time.Time
}

// Controller owns the registered exchange set. All mutation happens under
// mu, which doubles as the single-writer election lock the design requires.
type Controller struct {
	mu       sync.Mutex
	entries  map[string]*entry
	bus      *bus.Bus
	log      *slog.Logger
	clock    func() time.Time
	cooldown time.Duration // auto-failback cooldown, counted from when an exchange lost primary
}

func NewController(b *bus.Bus, log *slog.Logger, failbackCooldown time.Duration) *Controller {
	return &Controller{
		entries:  make(map[string]*entry),
		bus:      b,
		log:      log,
		clock:    time.Now,
		cooldown: failbackCooldown,
	}
}

// UpdateCooldown replaces the auto-failback cooldown applied to future
// recoveries; a recovery already past cooldown and ready to fail back is
// unaffected.
func (c *Controller) UpdateCooldown(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cooldown = d
}

// Register adds an exchange to the failover set. Higher priority values are
// preferred as primary (priority=3 outranks priority=1); the first exchange
// registered becomes primary by default.
func (c *Controller) Register(exchangeID string, priority int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry{exchangeID: exchangeID, priority: priority, health: domain.ExchangeHealth{Status: domain.Unknown}}
	c.entries[exchangeID] = e
	if c.countPrimaryLocked() == 0 {
		e.isPrimary = true
	}
}

// Unregister removes an exchange, electing a new primary if it had that
// role.
func (c *Controller) Unregister(exchangeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasPrimary := false
	if e, ok := c.entries[exchangeID]; ok {
		wasPrimary = e.isPrimary
	}
	delete(c.entries, exchangeID)
	if wasPrimary {
		c.electLocked(domain.ReasonHealthCheckFailed)
	}
}

// UpdateHealth records the latest ExchangeHealth for exchangeID and
// triggers an automatic failover if the current primary just became
// unavailable, or an automatic failback once the highest-priority available
// exchange recovers and the cooldown has elapsed.
func (c *Controller) UpdateHealth(exchangeID string, h domain.ExchangeHealth) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[exchangeID]
	if !ok {
		return
	}
	e.health = h

	if e.isPrimary && !h.IsAvailable() {
		c.electLocked(domain.ReasonHealthCheckFailed)
		return
	}
	if !e.isPrimary {
		c.maybeFailbackLocked()
	}
}

// maybeFailbackLocked switches primary back to the highest-priority
// available exchange once its own cooldown since the last failover has
// elapsed, avoiding flapping on a briefly-recovering adapter.
func (c *Controller) maybeFailbackLocked() {
	best := c.bestCandidateLocked()
	if best == nil || best.isPrimary {
		return
	}
	now := c.clock()
	if !best.lastFailover.IsZero() && now.Sub(best.lastFailover) < c.cooldown {
		return
	}
	current := c.currentPrimaryLocked()
	if current != nil && best.priority <= current.priority {
		return
	}
	c.setPrimaryLocked(best, domain.ReasonFailback)
}

// TriggerFailover transitions away from exchangeID for reason, provided
// exchangeID is the current primary. A failure reported against an
// adapter that is no longer (or never was) primary is a no-op, since the
// primary role has already moved on or was never there to begin with.
func (c *Controller) TriggerFailover(exchangeID string, reason domain.FailoverReason) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.currentPrimaryLocked()
	if current == nil || current.exchangeID != exchangeID {
		return
	}
	c.electLocked(reason)
}

// ManualFailover forces targetExchangeID to become primary regardless of
// priority ordering, provided it is registered and available.
func (c *Controller) ManualFailover(targetExchangeID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[targetExchangeID]
	if !ok || !e.health.IsAvailable() {
		return false
	}
	c.setPrimaryLocked(e, domain.ReasonManualTrigger)
	return true
}

func (c *Controller) electLocked(reason domain.FailoverReason) {
	best := c.bestCandidateLocked()
	if best == nil {
		c.log.Error("failover: no available exchange to elect")
		return
	}
	c.setPrimaryLocked(best, reason)
}

func (c *Controller) setPrimaryLocked(target *entry, reason domain.FailoverReason) {
	from := c.currentPrimaryLocked()
	var fromID string
	if from != nil {
		from.isPrimary = false
		fromID = from.exchangeID
	}
	target.isPrimary = true
	target.lastFailover = c.clock()

	if fromID == target.exchangeID {
		return
	}
	// The demoted primary's failback cooldown runs from this transition.
	if from != nil {
		from.lastFailover = target.lastFailover
	}

	if c.bus != nil {
		_ = c.bus.Publish(context.Background(), bus.FailoverTriggeredEvent{
			FromExchangeID: fromID,
			ToExchangeID:   target.exchangeID,
			Reason:         reason,
			At:             target.lastFailover,
		})
	}
	c.log.Info("failover triggered", "from", fromID, "to", target.exchangeID, "reason", reason)
}

// bestCandidateLocked returns the available entry with the highest priority
// number, nil if none are available.
func (c *Controller) bestCandidateLocked() *entry {
	candidates := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		if e.health.IsAvailable() {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].priority > candidates[j].priority })
	return candidates[0]
}

func (c *Controller) currentPrimaryLocked() *entry {
	for _, e := range c.entries {
		if e.isPrimary {
			return e
		}
	}
	return nil
}

func (c *Controller) countPrimaryLocked() int {
	n := 0
	for _, e := range c.entries {
		if e.isPrimary {
			n++
		}
	}
	return n
}

// Primary returns the current primary exchange id, "" if none elected.
func (c *Controller) Primary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.currentPrimaryLocked(); e != nil {
		return e.exchangeID
	}
	return ""
}

// OrderedAdapters returns every registered exchange id ordered primary
// first, then by descending priority (highest priority value next), for
// the resilient executor's fallback sequence.
func (c *Controller) OrderedAdapters() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].isPrimary != entries[j].isPrimary {
			return entries[i].isPrimary
		}
		return entries[i].priority > entries[j].priority
	})

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.exchangeID
	}
	return ids
}
