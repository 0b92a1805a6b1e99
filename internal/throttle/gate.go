// Package throttle implements the Throttle/Quiet-Hours Gate: a
// per-(user_id, rule_id) sliding-window emission counter plus cooldown,
// rechecked after the Rule Evaluator has already said Allow.
package throttle

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Verdict is the gate's decision for one emission attempt.
type Verdict string

const (
	VerdictAllow     Verdict = "allow"
	VerdictThrottled Verdict = "throttled"
)

// window is the per-(user_id, rule_id) state: a sliding-window emission log
// plus the last-sent timestamp for cooldown. Not a field of
// domain.NotificationRule.
type window struct {
	mu        sync.Mutex
	emitted   []time.Time
	lastSent  time.Time
}

// Gate is sharded across an LRU keyed by (user_id, rule_id) so memory stays
// bounded under many users while each key gets its own lock.
type Gate struct {
	clock func() time.Time

	mu    sync.Mutex
	cache *lru.Cache[string, *window]
}

// NewGate builds a Gate bounded to maxKeys distinct (user_id, rule_id)
// pairs. clock defaults to time.Now if nil, overridable for tests.
func NewGate(maxKeys int, clock func() time.Time) *Gate {
	if clock == nil {
		clock = time.Now
	}
	if maxKeys <= 0 {
		maxKeys = 100_000
	}
	cache, _ := lru.New[string, *window](maxKeys)
	return &Gate{clock: clock, cache: cache}
}

func key(userID, ruleID string) string {
	return userID + "\x00" + ruleID
}

func (g *Gate) windowFor(userID, ruleID string) *window {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := key(userID, ruleID)
	if w, ok := g.cache.Get(k); ok {
		return w
	}
	w := &window{}
	g.cache.Add(k, w)
	return w
}

// Check evaluates whether an emission for (userID, ruleID) is allowed under
// maxPerHour/cooldown, evicting emissions older than one hour lazily on read.
// On VerdictAllow, the emission is recorded so subsequent calls see it.
func (g *Gate) Check(userID, ruleID string, maxPerHour int, cooldown time.Duration) Verdict {
	w := g.windowFor(userID, ruleID)
	w.mu.Lock()
	defer w.mu.Unlock()

	now := g.clock()
	cutoff := now.Add(-time.Hour)

	kept := w.emitted[:0]
	for _, t := range w.emitted {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.emitted = kept

	if !w.lastSent.IsZero() && cooldown > 0 && now.Sub(w.lastSent) < cooldown {
		return VerdictThrottled
	}
	if maxPerHour > 0 && len(w.emitted) >= maxPerHour {
		return VerdictThrottled
	}

	w.emitted = append(w.emitted, now)
	w.lastSent = now
	return VerdictAllow
}

// Count returns the number of emissions currently counted within the
// trailing hour for (userID, ruleID), for observability/tests.
func (g *Gate) Count(userID, ruleID string) int {
	w := g.windowFor(userID, ruleID)
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.emitted)
}
