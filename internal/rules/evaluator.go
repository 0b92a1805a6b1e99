// Package rules implements the Rule Evaluator: given a profile
// snapshot, a message, a category, and a channel, decide whether to emit
// now, batch, or drop.
package rules

import (
	"strings"
	"time"

	"github.com/atsv3/resilience-core/internal/domain"
)

// Decision is the outcome kind C4 returns.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionBatch Decision = "batch"
	DecisionDrop  Decision = "drop"
)

// Outcome is the full result of evaluating one (user, message, category,
// channel) tuple: a Decision plus whichever of Deadline/Reason/Rule applies.
type Outcome struct {
	Decision Decision
	Deadline time.Time         // set when Decision == DecisionBatch
	Reason   string            // set when Decision == DecisionDrop
	Rule     *domain.NotificationRule // the matched rule, if any
}

func allow(rule *domain.NotificationRule) Outcome {
	return Outcome{Decision: DecisionAllow, Rule: rule}
}

func batch(deadline time.Time, rule *domain.NotificationRule) Outcome {
	return Outcome{Decision: DecisionBatch, Deadline: deadline, Rule: rule}
}

func drop(reason string, rule *domain.NotificationRule) Outcome {
	return Outcome{Decision: DecisionDrop, Reason: reason, Rule: rule}
}

// Evaluate runs the ordered decision checks against a single channel.
// now is passed in explicitly (rather than read from
// time.Now()) so evaluation observes a consistent instant across all
// channels of a single message and so callers can inject a clock for tests.
func Evaluate(profile domain.UserProfile, msg *domain.NotificationMessage, category string, channel domain.ChannelKind, now time.Time) Outcome {
	// 1. Global switch.
	if !profile.GlobalEnabled {
		return drop("global_disabled", nil)
	}

	// 2. Channel switch.
	if !profile.ChannelEnabled[channel] {
		return drop("channel_disabled", nil)
	}

	// 3. Quiet hours, with correct midnight wrap-around arithmetic (never a
	// raw string comparison, which breaks across midnight).
	if profile.QuietModeEnabled && inQuietWindow(profile.QuietStart, profile.QuietEnd, profile.Timezone, now) {
		if msg.Level != domain.Critical {
			return drop("quiet_hours", nil)
		}
	}

	// 4. Rule matching: find the best match among enabled rules scoped to
	// this category (exact category beats "all"; most recently updated wins
	// among equals).
	best, ok := bestMatchingRule(profile.Rules, msg, category, channel, profile.Timezone, now)
	if ok {
		switch best.Frequency {
		case domain.Disabled:
			return drop("rule_disabled", &best)
		case domain.Immediate:
			return allow(&best)
		default:
			if interval, hasInterval := best.Frequency.Interval(); hasInterval {
				return batch(now.Add(interval), &best)
			}
			return allow(&best)
		}
	}

	// 5. Default fallback: deliver warnings and above.
	if msg.Level >= domain.Warning {
		return allow(nil)
	}
	return drop("no_rule", nil)
}

// bestMatchingRule finds the rule (if any) matching the ordered criteria,
// tie-breaking on category specificity then recency.
func bestMatchingRule(rules []domain.NotificationRule, msg *domain.NotificationMessage, category string, channel domain.ChannelKind, tz string, now time.Time) (domain.NotificationRule, bool) {
	var best domain.NotificationRule
	found := false

	for _, r := range rules {
		if !r.Enabled || !r.Matches(category) {
			continue
		}
		if msg.Level < r.MinLevel {
			continue
		}
		if !r.ChannelEnabled(channel) {
			continue
		}
		if len(r.ExchangeFilters) > 0 && !containsString(r.ExchangeFilters, msg.ExchangeID) {
			continue
		}
		if len(r.KeywordFilters) > 0 && !anyKeywordPresent(r.KeywordFilters, msg.Title, msg.Body) {
			continue
		}
		if len(r.ExcludeKeywords) > 0 && anyKeywordPresent(r.ExcludeKeywords, msg.Title, msg.Body) {
			continue
		}
		// Quiet-hours/day scope on the rule itself, mirroring the profile
		// check but per-rule (a rule may narrow further than the profile).
		if ruleInQuietScope(r, tz, now) && msg.Level != domain.Critical {
			continue
		}

		if !found || moreSpecific(r, best) {
			best = r
			found = true
		}
	}
	return best, found
}

// moreSpecific reports whether candidate should win over current: exact
// category beats "all"; among equal specificity, the more recently updated
// rule wins.
func moreSpecific(candidate, current domain.NotificationRule) bool {
	candidateExact := candidate.Category != "all"
	currentExact := current.Category != "all"
	if candidateExact != currentExact {
		return candidateExact
	}
	return candidate.UpdatedAt.After(current.UpdatedAt)
}

func containsString(haystack []string, needle string) bool {
	if needle == "" {
		return false
	}
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func anyKeywordPresent(keywords []string, fields ...string) bool {
	for _, kw := range keywords {
		lkw := strings.ToLower(kw)
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), lkw) {
				return true
			}
		}
	}
	return false
}

func ruleInQuietScope(r domain.NotificationRule, tz string, now time.Time) bool {
	local := inTimezone(now, tz)
	for _, d := range r.QuietDays {
		if local.Weekday() == d {
			return true
		}
	}
	if r.QuietHoursStart == "" || r.QuietHoursEnd == "" {
		return false
	}
	return inQuietWindow(r.QuietHoursStart, r.QuietHoursEnd, tz, now)
}

// inQuietWindow reports whether now (converted to tz) falls within
// [start, end), correctly handling windows that wrap past midnight
// (e.g. "22:00" to "08:00") using minute-of-day integer comparison instead
// of a naive string comparison.
func inQuietWindow(start, end, tz string, now time.Time) bool {
	startMin, okStart := parseHHMM(start)
	endMin, okEnd := parseHHMM(end)
	if !okStart || !okEnd {
		return false
	}

	local := inTimezone(now, tz)
	nowMin := local.Hour()*60 + local.Minute()

	if startMin == endMin {
		// Zero-width or full-day window depending on convention; treat as
		// "always quiet" since start==end with a quiet mode enabled is only
		// meaningful as an all-day window.
		return true
	}
	if startMin < endMin {
		return nowMin >= startMin && nowMin < endMin
	}
	// Wraps across midnight.
	return nowMin >= startMin || nowMin < endMin
}

func parseHHMM(s string) (int, bool) {
	if len(s) != 5 || s[2] != ':' {
		return 0, false
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func inTimezone(now time.Time, tz string) time.Time {
	if tz == "" {
		return now.UTC()
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return now.UTC()
	}
	return now.In(loc)
}
