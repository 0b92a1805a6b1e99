package rules

import (
	"testing"
	"time"

	"github.com/atsv3/resilience-core/internal/domain"
)

func baseProfile() domain.UserProfile {
	p := domain.DefaultUserProfile("u1")
	p.Timezone = "UTC"
	return p
}

func TestEvaluate_GlobalDisabled(t *testing.T) {
	p := baseProfile()
	p.GlobalEnabled = false
	msg := domain.NewNotificationMessage(domain.Warning, "t", "b", nil)

	out := Evaluate(p, msg, "risk", domain.ChannelPush, time.Now())
	if out.Decision != DecisionDrop || out.Reason != "global_disabled" {
		t.Fatalf("got %+v, want drop(global_disabled)", out)
	}
}

func TestEvaluate_ChannelDisabled(t *testing.T) {
	p := baseProfile()
	p.ChannelEnabled[domain.ChannelSMS] = false
	msg := domain.NewNotificationMessage(domain.Critical, "t", "b", nil)

	out := Evaluate(p, msg, "risk", domain.ChannelSMS, time.Now())
	if out.Decision != DecisionDrop || out.Reason != "channel_disabled" {
		t.Fatalf("got %+v, want drop(channel_disabled)", out)
	}
}

func TestEvaluate_QuietHoursWrapMidnight(t *testing.T) {
	p := baseProfile()
	p.QuietModeEnabled = true
	p.QuietStart = "22:00"
	p.QuietEnd = "08:00"

	// 23:30 UTC is inside the wrap-around window.
	now := time.Date(2026, 1, 1, 23, 30, 0, 0, time.UTC)
	msg := domain.NewNotificationMessage(domain.Warning, "t", "b", nil)

	out := Evaluate(p, msg, "risk", domain.ChannelPush, now)
	if out.Decision != DecisionDrop || out.Reason != "quiet_hours" {
		t.Fatalf("23:30 should be quiet, got %+v", out)
	}

	// 03:00 UTC is also inside the wrap-around window.
	now = time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	out = Evaluate(p, msg, "risk", domain.ChannelPush, now)
	if out.Decision != DecisionDrop || out.Reason != "quiet_hours" {
		t.Fatalf("03:00 should be quiet, got %+v", out)
	}

	// 12:00 UTC is outside the window.
	now = time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	out = Evaluate(p, msg, "risk", domain.ChannelPush, now)
	if out.Decision == DecisionDrop && out.Reason == "quiet_hours" {
		t.Fatalf("12:00 should not be quiet, got %+v", out)
	}
}

func TestEvaluate_QuietHoursCriticalBypasses(t *testing.T) {
	p := baseProfile()
	p.QuietModeEnabled = true
	p.QuietStart = "22:00"
	p.QuietEnd = "08:00"

	now := time.Date(2026, 1, 1, 23, 30, 0, 0, time.UTC)
	msg := domain.NewNotificationMessage(domain.Critical, "t", "b", nil)

	out := Evaluate(p, msg, "risk", domain.ChannelPush, now)
	if out.Decision == DecisionDrop && out.Reason == "quiet_hours" {
		t.Fatalf("critical message must bypass quiet hours, got %+v", out)
	}
}

func TestEvaluate_RuleTieBreak_ExactCategoryBeatsAll(t *testing.T) {
	p := baseProfile()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	allRule := domain.NotificationRule{
		RuleID: "all", UserID: "u1", Category: "all", MinLevel: domain.Info,
		EnabledChannels: map[domain.ChannelKind]bool{domain.ChannelPush: true},
		Frequency:       domain.Disabled,
		Enabled:         true,
		UpdatedAt:       now.Add(-time.Hour),
	}
	riskRule := domain.NotificationRule{
		RuleID: "risk", UserID: "u1", Category: "risk", MinLevel: domain.Info,
		EnabledChannels: map[domain.ChannelKind]bool{domain.ChannelPush: true},
		Frequency:       domain.Immediate,
		Enabled:         true,
		UpdatedAt:       now.Add(-2 * time.Hour),
	}
	p.Rules = []domain.NotificationRule{allRule, riskRule}

	msg := domain.NewNotificationMessage(domain.Warning, "t", "b", nil)
	out := Evaluate(p, msg, "risk", domain.ChannelPush, now)
	if out.Decision != DecisionAllow || out.Rule == nil || out.Rule.RuleID != "risk" {
		t.Fatalf("exact-category rule should win over 'all' even though older, got %+v", out)
	}
}

func TestEvaluate_RuleTieBreak_MostRecentWinsAmongEqualSpecificity(t *testing.T) {
	p := baseProfile()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	older := domain.NotificationRule{
		RuleID: "older", UserID: "u1", Category: "risk", MinLevel: domain.Info,
		EnabledChannels: map[domain.ChannelKind]bool{domain.ChannelPush: true},
		Frequency:       domain.Disabled,
		Enabled:         true,
		UpdatedAt:       now.Add(-2 * time.Hour),
	}
	newer := domain.NotificationRule{
		RuleID: "newer", UserID: "u1", Category: "risk", MinLevel: domain.Info,
		EnabledChannels: map[domain.ChannelKind]bool{domain.ChannelPush: true},
		Frequency:       domain.Immediate,
		Enabled:         true,
		UpdatedAt:       now.Add(-time.Hour),
	}
	p.Rules = []domain.NotificationRule{older, newer}

	msg := domain.NewNotificationMessage(domain.Warning, "t", "b", nil)
	out := Evaluate(p, msg, "risk", domain.ChannelPush, now)
	if out.Decision != DecisionAllow || out.Rule == nil || out.Rule.RuleID != "newer" {
		t.Fatalf("most recently updated rule should win, got %+v", out)
	}
}

func TestEvaluate_BatchedFrequencySetsDeadline(t *testing.T) {
	p := baseProfile()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	p.Rules = []domain.NotificationRule{{
		RuleID: "digest", UserID: "u1", Category: "market", MinLevel: domain.Info,
		EnabledChannels: map[domain.ChannelKind]bool{domain.ChannelEmail: true},
		Frequency:       domain.Batched15m,
		Enabled:         true,
		UpdatedAt:       now,
	}}

	msg := domain.NewNotificationMessage(domain.Info, "t", "b", nil)
	out := Evaluate(p, msg, "market", domain.ChannelEmail, now)
	if out.Decision != DecisionBatch {
		t.Fatalf("got %+v, want batch", out)
	}
	if !out.Deadline.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("deadline = %v, want %v", out.Deadline, now.Add(15*time.Minute))
	}
}

func TestEvaluate_DefaultFallback(t *testing.T) {
	p := baseProfile()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	infoMsg := domain.NewNotificationMessage(domain.Info, "t", "b", nil)
	if out := Evaluate(p, infoMsg, "unscoped", domain.ChannelPush, now); out.Decision != DecisionDrop || out.Reason != "no_rule" {
		t.Fatalf("info with no matching rule should drop(no_rule), got %+v", out)
	}

	warnMsg := domain.NewNotificationMessage(domain.Warning, "t", "b", nil)
	if out := Evaluate(p, warnMsg, "unscoped", domain.ChannelPush, now); out.Decision != DecisionAllow {
		t.Fatalf("warning with no matching rule should allow by default, got %+v", out)
	}
}
