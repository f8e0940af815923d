package domain

import (
	"testing"
	"time"
)

func TestTierPrecedence(t *testing.T) {
	now := time.Now()
	sub := now.Add(time.Hour)

	cases := []struct {
		name     string
		identity Identity
		want     Tier
	}{
		{"standard", Identity{}, TierStandard},
		{"special", Identity{IsSpecial: true}, TierSpecial},
		{"boss", Identity{SubExpiry: &sub}, TierBoss},
		{"boss beats special", Identity{IsSpecial: true, SubExpiry: &sub}, TierBoss},
		{"admin beats boss", Identity{IsAdmin: true, SubExpiry: &sub}, TierAdmin},
		{"root beats admin", Identity{IsAdmin: true, IsRootAdmin: true}, TierRootAdmin},
	}
	for _, tc := range cases {
		if got := tc.identity.Tier(now); got != tc.want {
			t.Fatalf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestExpiredSubscriptionFallsBack(t *testing.T) {
	now := time.Now()
	expired := now.Add(-time.Minute)
	identity := Identity{IsSpecial: true, SubExpiry: &expired}

	if identity.SubscriptionActive(now) {
		t.Fatal("expired subscription must be inactive")
	}
	if got := identity.Tier(now); got != TierSpecial {
		t.Fatalf("expected fallback to special, got %s", got)
	}
	allowance := DefaultQuotaLimits.AllowanceFor(identity, now)
	if allowance.Unlimited || allowance.Limit != DefaultQuotaLimits.Special {
		t.Fatalf("expected special limit, got %+v", allowance)
	}
}

func TestAllowanceMonotonicity(t *testing.T) {
	now := time.Now()
	sub := now.Add(time.Hour)

	standard := DefaultQuotaLimits.AllowanceFor(Identity{}, now)
	special := DefaultQuotaLimits.AllowanceFor(Identity{IsSpecial: true}, now)
	boss := DefaultQuotaLimits.AllowanceFor(Identity{SubExpiry: &sub}, now)
	admin := DefaultQuotaLimits.AllowanceFor(Identity{IsAdmin: true}, now)

	if standard.Unlimited || special.Unlimited {
		t.Fatal("standard and special must be limited")
	}
	if special.Limit <= standard.Limit {
		t.Fatalf("special limit must exceed standard: %d <= %d", special.Limit, standard.Limit)
	}
	if !boss.Unlimited || !admin.Unlimited {
		t.Fatal("boss and admin must be unlimited")
	}
}

func TestCurrentCountRollover(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)
	today := now.Add(-time.Hour)

	stale := Identity{SentToday: 5, LastSendDay: &yesterday}
	if got := stale.CurrentCount(now); got != 0 {
		t.Fatalf("stale day must read as zero, got %d", got)
	}
	if stale.SentToday != 5 {
		t.Fatal("read must not mutate the counter")
	}

	fresh := Identity{SentToday: 3, LastSendDay: &today}
	if got := fresh.CurrentCount(now); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}

	never := Identity{}
	if got := never.CurrentCount(now); got != 0 {
		t.Fatalf("expected 0 for never-sent, got %d", got)
	}
}

func TestSameDayUTC(t *testing.T) {
	a := time.Date(2026, 8, 31, 23, 30, 0, 0, time.UTC)
	b := time.Date(2026, 8, 31, 0, 10, 0, 0, time.UTC)
	c := time.Date(2026, 9, 1, 0, 10, 0, 0, time.UTC)

	if !SameDay(a, b) {
		t.Fatal("same UTC day must match")
	}
	if SameDay(a, c) {
		t.Fatal("different UTC days must not match")
	}

	// Локальное время сравнивается после приведения к UTC.
	loc := time.FixedZone("plus3", 3*3600)
	d := time.Date(2026, 9, 1, 1, 0, 0, 0, loc) // 31.08 22:00 UTC
	if !SameDay(a, d) {
		t.Fatal("comparison must run in UTC")
	}
}

func TestSchedulingAndRevealPrivileges(t *testing.T) {
	now := time.Now()
	sub := now.Add(time.Hour)

	if (Identity{}).CanSchedule(now) || (Identity{IsSpecial: true}).CanSchedule(now) {
		t.Fatal("standard and special must not schedule")
	}
	for _, identity := range []Identity{
		{SubExpiry: &sub},
		{IsAdmin: true},
		{IsRootAdmin: true},
	} {
		if !identity.CanSchedule(now) || !identity.CanReveal(now) {
			t.Fatalf("privileged identity must schedule and reveal: %+v", identity)
		}
	}
}

func TestRemainingToday(t *testing.T) {
	unlimited := QuotaState{Allowance: Allowance{Unlimited: true}, Used: 100}
	if unlimited.RemainingToday() != -1 {
		t.Fatal("unlimited must report -1")
	}
	limited := QuotaState{Allowance: Allowance{Limit: 5}, Used: 3}
	if got := limited.RemainingToday(); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	over := QuotaState{Allowance: Allowance{Limit: 5}, Used: 7}
	if got := over.RemainingToday(); got != 0 {
		t.Fatalf("remaining must not go negative, got %d", got)
	}
}

func TestSenderDisplay(t *testing.T) {
	withUsername := Identity{ID: 1, Username: "someone", FullName: "Имя"}
	if got := withUsername.SenderDisplay(); got != "@someone" {
		t.Fatalf("unexpected display: %q", got)
	}
	withoutUsername := Identity{ID: 2, FullName: "Имя"}
	if got := withoutUsername.SenderDisplay(); got != `<a href="tg://user?id=2">Имя</a>` {
		t.Fatalf("unexpected display: %q", got)
	}
	anonymous := Identity{ID: 3}
	if got := anonymous.SenderDisplay(); got != `<a href="tg://user?id=3">Аноним</a>` {
		t.Fatalf("unexpected display: %q", got)
	}
}

func TestNewMessageID(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 1000; i++ {
		id := NewMessageID()
		if len(id) != 32 {
			t.Fatalf("expected 32 hex chars, got %d", len(id))
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id: %s", id)
		}
		seen[id] = struct{}{}
	}
}
