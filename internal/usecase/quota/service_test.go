package quota

import (
	"sync"
	"testing"
	"time"

	"tg-anon-bot/internal/domain"
)

type stubIdentities struct {
	mu         sync.Mutex
	identities map[int64]*domain.Identity
}

func (s *stubIdentities) Upsert(profile domain.TelegramProfile) (domain.Identity, error) {
	return domain.Identity{}, nil
}

func (s *stubIdentities) Get(id int64) (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return domain.Identity{}, domain.ErrNotFound
	}
	return *identity, nil
}

func (s *stubIdentities) SetAdmin(id int64, value bool) error               { return nil }
func (s *stubIdentities) SetSpecial(id int64, value bool) error             { return nil }
func (s *stubIdentities) SetBanned(id int64, value bool) error              { return nil }
func (s *stubIdentities) GrantSubscription(id int64, until time.Time) error { return nil }
func (s *stubIdentities) Stats() (int, int, error)                          { return 0, 0, nil }

func (s *stubIdentities) TryConsumeQuota(id int64, now time.Time, limits domain.QuotaLimits) (domain.QuotaState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return domain.QuotaState{}, domain.ErrNotFound
	}
	allowance := limits.AllowanceFor(*identity, now)
	used := identity.CurrentCount(now)
	state := domain.QuotaState{Allowance: allowance, Used: used}
	if !allowance.Unlimited && used >= allowance.Limit {
		return state, nil
	}
	day := now.UTC()
	identity.SentToday = used + 1
	identity.LastSendDay = &day
	state.Allowed = true
	state.Used = used + 1
	return state, nil
}

func TestTryConsumeStopsAtLimit(t *testing.T) {
	limits := domain.QuotaLimits{Standard: 2, Special: 5}
	identities := &stubIdentities{identities: map[int64]*domain.Identity{1: {ID: 1}}}
	svc := NewService(identities, limits)
	now := time.Now()

	for i := 0; i < limits.Standard; i++ {
		state, err := svc.TryConsume(1, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !state.Allowed {
			t.Fatalf("send %d must be allowed", i+1)
		}
	}
	state, err := svc.TryConsume(1, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Allowed {
		t.Fatal("send above the limit must be rejected")
	}
	if state.RemainingToday() != 0 {
		t.Fatalf("expected zero remaining, got %d", state.RemainingToday())
	}
}

func TestConcurrentConsumeNeverExceedsLimit(t *testing.T) {
	limits := domain.QuotaLimits{Standard: 5, Special: 20}
	identities := &stubIdentities{identities: map[int64]*domain.Identity{1: {ID: 1}}}
	svc := NewService(identities, limits)
	now := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state, err := svc.TryConsume(1, now)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if state.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != limits.Standard {
		t.Fatalf("allowed %d sends, want exactly %d", allowed, limits.Standard)
	}
}

func TestStateDoesNotConsume(t *testing.T) {
	identities := &stubIdentities{identities: map[int64]*domain.Identity{1: {ID: 1}}}
	svc := NewService(identities, domain.DefaultQuotaLimits)
	now := time.Now()

	for i := 0; i < 10; i++ {
		state, err := svc.State(1, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if state.Used != 0 {
			t.Fatalf("State must not consume quota, used=%d", state.Used)
		}
	}
}

func TestUnlimitedStillCounts(t *testing.T) {
	identities := &stubIdentities{identities: map[int64]*domain.Identity{1: {ID: 1, IsAdmin: true}}}
	svc := NewService(identities, domain.DefaultQuotaLimits)
	now := time.Now()

	for i := 1; i <= 7; i++ {
		state, err := svc.TryConsume(1, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !state.Allowed {
			t.Fatal("unlimited sender must always be allowed")
		}
		if state.Used != i {
			t.Fatalf("counter must still advance, used=%d want %d", state.Used, i)
		}
	}
}
