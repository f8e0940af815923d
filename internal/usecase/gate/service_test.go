package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-anon-bot/internal/domain"
)

type stubChannels struct {
	required []domain.Channel
}

func (s *stubChannels) ListRequired() ([]domain.Channel, error) { return s.required, nil }
func (s *stubChannels) AddRequired(ch domain.Channel) error     { return nil }
func (s *stubChannels) RemoveRequired(id int64) error           { return nil }

type stubChecker struct {
	members map[int64]bool
	err     error
	calls   int
}

func (s *stubChecker) IsMember(ctx context.Context, channelID, identityID int64) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return s.members[channelID], nil
}

type memCache struct {
	values map[string][]byte
}

func (c *memCache) Once(key string, ttl time.Duration, fn func() error) error { return fn() }
func (c *memCache) Set(key string, value []byte, ttl time.Duration) error {
	c.values[key] = value
	return nil
}
func (c *memCache) Get(key string) ([]byte, error) {
	value, ok := c.values[key]
	if !ok {
		return nil, errors.New("miss")
	}
	return value, nil
}

func TestSatisfiedNoChannels(t *testing.T) {
	svc := NewService(&stubChannels{}, &stubChecker{}, nil, time.Minute, zerolog.Nop())
	ok, err := svc.Satisfied(context.Background(), 1)
	if err != nil || !ok {
		t.Fatalf("expected satisfied without channels, got ok=%v err=%v", ok, err)
	}
}

func TestSatisfiedNotMember(t *testing.T) {
	channels := &stubChannels{required: []domain.Channel{{ID: -100, Title: "Канал"}}}
	svc := NewService(channels, &stubChecker{members: map[int64]bool{}}, nil, time.Minute, zerolog.Nop())
	ok, err := svc.Satisfied(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected gate to reject non-member")
	}
}

func TestSatisfiedCachesPositiveVerdict(t *testing.T) {
	channels := &stubChannels{required: []domain.Channel{{ID: -100}}}
	checker := &stubChecker{members: map[int64]bool{-100: true}}
	cache := &memCache{values: map[string][]byte{}}
	svc := NewService(channels, checker, cache, time.Minute, zerolog.Nop())

	for i := 0; i < 3; i++ {
		ok, err := svc.Satisfied(context.Background(), 7)
		if err != nil || !ok {
			t.Fatalf("expected satisfied, got ok=%v err=%v", ok, err)
		}
	}
	if checker.calls != 1 {
		t.Fatalf("expected single transport check, got %d", checker.calls)
	}
}

func TestSatisfiedCheckErrorFavorsUser(t *testing.T) {
	channels := &stubChannels{required: []domain.Channel{{ID: -100}}}
	checker := &stubChecker{err: errors.New("api down")}
	svc := NewService(channels, checker, nil, time.Minute, zerolog.Nop())

	ok, err := svc.Satisfied(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("check failure should not block the user")
	}
}
