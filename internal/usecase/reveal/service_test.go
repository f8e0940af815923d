package reveal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-anon-bot/internal/domain"
)

type stubMessages struct {
	mu       sync.Mutex
	messages map[string]*domain.Message
}

func newStubMessages(msgs ...domain.Message) *stubMessages {
	s := &stubMessages{messages: map[string]*domain.Message{}}
	for i := range msgs {
		msg := msgs[i]
		s.messages[msg.ID] = &msg
	}
	return s
}

func (s *stubMessages) Create(msg domain.Message) error { return nil }

func (s *stubMessages) Get(id string) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return domain.Message{}, domain.ErrNotFound
	}
	return *msg, nil
}

func (s *stubMessages) SetDeliveredHandle(id string, handle int64) error { return nil }
func (s *stubMessages) ClaimDue(now time.Time) ([]domain.Message, error) {
	return nil, nil
}
func (s *stubMessages) ReleaseClaim(id string) error { return nil }

func (s *stubMessages) MarkRevealed(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok || msg.Revealed {
		return false, nil
	}
	msg.Revealed = true
	return true, nil
}

type stubIdentities struct {
	identities map[int64]domain.Identity
}

func (s *stubIdentities) Upsert(profile domain.TelegramProfile) (domain.Identity, error) {
	return domain.Identity{}, nil
}
func (s *stubIdentities) Get(id int64) (domain.Identity, error) {
	identity, ok := s.identities[id]
	if !ok {
		return domain.Identity{}, domain.ErrNotFound
	}
	return identity, nil
}
func (s *stubIdentities) SetAdmin(id int64, value bool) error               { return nil }
func (s *stubIdentities) SetSpecial(id int64, value bool) error             { return nil }
func (s *stubIdentities) SetBanned(id int64, value bool) error              { return nil }
func (s *stubIdentities) GrantSubscription(id int64, until time.Time) error { return nil }
func (s *stubIdentities) Stats() (int, int, error)                          { return 0, 0, nil }
func (s *stubIdentities) TryConsumeQuota(id int64, now time.Time, limits domain.QuotaLimits) (domain.QuotaState, error) {
	return domain.QuotaState{}, nil
}

type stubTransport struct {
	edits   int
	replies int
	clears  int
}

func (t *stubTransport) SendText(ctx context.Context, chatID int64, text string, revealID string) (int64, error) {
	return 1, nil
}
func (t *stubTransport) SendSticker(ctx context.Context, chatID int64, fileID string, revealID string) (int64, error) {
	return 1, nil
}
func (t *stubTransport) SendMedia(ctx context.Context, chatID int64, kind domain.ContentKind, fileID, caption string, revealID string) (int64, error) {
	return 1, nil
}
func (t *stubTransport) EditText(ctx context.Context, chatID, handle int64, text string) error {
	t.edits++
	return nil
}
func (t *stubTransport) EditCaption(ctx context.Context, chatID, handle int64, caption string) error {
	t.edits++
	return nil
}
func (t *stubTransport) ClearControls(ctx context.Context, chatID, handle int64) error {
	t.clears++
	return nil
}
func (t *stubTransport) Reply(ctx context.Context, chatID, handle int64, text string) error {
	t.replies++
	return nil
}

func fixtures() (*stubMessages, *stubIdentities, *stubTransport, *Service) {
	sub := time.Now().Add(24 * time.Hour)
	identities := &stubIdentities{identities: map[int64]domain.Identity{
		1: {ID: 1, Username: "sender"},
		2: {ID: 2, SubExpiry: &sub},
		3: {ID: 3},
		4: {ID: 4, IsAdmin: true},
	}}
	messages := newStubMessages(domain.Message{
		ID:              "m1",
		FromID:          1,
		ToID:            2,
		Content:         domain.Content{Kind: domain.ContentText, Text: "тело"},
		DeliveredHandle: 10,
	})
	transport := &stubTransport{}
	svc := NewService(messages, identities, transport, zerolog.Nop())
	return messages, identities, transport, svc
}

func TestRevealForbiddenForStandard(t *testing.T) {
	_, _, _, svc := fixtures()
	res, err := svc.Reveal(context.Background(), "m1", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusForbidden {
		t.Fatalf("expected forbidden, got %s", res.Status)
	}
	if res.SenderDisplay != "" {
		t.Fatal("forbidden result must not leak the sender")
	}
}

func TestRevealHappyPath(t *testing.T) {
	messages, _, transport, svc := fixtures()
	res, err := svc.Reveal(context.Background(), "m1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusRevealed {
		t.Fatalf("expected revealed, got %s", res.Status)
	}
	if res.SenderDisplay != "@sender" {
		t.Fatalf("unexpected display: %q", res.SenderDisplay)
	}
	if transport.edits != 1 {
		t.Fatalf("expected single artifact edit, got %d", transport.edits)
	}
	stored, _ := messages.Get("m1")
	if !stored.Revealed {
		t.Fatal("message must be marked revealed")
	}
}

func TestRevealIdempotent(t *testing.T) {
	_, _, transport, svc := fixtures()
	if _, err := svc.Reveal(context.Background(), "m1", 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := svc.Reveal(context.Background(), "m1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusAlreadyRevealed {
		t.Fatalf("expected already revealed, got %s", res.Status)
	}
	if res.SenderDisplay != "@sender" {
		t.Fatalf("repeat must return the same display, got %q", res.SenderDisplay)
	}
	if transport.edits != 1 {
		t.Fatalf("repeat must not edit again, got %d edits", transport.edits)
	}
}

func TestRevealStickerRepliesAndClears(t *testing.T) {
	messages := newStubMessages(domain.Message{
		ID:              "st",
		FromID:          1,
		ToID:            2,
		Content:         domain.Content{Kind: domain.ContentSticker, FileID: "f"},
		DeliveredHandle: 11,
	})
	sub := time.Now().Add(time.Hour)
	identities := &stubIdentities{identities: map[int64]domain.Identity{
		1: {ID: 1, Username: "sender"},
		2: {ID: 2, SubExpiry: &sub},
	}}
	transport := &stubTransport{}
	svc := NewService(messages, identities, transport, zerolog.Nop())

	res, err := svc.Reveal(context.Background(), "st", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusRevealed {
		t.Fatalf("expected revealed, got %s", res.Status)
	}
	if transport.replies != 1 || transport.clears != 1 {
		t.Fatalf("sticker reveal must reply and clear controls, got replies=%d clears=%d", transport.replies, transport.clears)
	}
}

func TestRevealByIDRequiresAdmin(t *testing.T) {
	_, _, _, svc := fixtures()
	// Босс с подпиской не имеет административного доступа по идентификатору.
	res, err := svc.RevealByID(context.Background(), "m1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusForbidden {
		t.Fatalf("expected forbidden for non-admin, got %s", res.Status)
	}

	res, err = svc.RevealByID(context.Background(), "m1", 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusRevealed {
		t.Fatalf("expected revealed for admin, got %s", res.Status)
	}
}

func TestRevealByIDWorksWithoutArtifact(t *testing.T) {
	messages := newStubMessages(domain.Message{
		ID:      "pending",
		FromID:  1,
		ToID:    2,
		Content: domain.Content{Kind: domain.ContentText, Text: "тело"},
	})
	identities := &stubIdentities{identities: map[int64]domain.Identity{
		1: {ID: 1, Username: "sender"},
		4: {ID: 4, IsAdmin: true},
	}}
	transport := &stubTransport{}
	svc := NewService(messages, identities, transport, zerolog.Nop())

	res, err := svc.RevealByID(context.Background(), "pending", 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusRevealed {
		t.Fatalf("expected revealed, got %s", res.Status)
	}
	if transport.edits != 0 {
		t.Fatal("undelivered message must not be edited")
	}
}
