package telegram

import (
	"errors"
	"strings"
	"testing"

	"tg-anon-bot/internal/domain"
)

func TestSplitMessageRespectsLimit(t *testing.T) {
	var builder strings.Builder
	builder.WriteString(strings.Repeat("а", 3500))
	builder.WriteString("\n\n")
	builder.WriteString(strings.Repeat("б", 1500))
	builder.WriteString("\n")
	builder.WriteString(strings.Repeat("в", 400))

	parts := SplitMessage(builder.String())
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}

	for i, part := range parts {
		if length := len([]rune(part)); length > messageLimit {
			t.Fatalf("part %d exceeds limit: %d", i, length)
		}
	}

	if parts[0] != strings.Repeat("а", 3500) {
		t.Fatalf("unexpected content in first part")
	}

	if !strings.HasSuffix(parts[1], strings.Repeat("в", 400)) {
		t.Fatalf("second part should contain trailing block")
	}
}

func TestSplitMessageShortText(t *testing.T) {
	text := "Вам новое анонимное сообщение"
	parts := SplitMessage(text)
	if len(parts) != 1 {
		t.Fatalf("expected single part, got %d", len(parts))
	}
	if parts[0] != text {
		t.Fatalf("unexpected text: %q", parts[0])
	}
}

func TestSplitMessageEmpty(t *testing.T) {
	parts := SplitMessage("   \n  ")
	if len(parts) != 0 {
		t.Fatalf("expected no parts for empty input, got %d", len(parts))
	}
}

func TestWrapSendErrorUnreachable(t *testing.T) {
	err := wrapSendError(errTest("Forbidden: bot was blocked by the user"))
	if !errors.Is(err, domain.ErrRecipientUnreachable) {
		t.Fatalf("expected ErrRecipientUnreachable, got %v", err)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
