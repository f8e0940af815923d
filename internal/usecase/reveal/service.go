package reveal

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"tg-anon-bot/internal/domain"
	"tg-anon-bot/internal/infra/metrics"
	"tg-anon-bot/internal/usecase/delivery"
)

// Status — исход запроса на раскрытие отправителя.
type Status string

const (
	StatusRevealed        Status = "revealed"
	StatusAlreadyRevealed Status = "already_revealed"
	StatusForbidden       Status = "forbidden"
)

// Result описывает исход раскрытия.
type Result struct {
	Status        Status
	SenderDisplay string
}

// Service выполняет одностороннее раскрытие отправителя.
type Service struct {
	messages   domain.MessageRepo
	identities domain.IdentityRepo
	transport  domain.Transport
	log        zerolog.Logger
	now        func() time.Time
}

// NewService создаёт сервис раскрытия.
func NewService(messages domain.MessageRepo, identities domain.IdentityRepo, transport domain.Transport, log zerolog.Logger) *Service {
	return &Service{messages: messages, identities: identities, transport: transport, log: log, now: time.Now}
}

// senderDisplay возвращает подпись отправителя для раскрытого сообщения.
func (s *Service) senderDisplay(fromID int64) string {
	sender, err := s.identities.Get(fromID)
	if err != nil {
		s.log.Warn().Err(err).Int64("from", fromID).Msg("отправитель не найден при раскрытии")
		return "Аноним"
	}
	return sender.SenderDisplay()
}

// Reveal обрабатывает запрос раскрытия от получателя. Привилегия
// проверяется до перехода; повторный запрос идемпотентен и возвращает
// ту же подпись отправителя без побочных эффектов.
func (s *Service) Reveal(ctx context.Context, messageID string, requesterID int64) (Result, error) {
	msg, err := s.messages.Get(messageID)
	if err != nil {
		return Result{}, err
	}

	requester, err := s.identities.Get(requesterID)
	if err != nil {
		return Result{}, err
	}
	if !requester.CanReveal(s.now()) {
		metrics.Reveals.WithLabelValues(string(StatusForbidden)).Inc()
		return Result{Status: StatusForbidden}, nil
	}

	if msg.Revealed {
		metrics.Reveals.WithLabelValues(string(StatusAlreadyRevealed)).Inc()
		return Result{Status: StatusAlreadyRevealed, SenderDisplay: s.senderDisplay(msg.FromID)}, nil
	}

	applied, err := s.messages.MarkRevealed(messageID)
	if err != nil {
		return Result{}, err
	}
	display := s.senderDisplay(msg.FromID)
	if !applied {
		// Конкурентный запрос успел раскрыть первым.
		metrics.Reveals.WithLabelValues(string(StatusAlreadyRevealed)).Inc()
		return Result{Status: StatusAlreadyRevealed, SenderDisplay: display}, nil
	}

	s.updateArtifact(ctx, msg, display)
	metrics.Reveals.WithLabelValues(string(StatusRevealed)).Inc()
	s.log.Info().Str("message_id", messageID).Int64("requester", requesterID).Msg("отправитель раскрыт")
	return Result{Status: StatusRevealed, SenderDisplay: display}, nil
}

// RevealByID раскрывает сообщение по идентификатору для администратора.
// Работает и для сообщений без доставленного артефакта.
func (s *Service) RevealByID(ctx context.Context, messageID string, requesterID int64) (Result, error) {
	requester, err := s.identities.Get(requesterID)
	if err != nil {
		return Result{}, err
	}
	if !requester.IsAdmin && !requester.IsRootAdmin {
		metrics.Reveals.WithLabelValues(string(StatusForbidden)).Inc()
		return Result{Status: StatusForbidden}, nil
	}

	msg, err := s.messages.Get(messageID)
	if err != nil {
		return Result{}, err
	}
	display := s.senderDisplay(msg.FromID)
	if msg.Revealed {
		metrics.Reveals.WithLabelValues(string(StatusAlreadyRevealed)).Inc()
		return Result{Status: StatusAlreadyRevealed, SenderDisplay: display}, nil
	}
	applied, err := s.messages.MarkRevealed(messageID)
	if err != nil {
		return Result{}, err
	}
	if !applied {
		metrics.Reveals.WithLabelValues(string(StatusAlreadyRevealed)).Inc()
		return Result{Status: StatusAlreadyRevealed, SenderDisplay: display}, nil
	}
	if msg.DeliveredHandle != 0 {
		s.updateArtifact(ctx, msg, display)
	}
	metrics.Reveals.WithLabelValues(string(StatusRevealed)).Inc()
	return Result{Status: StatusRevealed, SenderDisplay: display}, nil
}

// updateArtifact дополняет доставленный артефакт подписью отправителя.
// Ошибки редактирования безвредны: раскрытие уже зафиксировано.
func (s *Service) updateArtifact(ctx context.Context, msg domain.Message, display string) {
	if msg.DeliveredHandle == 0 {
		return
	}
	note := "🕵️ Отправитель раскрыт: " + display
	var err error
	switch msg.Content.Kind {
	case domain.ContentText:
		text := delivery.ComposeText(msg.Content.Text)
		err = s.transport.EditText(ctx, msg.ToID, msg.DeliveredHandle, text+"\n\n"+note)
	case domain.ContentSticker:
		// Стикер нельзя редактировать: подпись уходит ответом,
		// управление снимается отдельно.
		if err = s.transport.Reply(ctx, msg.ToID, msg.DeliveredHandle, note); err == nil {
			err = s.transport.ClearControls(ctx, msg.ToID, msg.DeliveredHandle)
		}
	default:
		caption := delivery.ComposeText(msg.Content.Caption)
		err = s.transport.EditCaption(ctx, msg.ToID, msg.DeliveredHandle, caption+"\n\n"+note)
	}
	if err != nil && !errors.Is(err, domain.ErrRecipientUnreachable) {
		s.log.Warn().Err(err).Str("message_id", msg.ID).Msg("не удалось обновить артефакт после раскрытия")
	}
}
