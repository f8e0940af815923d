package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"tg-anon-bot/internal/domain"
	"tg-anon-bot/internal/infra/metrics"
)

// Banner предваряет каждое доставленное анонимное сообщение.
const Banner = "📨 <b>Вам новое анонимное сообщение!</b>"

// Service доставляет сообщения получателям.
type Service struct {
	messages  domain.MessageRepo
	transport domain.Transport
	log       zerolog.Logger
}

// NewService создаёт сервис доставки.
func NewService(messages domain.MessageRepo, transport domain.Transport, log zerolog.Logger) *Service {
	return &Service{messages: messages, transport: transport, log: log}
}

// ComposeText собирает текст доставляемого артефакта из баннера и тела.
func ComposeText(body string) string {
	if body == "" {
		return Banner
	}
	return Banner + "\n\n" + body
}

// Dispatch доставляет сообщение получателю и фиксирует идентификатор
// артефакта до того, как доставка считается успешной.
func (s *Service) Dispatch(ctx context.Context, msg domain.Message) error {
	handle, err := s.send(ctx, msg)
	if err != nil {
		metrics.DeliveryFailures.WithLabelValues(failureReason(err)).Inc()
		return err
	}
	if err := s.messages.SetDeliveredHandle(msg.ID, handle); err != nil {
		return err
	}
	metrics.MessagesDelivered.Inc()
	s.log.Info().Str("message_id", msg.ID).Int64("to", msg.ToID).Msg("сообщение доставлено")
	return nil
}

func (s *Service) send(ctx context.Context, msg domain.Message) (int64, error) {
	content := msg.Content
	// Уже раскрытое сообщение доставляется без управления раскрытием.
	revealID := msg.ID
	if msg.Revealed {
		revealID = ""
	}
	switch content.Kind {
	case domain.ContentText:
		return s.transport.SendText(ctx, msg.ToID, ComposeText(content.Text), revealID)
	case domain.ContentSticker:
		if content.FileID == "" {
			return 0, domain.ErrUnsupportedContent
		}
		// Баннер уходит отдельным артефактом, управление раскрытием
		// прикрепляется к самому стикеру.
		if _, err := s.transport.SendText(ctx, msg.ToID, Banner, ""); err != nil {
			return 0, err
		}
		return s.transport.SendSticker(ctx, msg.ToID, content.FileID, revealID)
	case domain.ContentPhoto, domain.ContentVideo, domain.ContentVoice, domain.ContentAudio, domain.ContentAnimation:
		if content.FileID == "" {
			return 0, domain.ErrUnsupportedContent
		}
		return s.transport.SendMedia(ctx, msg.ToID, content.Kind, content.FileID, ComposeText(content.Caption), revealID)
	default:
		return 0, domain.ErrUnsupportedContent
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrRecipientUnreachable):
		return "unreachable"
	case errors.Is(err, domain.ErrUnsupportedContent):
		return "unsupported"
	default:
		return "transport"
	}
}

// permanent сообщает, что повтор доставки бессмыслен и захват снимать
// не нужно.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrRecipientUnreachable) || errors.Is(err, domain.ErrUnsupportedContent)
}

// Tick захватывает созревшие отложенные сообщения и доставляет их.
// Захват гарантирует, что пересекающиеся тики не доставят одно
// сообщение дважды; при временной ошибке захват снимается.
func (s *Service) Tick(ctx context.Context, now time.Time) (int, error) {
	metrics.SchedulerTicks.Inc()
	due, err := s.messages.ClaimDue(now)
	if err != nil {
		return 0, err
	}
	dispatched := 0
	for _, msg := range due {
		if err := s.Dispatch(ctx, msg); err != nil {
			s.log.Error().Err(err).Str("message_id", msg.ID).Msg("отложенная доставка не удалась")
			if !permanent(err) {
				if relErr := s.messages.ReleaseClaim(msg.ID); relErr != nil {
					s.log.Error().Err(relErr).Str("message_id", msg.ID).Msg("не удалось снять захват")
				}
			}
			continue
		}
		dispatched++
	}
	if dispatched > 0 {
		metrics.SchedulerDispatched.Add(float64(dispatched))
	}
	return dispatched, nil
}
