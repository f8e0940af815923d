package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tg-anon-bot/internal/domain"
)

// Service проверяет обязательную подписку на каналы перед отправкой.
type Service struct {
	channels domain.ChannelRepo
	checker  domain.MembershipChecker
	cache    domain.Cache
	cacheTTL time.Duration
	log      zerolog.Logger
}

// NewService создаёт сервис проверки подписки. cache может быть nil —
// тогда каждая проверка идёт в транспорт.
func NewService(channels domain.ChannelRepo, checker domain.MembershipChecker, cache domain.Cache, cacheTTL time.Duration, log zerolog.Logger) *Service {
	return &Service{channels: channels, checker: checker, cache: cache, cacheTTL: cacheTTL, log: log}
}

// Required возвращает список каналов обязательной подписки.
func (s *Service) Required() ([]domain.Channel, error) {
	return s.channels.ListRequired()
}

// Satisfied сообщает, подписан ли участник на все обязательные каналы.
// Положительный вердикт кэшируется; ошибка проверки отдельного канала
// трактуется в пользу участника.
func (s *Service) Satisfied(ctx context.Context, identityID int64) (bool, error) {
	required, err := s.channels.ListRequired()
	if err != nil {
		return false, err
	}
	if len(required) == 0 {
		return true, nil
	}

	key := fmt.Sprintf("gate:%d", identityID)
	if s.cache != nil {
		if value, err := s.cache.Get(key); err == nil && string(value) == "1" {
			return true, nil
		}
	}

	for _, ch := range required {
		member, err := s.checker.IsMember(ctx, ch.ID, identityID)
		if err != nil {
			s.log.Warn().Err(err).Int64("channel_id", ch.ID).Msg("не удалось проверить подписку")
			continue
		}
		if !member {
			return false, nil
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(key, []byte("1"), s.cacheTTL); err != nil {
			s.log.Warn().Err(err).Msg("не удалось закэшировать вердикт подписки")
		}
	}
	return true, nil
}
