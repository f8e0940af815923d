package quota

import (
	"time"

	"tg-anon-bot/internal/domain"
)

// Service отвечает на вопросы о дневной квоте и списывает отправки.
type Service struct {
	identities domain.IdentityRepo
	limits     domain.QuotaLimits
}

// NewService создаёт сервис квот.
func NewService(identities domain.IdentityRepo, limits domain.QuotaLimits) *Service {
	return &Service{identities: identities, limits: limits}
}

// Limits возвращает настроенные лимиты.
func (s *Service) Limits() domain.QuotaLimits {
	return s.limits
}

// State возвращает текущее состояние квоты без списания.
func (s *Service) State(id int64, now time.Time) (domain.QuotaState, error) {
	identity, err := s.identities.Get(id)
	if err != nil {
		return domain.QuotaState{}, err
	}
	allowance := s.limits.AllowanceFor(identity, now)
	return domain.QuotaState{
		Allowed:   allowance.Unlimited || identity.CurrentCount(now) < allowance.Limit,
		Allowance: allowance,
		Used:      identity.CurrentCount(now),
	}, nil
}

// TryConsume атомарно списывает одну отправку.
func (s *Service) TryConsume(id int64, now time.Time) (domain.QuotaState, error) {
	return s.identities.TryConsumeQuota(id, now, s.limits)
}
