package domain

import "time"

// Tier описывает статус участника.
type Tier string

const (
	TierStandard  Tier = "standard"
	TierSpecial   Tier = "special"
	TierBoss      Tier = "boss"
	TierAdmin     Tier = "admin"
	TierRootAdmin Tier = "root_admin"
)

// QuotaLimits задаёт дневные лимиты для обычного и особого статусов.
type QuotaLimits struct {
	Standard int
	Special  int
}

// DefaultQuotaLimits — лимиты по умолчанию.
var DefaultQuotaLimits = QuotaLimits{Standard: 5, Special: 20}

// Allowance — дневное разрешение на отправку. Limit имеет смысл только
// при Unlimited == false.
type Allowance struct {
	Unlimited bool
	Limit     int
}

// SubscriptionActive сообщает, действует ли подписка «Босс» на момент now.
func (i Identity) SubscriptionActive(now time.Time) bool {
	return i.SubExpiry != nil && i.SubExpiry.After(now)
}

// Tier возвращает статус участника на момент now.
func (i Identity) Tier(now time.Time) Tier {
	switch {
	case i.IsRootAdmin:
		return TierRootAdmin
	case i.IsAdmin:
		return TierAdmin
	case i.SubscriptionActive(now):
		return TierBoss
	case i.IsSpecial:
		return TierSpecial
	default:
		return TierStandard
	}
}

// AllowanceFor возвращает дневное разрешение для участника.
func (q QuotaLimits) AllowanceFor(i Identity, now time.Time) Allowance {
	if i.IsAdmin || i.IsRootAdmin || i.SubscriptionActive(now) {
		return Allowance{Unlimited: true}
	}
	if i.IsSpecial {
		return Allowance{Limit: q.Special}
	}
	return Allowance{Limit: q.Standard}
}

// CurrentCount возвращает число отправленных за сегодня сообщений.
// Счётчик имеет смысл только если последняя отправка была сегодня;
// устаревший день означает эффективный ноль. Состояние не меняется.
func (i Identity) CurrentCount(now time.Time) int {
	if i.LastSendDay == nil || !SameDay(*i.LastSendDay, now) {
		return 0
	}
	return i.SentToday
}

// CanSchedule сообщает, доступна ли участнику отложенная отправка.
func (i Identity) CanSchedule(now time.Time) bool {
	return i.IsAdmin || i.IsRootAdmin || i.SubscriptionActive(now)
}

// CanReveal сообщает, доступно ли участнику раскрытие отправителя.
func (i Identity) CanReveal(now time.Time) bool {
	return i.IsAdmin || i.IsRootAdmin || i.SubscriptionActive(now)
}

// SameDay сравнивает календарные дни в UTC.
func SameDay(a, b time.Time) bool {
	a = a.UTC()
	b = b.UTC()
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// QuotaState — результат попытки списать отправку из дневной квоты.
type QuotaState struct {
	Allowed   bool
	Allowance Allowance
	Used      int
}

// RemainingToday возвращает остаток на сегодня. -1 означает безлимит.
func (s QuotaState) RemainingToday() int {
	if s.Allowance.Unlimited {
		return -1
	}
	remaining := s.Allowance.Limit - s.Used
	if remaining < 0 {
		return 0
	}
	return remaining
}
