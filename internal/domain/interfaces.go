package domain

import (
	"context"
	"time"
)

// IdentityRepo управляет участниками и их квотами.
type IdentityRepo interface {
	// Upsert идемпотентно создаёт или обновляет профиль при первом контакте.
	Upsert(profile TelegramProfile) (Identity, error)
	Get(id int64) (Identity, error)
	SetAdmin(id int64, value bool) error
	SetSpecial(id int64, value bool) error
	SetBanned(id int64, value bool) error
	// GrantSubscription устанавливает срок подписки «Босс», перезаписывая прежний.
	GrantSubscription(id int64, until time.Time) error
	// TryConsumeQuota атомарно проверяет и списывает дневную квоту:
	// проверка и инкремент сериализуются по участнику.
	TryConsumeQuota(id int64, now time.Time, limits QuotaLimits) (QuotaState, error)
	Stats() (identities int, messages int, err error)
}

// AddressRepo управляет кодами получателей. Отношение участник-код 1:1 и
// неизменно после создания.
type AddressRepo interface {
	Resolve(code string) (int64, error)
	AddressOf(identityID int64) (string, error)
	// Ensure возвращает существующий код или генерирует новый под
	// ограничением уникальности.
	Ensure(identityID int64) (string, error)
}

// MessageRepo хранит сообщения. Записи никогда не удаляются.
type MessageRepo interface {
	Create(msg Message) error
	Get(id string) (Message, error)
	// SetDeliveredHandle фиксирует идентификатор доставленного артефакта.
	SetDeliveredHandle(id string, handle int64) error
	// ClaimDue атомарно захватывает созревшие отложенные сообщения,
	// убирая их из выборки последующих тиков.
	ClaimDue(now time.Time) ([]Message, error)
	// ReleaseClaim возвращает недоставленное сообщение в выборку планировщика.
	ReleaseClaim(id string) error
	// MarkRevealed выполняет одностороннее раскрытие; возвращает false,
	// если сообщение уже было раскрыто.
	MarkRevealed(id string) (bool, error)
}

// ChannelRepo хранит список каналов обязательной подписки.
type ChannelRepo interface {
	ListRequired() ([]Channel, error)
	AddRequired(ch Channel) error
	RemoveRequired(id int64) error
}

// Transport — внешний транспорт доставки. revealID непустой, если к
// артефакту нужно прикрепить управление раскрытием.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string, revealID string) (int64, error)
	SendSticker(ctx context.Context, chatID int64, fileID string, revealID string) (int64, error)
	SendMedia(ctx context.Context, chatID int64, kind ContentKind, fileID, caption string, revealID string) (int64, error)
	// EditText и EditCaption заменяют содержимое доставленного артефакта и
	// снимают управление раскрытием. Редактирование неизменяемого артефакта —
	// безвредный no-op.
	EditText(ctx context.Context, chatID, handle int64, text string) error
	EditCaption(ctx context.Context, chatID, handle int64, caption string) error
	ClearControls(ctx context.Context, chatID, handle int64) error
	Reply(ctx context.Context, chatID, handle int64, text string) error
}

// MembershipChecker проверяет членство участника в канале.
type MembershipChecker interface {
	IsMember(ctx context.Context, channelID, identityID int64) (bool, error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
