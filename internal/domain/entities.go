package domain

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Identity описывает участника системы: отправителя или получателя.
type Identity struct {
	ID          int64
	Username    string
	FullName    string
	IsAdmin     bool
	IsRootAdmin bool
	IsSpecial   bool
	SubExpiry   *time.Time
	IsBanned    bool
	SentToday   int
	LastSendDay *time.Time
	CreatedAt   time.Time
}

// SenderDisplay возвращает отображаемое имя отправителя: @username,
// либо HTML-ссылку на профиль, если username отсутствует.
func (i Identity) SenderDisplay() string {
	if i.Username != "" {
		return "@" + i.Username
	}
	name := i.FullName
	if name == "" {
		name = "Аноним"
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, i.ID, name)
}

// TelegramProfile — данные профиля из входящего апдейта.
type TelegramProfile struct {
	ID       int64
	Username string
	FullName string
}

// ContentKind — тип содержимого анонимного сообщения.
type ContentKind string

const (
	ContentText      ContentKind = "text"
	ContentPhoto     ContentKind = "photo"
	ContentVideo     ContentKind = "video"
	ContentVoice     ContentKind = "voice"
	ContentAudio     ContentKind = "audio"
	ContentAnimation ContentKind = "animation"
	ContentSticker   ContentKind = "sticker"
)

// Supported сообщает, принимает ли система такой тип содержимого.
func (k ContentKind) Supported() bool {
	switch k {
	case ContentText, ContentPhoto, ContentVideo, ContentVoice, ContentAudio, ContentAnimation, ContentSticker:
		return true
	default:
		return false
	}
}

// Content — содержимое сообщения. Text заполнен только для текстового
// варианта, FileID — для медиа и стикеров.
type Content struct {
	Kind    ContentKind
	Text    string
	Caption string
	FileID  string
}

// Message — анонимное сообщение. DeliveredHandle равен 0 до доставки;
// Revealed переходит из false в true ровно один раз.
type Message struct {
	ID              string
	FromID          int64
	ToID            int64
	Content         Content
	CreatedAt       time.Time
	ScheduledFor    *time.Time
	ClaimedAt       *time.Time
	DeliveredHandle int64
	Revealed        bool
}

// Deferred сообщает, является ли сообщение отложенным.
func (m Message) Deferred() bool {
	return m.ScheduledFor != nil
}

// NewMessageID генерирует 128-битный идентификатор сообщения в hex.
func NewMessageID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// Channel — канал обязательной подписки перед отправкой.
type Channel struct {
	ID         int64
	Title      string
	InviteLink string
}
