package domain

import "errors"

var (
	// ErrNotFound — сущность не найдена (код получателя, сообщение, профиль).
	ErrNotFound = errors.New("не найдено")
	// ErrForbidden — недостаточно прав для операции.
	ErrForbidden = errors.New("недостаточно прав")
	// ErrBanned — участник заблокирован в боте.
	ErrBanned = errors.New("участник заблокирован")
	// ErrQuotaExceeded — дневной лимит отправки исчерпан.
	ErrQuotaExceeded = errors.New("лимит сообщений исчерпан")
	// ErrSelfAddress — попытка отправить сообщение самому себе.
	ErrSelfAddress = errors.New("нельзя отправлять себе")
	// ErrUnsupportedContent — тип содержимого не поддерживается.
	ErrUnsupportedContent = errors.New("неподдерживаемый тип содержимого")
	// ErrRecipientUnreachable — получатель закрыл доставку (заблокировал бота).
	ErrRecipientUnreachable = errors.New("получатель недоступен")
	// ErrIntegrity — системное нарушение целостности (например, исчерпаны
	// попытки сгенерировать уникальный код).
	ErrIntegrity = errors.New("нарушение целостности")
)
