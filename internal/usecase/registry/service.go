package registry

import (
	"strings"

	"tg-anon-bot/internal/domain"
)

// deepLinkMarker отделяет код получателя внутри ссылки t.me/...?start=CODE.
const deepLinkMarker = "start="

// Service управляет кодами получателей.
type Service struct {
	addresses domain.AddressRepo
}

// NewService создаёт сервис адресации.
func NewService(addresses domain.AddressRepo) *Service {
	return &Service{addresses: addresses}
}

// NormalizeCode приводит пользовательский ввод к каноническому коду:
// обрезает пробелы, извлекает хвост диплинка и поднимает регистр.
func NormalizeCode(raw string) string {
	code := strings.TrimSpace(raw)
	if idx := strings.LastIndex(code, deepLinkMarker); idx >= 0 {
		code = code[idx+len(deepLinkMarker):]
	}
	return strings.ToUpper(strings.TrimSpace(code))
}

// Resolve возвращает участника по коду в любом принимаемом формате.
func (s *Service) Resolve(raw string) (int64, error) {
	code := NormalizeCode(raw)
	if code == "" {
		return 0, domain.ErrNotFound
	}
	return s.addresses.Resolve(code)
}

// Ensure возвращает код участника, создавая его при необходимости.
func (s *Service) Ensure(identityID int64) (string, error) {
	return s.addresses.Ensure(identityID)
}

// AddressOf возвращает существующий код участника.
func (s *Service) AddressOf(identityID int64) (string, error) {
	return s.addresses.AddressOf(identityID)
}

// Link строит диплинк приглашения для кода.
func Link(botName, code string) string {
	return "https://t.me/" + botName + "?" + deepLinkMarker + code
}
