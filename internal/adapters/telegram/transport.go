package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-anon-bot/internal/domain"
	"tg-anon-bot/internal/infra/metrics"
)

// Transport доставляет артефакты через Bot API.
type Transport struct {
	bot          *tgbotapi.BotAPI
	log          zerolog.Logger
	adminContact string
}

var _ domain.Transport = (*Transport)(nil)
var _ domain.MembershipChecker = (*Transport)(nil)

// NewTransport создаёт адаптер Bot API. adminContact — ссылка на
// администратора для кнопки жалобы под анонимным сообщением.
func NewTransport(bot *tgbotapi.BotAPI, log zerolog.Logger, adminContact string) *Transport {
	return &Transport{bot: bot, log: log, adminContact: adminContact}
}

// revealKeyboard строит клавиатуру раскрытия под доставленным сообщением.
func (t *Transport) revealKeyboard(revealID string) *tgbotapi.InlineKeyboardMarkup {
	if revealID == "" {
		return nil
	}
	rows := [][]tgbotapi.InlineKeyboardButton{
		{tgbotapi.NewInlineKeyboardButtonData("🔓 Раскрыть", "reveal_"+revealID)},
	}
	if t.adminContact != "" {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonURL("💬 Связаться с админом", t.adminContact),
		})
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func wrapSendError(err error) error {
	if err == nil {
		return nil
	}
	text := err.Error()
	if strings.Contains(text, "Forbidden") || strings.Contains(text, "chat not found") {
		return fmt.Errorf("%w: %s", domain.ErrRecipientUnreachable, text)
	}
	return err
}

// SendText отправляет текстовый артефакт. Длинный текст разбивается на
// части, клавиатура раскрытия прикрепляется к последней.
func (t *Transport) SendText(ctx context.Context, chatID int64, text string, revealID string) (int64, error) {
	parts := SplitMessage(text)
	if len(parts) == 0 {
		return 0, domain.ErrUnsupportedContent
	}
	var handle int64
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		if i == len(parts)-1 {
			if markup := t.revealKeyboard(revealID); markup != nil {
				msg.ReplyMarkup = markup
			}
		}
		start := time.Now()
		sent, err := t.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram", "send_text", "bot_api", start, err)
		if err != nil {
			return 0, wrapSendError(err)
		}
		handle = int64(sent.MessageID)
	}
	return handle, nil
}

// SendSticker отправляет стикер с клавиатурой раскрытия.
func (t *Transport) SendSticker(ctx context.Context, chatID int64, fileID string, revealID string) (int64, error) {
	msg := tgbotapi.NewSticker(chatID, tgbotapi.FileID(fileID))
	if markup := t.revealKeyboard(revealID); markup != nil {
		msg.ReplyMarkup = markup
	}
	start := time.Now()
	sent, err := t.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram", "send_sticker", "bot_api", start, err)
	if err != nil {
		return 0, wrapSendError(err)
	}
	return int64(sent.MessageID), nil
}

// SendMedia отправляет медиа-артефакт с подписью.
func (t *Transport) SendMedia(ctx context.Context, chatID int64, kind domain.ContentKind, fileID, caption string, revealID string) (int64, error) {
	var msg tgbotapi.Chattable
	markup := t.revealKeyboard(revealID)
	switch kind {
	case domain.ContentPhoto:
		m := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID))
		m.Caption = caption
		m.ParseMode = tgbotapi.ModeHTML
		if markup != nil {
			m.ReplyMarkup = markup
		}
		msg = m
	case domain.ContentVideo:
		m := tgbotapi.NewVideo(chatID, tgbotapi.FileID(fileID))
		m.Caption = caption
		m.ParseMode = tgbotapi.ModeHTML
		if markup != nil {
			m.ReplyMarkup = markup
		}
		msg = m
	case domain.ContentVoice:
		m := tgbotapi.NewVoice(chatID, tgbotapi.FileID(fileID))
		m.Caption = caption
		m.ParseMode = tgbotapi.ModeHTML
		if markup != nil {
			m.ReplyMarkup = markup
		}
		msg = m
	case domain.ContentAudio:
		m := tgbotapi.NewAudio(chatID, tgbotapi.FileID(fileID))
		m.Caption = caption
		m.ParseMode = tgbotapi.ModeHTML
		if markup != nil {
			m.ReplyMarkup = markup
		}
		msg = m
	case domain.ContentAnimation:
		m := tgbotapi.NewAnimation(chatID, tgbotapi.FileID(fileID))
		m.Caption = caption
		m.ParseMode = tgbotapi.ModeHTML
		if markup != nil {
			m.ReplyMarkup = markup
		}
		msg = m
	default:
		return 0, domain.ErrUnsupportedContent
	}
	start := time.Now()
	sent, err := t.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram", "send_media", "bot_api", start, err)
	if err != nil {
		return 0, wrapSendError(err)
	}
	return int64(sent.MessageID), nil
}

// ignoreNotModified гасит ошибку повторного редактирования без изменений.
func ignoreNotModified(err error) error {
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}

// EditText заменяет текст артефакта и убирает клавиатуру.
func (t *Transport) EditText(ctx context.Context, chatID, handle int64, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, int(handle), text)
	edit.ParseMode = tgbotapi.ModeHTML
	start := time.Now()
	_, err := t.bot.Send(edit)
	metrics.ObserveNetworkRequest("telegram", "edit_text", "bot_api", start, err)
	return ignoreNotModified(err)
}

// EditCaption заменяет подпись медиа-артефакта и убирает клавиатуру.
func (t *Transport) EditCaption(ctx context.Context, chatID, handle int64, caption string) error {
	edit := tgbotapi.NewEditMessageCaption(chatID, int(handle), caption)
	edit.ParseMode = tgbotapi.ModeHTML
	start := time.Now()
	_, err := t.bot.Send(edit)
	metrics.ObserveNetworkRequest("telegram", "edit_caption", "bot_api", start, err)
	return ignoreNotModified(err)
}

// ClearControls снимает клавиатуру с артефакта.
func (t *Transport) ClearControls(ctx context.Context, chatID, handle int64) error {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, int(handle), tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
	start := time.Now()
	_, err := t.bot.Send(edit)
	metrics.ObserveNetworkRequest("telegram", "clear_controls", "bot_api", start, err)
	return ignoreNotModified(err)
}

// Reply отправляет текст ответом на артефакт.
func (t *Transport) Reply(ctx context.Context, chatID, handle int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyToMessageID = int(handle)
	start := time.Now()
	_, err := t.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram", "reply", "bot_api", start, err)
	return wrapSendError(err)
}

// IsMember проверяет подписку участника на канал. Ошибка запроса
// не считается отказом, решение остаётся за вызывающим кодом.
func (t *Transport) IsMember(ctx context.Context, channelID, identityID int64) (bool, error) {
	cfg := tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: channelID,
			UserID: identityID,
		},
	}
	start := time.Now()
	member, err := t.bot.GetChatMember(cfg)
	metrics.ObserveNetworkRequest("telegram", "get_chat_member", "bot_api", start, err)
	if err != nil {
		return false, err
	}
	switch member.Status {
	case "creator", "administrator", "member":
		return true, nil
	}
	return false, nil
}

// Notify отправляет служебное сообщение без клавиатуры раскрытия.
func (t *Transport) Notify(ctx context.Context, chatID int64, text string) error {
	_, err := t.SendText(ctx, chatID, text, "")
	if errors.Is(err, domain.ErrUnsupportedContent) {
		return nil
	}
	return err
}
