package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-anon-bot/internal/adapters/telegram"
	"tg-anon-bot/internal/domain"
	"tg-anon-bot/internal/infra/metrics"
	"tg-anon-bot/internal/usecase/compose"
	"tg-anon-bot/internal/usecase/gate"
	"tg-anon-bot/internal/usecase/quota"
	"tg-anon-bot/internal/usecase/registry"
	"tg-anon-bot/internal/usecase/reveal"
)

// Handler обслуживает вебхук бота.
type Handler struct {
	bot           *tgbotapi.BotAPI
	log           zerolog.Logger
	composeUC     *compose.Service
	revealUC      *reveal.Service
	registryUC    *registry.Service
	quotaUC       *quota.Service
	gateUC        *gate.Service
	identities    domain.IdentityRepo
	channels      domain.ChannelRepo
	botName       string
	bossGrantDays int
}

// NewHandler создаёт обработчик.
func NewHandler(bot *tgbotapi.BotAPI, log zerolog.Logger, composeUC *compose.Service, revealUC *reveal.Service, registryUC *registry.Service, quotaUC *quota.Service, gateUC *gate.Service, identities domain.IdentityRepo, channels domain.ChannelRepo, botName string, bossGrantDays int) *Handler {
	return &Handler{
		bot:           bot,
		log:           log,
		composeUC:     composeUC,
		revealUC:      revealUC,
		registryUC:    registryUC,
		quotaUC:       quotaUC,
		gateUC:        gateUC,
		identities:    identities,
		channels:      channels,
		botName:       botName,
		bossGrantDays: bossGrantDays,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		h.reply(msg.Chat.ID, "Не удалось определить пользователя", nil)
		return
	}
	text := strings.TrimSpace(msg.Text)

	if !strings.HasPrefix(text, "/") {
		if h.tryHandleFlowInput(ctx, msg) {
			return
		}
	}

	switch {
	case strings.HasPrefix(text, "/start"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/start"))
		h.handleStart(ctx, msg, payload)
	case strings.HasPrefix(text, "/send_time"):
		h.handleSend(ctx, msg.Chat.ID, msg.From.ID, true)
	case strings.HasPrefix(text, "/send"):
		h.handleSend(ctx, msg.Chat.ID, msg.From.ID, false)
	case strings.HasPrefix(text, "/cancel"):
		h.handleCancel(msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/profile"):
		h.handleProfile(msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/limit"):
		h.handleLimit(msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/help"):
		h.handleHelp(msg.Chat.ID)
	case strings.HasPrefix(text, "/reveal"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/reveal"))
		h.handleRevealByID(ctx, msg.Chat.ID, msg.From.ID, payload)
	case strings.HasPrefix(text, "/admin"):
		h.handleAdminStats(msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/unban"):
		h.handleFlagCommand(msg.Chat.ID, msg.From.ID, strings.TrimPrefix(text, "/unban"), h.identities.SetBanned, false, "Участник разблокирован")
	case strings.HasPrefix(text, "/ban"):
		h.handleFlagCommand(msg.Chat.ID, msg.From.ID, strings.TrimPrefix(text, "/ban"), h.identities.SetBanned, true, "Участник заблокирован")
	case strings.HasPrefix(text, "/grant_admin"):
		h.handleFlagCommand(msg.Chat.ID, msg.From.ID, strings.TrimPrefix(text, "/grant_admin"), h.identities.SetAdmin, true, "Права администратора выданы")
	case strings.HasPrefix(text, "/grant_special"):
		h.handleFlagCommand(msg.Chat.ID, msg.From.ID, strings.TrimPrefix(text, "/grant_special"), h.identities.SetSpecial, true, "Статус «Особый» выдан")
	case strings.HasPrefix(text, "/grant_boss"):
		h.handleGrantBoss(msg.Chat.ID, msg.From.ID, strings.TrimPrefix(text, "/grant_boss"))
	case strings.HasPrefix(text, "/add_channel"):
		h.handleAddChannel(msg.Chat.ID, msg.From.ID, strings.TrimPrefix(text, "/add_channel"))
	case strings.HasPrefix(text, "/remove_channel"):
		h.handleRemoveChannel(msg.Chat.ID, msg.From.ID, strings.TrimPrefix(text, "/remove_channel"))
	default:
		h.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help", nil)
	}
}

// tryHandleFlowInput направляет некомандный ввод в активный сценарий
// составления. Возвращает false, если сценария нет.
func (h *Handler) tryHandleFlowInput(ctx context.Context, msg *tgbotapi.Message) bool {
	step, ok := h.composeUC.Active(msg.From.ID)
	if !ok {
		return false
	}
	switch step {
	case compose.StepCapturingContent:
		content, ok := contentFromMessage(msg)
		if !ok {
			h.reply(msg.Chat.ID, "Такой тип сообщения не поддерживается. Отправьте текст, фото, видео, голосовое, аудио, гифку или стикер.", nil)
			return true
		}
		outcome, err := h.composeUC.CaptureContent(ctx, msg.From.ID, content)
		h.reportFlowStep(msg.Chat.ID, outcome, err)
	case compose.StepResolvingRecipient:
		outcome, err := h.composeUC.ResolveRecipient(ctx, msg.From.ID, msg.Text)
		h.reportFlowStep(msg.Chat.ID, outcome, err)
	case compose.StepCapturingTime:
		outcome, err := h.composeUC.CaptureScheduleTime(ctx, msg.From.ID, strings.TrimSpace(msg.Text))
		h.reportFlowStep(msg.Chat.ID, outcome, err)
	default:
		h.reply(msg.Chat.ID, "Выберите шаблон кнопкой ниже или нажмите «Отмена».", nil)
	}
	return true
}

// reportFlowStep переводит исход шага сценария в ответ пользователю.
func (h *Handler) reportFlowStep(chatID int64, outcome compose.Outcome, err error) {
	if err != nil {
		switch {
		case errors.Is(err, compose.ErrBadTimeFormat):
			h.reply(chatID, "Неверный формат. Отправьте время в виде ДД.ММ.ГГГГ ЧЧ:ММ, например 31.12.2026 20:30", nil)
		case errors.Is(err, compose.ErrPastTime):
			h.reply(chatID, "Это время уже прошло. Укажите время в будущем.", nil)
		case errors.Is(err, domain.ErrSelfAddress):
			h.reply(chatID, "Нельзя отправить сообщение самому себе. Укажите другой код.", nil)
		case errors.Is(err, domain.ErrNotFound):
			h.reply(chatID, "Код не найден. Проверьте код и попробуйте ещё раз.", nil)
		case errors.Is(err, domain.ErrUnsupportedContent):
			h.reply(chatID, "Такой тип сообщения не поддерживается.", nil)
		case errors.Is(err, domain.ErrQuotaExceeded):
			h.reply(chatID, "Дневной лимит сообщений исчерпан. Попробуйте завтра.", nil)
		case errors.Is(err, compose.ErrNoSession):
			h.reply(chatID, "Сценарий не найден. Начните заново: /send", nil)
		default:
			h.log.Error().Err(err).Msg("шаг сценария не удался")
			h.reply(chatID, "Что-то пошло не так. Попробуйте позже.", nil)
		}
		return
	}

	if !outcome.Done {
		switch outcome.Next {
		case compose.StepResolvingRecipient:
			h.reply(chatID, "Кому отправить? Пришлите код получателя или его ссылку.", nil)
		case compose.StepCapturingTime:
			h.reply(chatID, "Когда доставить? Отправьте время в формате ДД.ММ.ГГГГ ЧЧ:ММ", nil)
		}
		return
	}

	switch {
	case outcome.Message.Deferred():
		when := outcome.Message.ScheduledFor.Local().Format(compose.ScheduleLayout)
		h.reply(chatID, fmt.Sprintf("🕓 Готово! Сообщение будет доставлено %s.", when), nil)
	case outcome.Delivered:
		h.reply(chatID, "✅ Сообщение отправлено анонимно!", nil)
	case errors.Is(outcome.DeliveryErr, domain.ErrRecipientUnreachable):
		h.reply(chatID, "⚠️ Сообщение сохранено, но получатель недоступен: он заблокировал бота.", nil)
	default:
		h.reply(chatID, "⚠️ Сообщение сохранено, но доставить его пока не удалось.", nil)
	}
}

func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message, payload string) {
	fullName := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	identity, err := h.identities.Upsert(domain.TelegramProfile{
		ID:       msg.From.ID,
		Username: msg.From.UserName,
		FullName: fullName,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось сохранить профиль")
		h.reply(msg.Chat.ID, "Ошибка сохранения профиля. Попробуйте позже.", nil)
		return
	}
	if identity.IsBanned {
		h.reply(msg.Chat.ID, "Вы заблокированы в боте.", nil)
		return
	}

	code, err := h.registryUC.Ensure(identity.ID)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось выдать код получателя")
		h.reply(msg.Chat.ID, "Не удалось выдать вашу ссылку. Попробуйте позже.", nil)
		return
	}

	if strings.HasPrefix(payload, "reveal_") {
		h.handleRevealByID(ctx, msg.Chat.ID, msg.From.ID, strings.TrimPrefix(payload, "reveal_"))
		return
	}
	if payload != "" {
		h.beginBoundFlow(ctx, msg.Chat.ID, msg.From.ID, payload)
		return
	}

	link := registry.Link(h.botName, code)
	welcome := fmt.Sprintf(
		"👋 Привет! Это бот анонимных сообщений.\n\nВаша личная ссылка:\n%s\n\nОтправьте её друзьям — и получайте анонимные сообщения. Чтобы написать кому-то, используйте /send.",
		link,
	)
	h.reply(msg.Chat.ID, welcome, h.mainKeyboard())
}

// beginBoundFlow открывает сценарий с получателем из диплинка.
func (h *Handler) beginBoundFlow(ctx context.Context, chatID, senderID int64, payload string) {
	recipientID, err := h.registryUC.Resolve(payload)
	if err != nil {
		h.reply(chatID, "Ссылка не распознана: код не найден.", nil)
		return
	}
	h.beginFlow(ctx, chatID, senderID, recipientID, false)
}

func (h *Handler) handleSend(ctx context.Context, chatID, senderID int64, deferred bool) {
	h.beginFlow(ctx, chatID, senderID, 0, deferred)
}

func (h *Handler) beginFlow(ctx context.Context, chatID, senderID, boundRecipient int64, deferred bool) {
	satisfied, err := h.gateUC.Satisfied(ctx, senderID)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось проверить подписку")
		h.reply(chatID, "Не удалось проверить подписку. Попробуйте позже.", nil)
		return
	}
	if !satisfied {
		h.replySubscriptionGate(chatID)
		return
	}

	if _, err := h.composeUC.Begin(senderID, boundRecipient, deferred); err != nil {
		switch {
		case errors.Is(err, domain.ErrBanned):
			h.reply(chatID, "Вы заблокированы в боте.", nil)
		case errors.Is(err, domain.ErrForbidden):
			h.reply(chatID, "Отложенная отправка доступна Боссам и администраторам.", nil)
		case errors.Is(err, domain.ErrQuotaExceeded):
			h.reply(chatID, "Дневной лимит сообщений исчерпан. Загляните завтра или получите статус Босса.", nil)
		case errors.Is(err, domain.ErrSelfAddress):
			h.reply(chatID, "Нельзя отправить сообщение самому себе.", nil)
		case errors.Is(err, domain.ErrNotFound):
			h.reply(chatID, "Сначала нажмите /start.", nil)
		default:
			h.log.Error().Err(err).Msg("не удалось начать сценарий")
			h.reply(chatID, "Что-то пошло не так. Попробуйте позже.", nil)
		}
		return
	}
	h.reply(chatID, "О чём будет сообщение?", h.templateKeyboard())
}

func (h *Handler) replySubscriptionGate(chatID int64) {
	required, err := h.gateUC.Required()
	if err != nil {
		h.reply(chatID, "Не удалось получить список каналов. Попробуйте позже.", nil)
		return
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(required)+1)
	for _, ch := range required {
		title := ch.Title
		if title == "" {
			title = "Канал"
		}
		if ch.InviteLink != "" {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL("📢 "+title, ch.InviteLink),
			))
		}
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Я подписался", "check_subs"),
	))
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	h.reply(chatID, "Для отправки сообщений подпишитесь на каналы:", &markup)
}

func (h *Handler) handleCancel(chatID, senderID int64) {
	if h.composeUC.Cancel(senderID) {
		h.reply(chatID, "Отменено.", nil)
		return
	}
	h.reply(chatID, "Нечего отменять.", nil)
}

func (h *Handler) handleProfile(chatID, identityID int64) {
	identity, err := h.identities.Get(identityID)
	if err != nil {
		h.reply(chatID, "Сначала нажмите /start.", nil)
		return
	}
	code, err := h.registryUC.Ensure(identityID)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось выдать код получателя")
		h.reply(chatID, "Не удалось получить вашу ссылку. Попробуйте позже.", nil)
		return
	}
	now := time.Now()
	var b strings.Builder
	b.WriteString(fmt.Sprintf("👤 Ваш профиль\n\nСтатус: %s\n", tierTitle(identity.Tier(now))))
	if identity.SubscriptionActive(now) {
		b.WriteString(fmt.Sprintf("Подписка Босса до: %s\n", identity.SubExpiry.Local().Format("02.01.2006")))
	}
	b.WriteString(fmt.Sprintf("\nВаша ссылка:\n%s\nВаш код: %s", registry.Link(h.botName, code), code))
	h.reply(chatID, b.String(), nil)
}

func (h *Handler) handleLimit(chatID, identityID int64) {
	state, err := h.quotaUC.State(identityID, time.Now())
	if err != nil {
		h.reply(chatID, "Сначала нажмите /start.", nil)
		return
	}
	if remaining := state.RemainingToday(); remaining >= 0 {
		h.reply(chatID, fmt.Sprintf("Сегодня осталось сообщений: %d из %d.", remaining, state.Allowance.Limit), nil)
		return
	}
	h.reply(chatID, "У вас нет ограничений на отправку сообщений. 😎", nil)
}

func (h *Handler) handleHelp(chatID int64) {
	help := strings.Join([]string{
		"❓ Как это работает",
		"",
		"/send — отправить анонимное сообщение по коду получателя",
		"/send_time — отложенная отправка (Боссы и администраторы)",
		"/profile — ваша ссылка и статус",
		"/limit — остаток дневного лимита",
		"/cancel — отменить текущую отправку",
		"",
		"Получатель видит только текст сообщения. Раскрыть отправителя могут Боссы и администраторы кнопкой под сообщением.",
	}, "\n")
	h.reply(chatID, help, h.mainKeyboard())
}

func (h *Handler) handleRevealByID(ctx context.Context, chatID, requesterID int64, messageID string) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		h.reply(chatID, "Укажите идентификатор: /reveal <id>", nil)
		return
	}
	res, err := h.revealUC.RevealByID(ctx, messageID, requesterID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.reply(chatID, "Сообщение не найдено.", nil)
			return
		}
		h.log.Error().Err(err).Msg("раскрытие по идентификатору не удалось")
		h.reply(chatID, "Что-то пошло не так. Попробуйте позже.", nil)
		return
	}
	switch res.Status {
	case reveal.StatusForbidden:
		h.reply(chatID, "Команда доступна только администраторам.", nil)
	case reveal.StatusAlreadyRevealed:
		h.reply(chatID, "Сообщение уже раскрыто. Отправитель: "+res.SenderDisplay, nil)
	default:
		h.reply(chatID, "🕵️ Отправитель: "+res.SenderDisplay, nil)
	}
}

func (h *Handler) requireAdmin(chatID, identityID int64) bool {
	identity, err := h.identities.Get(identityID)
	if err != nil || (!identity.IsAdmin && !identity.IsRootAdmin) {
		h.reply(chatID, "Команда доступна только администраторам.", nil)
		return false
	}
	return true
}

func (h *Handler) handleAdminStats(chatID, identityID int64) {
	if !h.requireAdmin(chatID, identityID) {
		return
	}
	identities, messages, err := h.identities.Stats()
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось получить статистику")
		h.reply(chatID, "Не удалось получить статистику.", nil)
		return
	}
	h.reply(chatID, fmt.Sprintf("📊 Статистика\n\nУчастников: %d\nСообщений: %d", identities, messages), nil)
}

func (h *Handler) handleFlagCommand(chatID, identityID int64, payload string, set func(int64, bool) error, value bool, done string) {
	if !h.requireAdmin(chatID, identityID) {
		return
	}
	targetID, ok := parseTargetID(payload)
	if !ok {
		h.reply(chatID, "Укажите числовой идентификатор участника.", nil)
		return
	}
	if err := set(targetID, value); err != nil {
		h.log.Error().Err(err).Int64("target", targetID).Msg("не удалось обновить участника")
		h.reply(chatID, "Не удалось обновить участника.", nil)
		return
	}
	h.reply(chatID, done+".", nil)
}

func (h *Handler) handleGrantBoss(chatID, identityID int64, payload string) {
	if !h.requireAdmin(chatID, identityID) {
		return
	}
	targetID, ok := parseTargetID(payload)
	if !ok {
		h.reply(chatID, "Укажите числовой идентификатор участника.", nil)
		return
	}
	until := time.Now().AddDate(0, 0, h.bossGrantDays)
	if err := h.identities.GrantSubscription(targetID, until); err != nil {
		h.log.Error().Err(err).Int64("target", targetID).Msg("не удалось выдать подписку")
		h.reply(chatID, "Не удалось выдать подписку.", nil)
		return
	}
	h.reply(chatID, fmt.Sprintf("Статус Босса выдан до %s.", until.Format("02.01.2006")), nil)
}

func (h *Handler) handleAddChannel(chatID, identityID int64, payload string) {
	if !h.requireAdmin(chatID, identityID) {
		return
	}
	fields := strings.Fields(payload)
	if len(fields) < 2 {
		h.reply(chatID, "Формат: /add_channel <id> <ссылка> [название]", nil)
		return
	}
	channelID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		h.reply(chatID, "Идентификатор канала должен быть числом.", nil)
		return
	}
	title := ""
	if len(fields) > 2 {
		title = strings.Join(fields[2:], " ")
	}
	ch := domain.Channel{ID: channelID, Title: title, InviteLink: fields[1]}
	if err := h.channels.AddRequired(ch); err != nil {
		h.log.Error().Err(err).Msg("не удалось добавить канал")
		h.reply(chatID, "Не удалось добавить канал.", nil)
		return
	}
	h.reply(chatID, "Канал добавлен в обязательную подписку.", nil)
}

func (h *Handler) handleRemoveChannel(chatID, identityID int64, payload string) {
	if !h.requireAdmin(chatID, identityID) {
		return
	}
	channelID, ok := parseTargetID(payload)
	if !ok {
		h.reply(chatID, "Укажите числовой идентификатор канала.", nil)
		return
	}
	if err := h.channels.RemoveRequired(channelID); err != nil {
		h.log.Error().Err(err).Msg("не удалось удалить канал")
		h.reply(chatID, "Не удалось удалить канал.", nil)
		return
	}
	h.reply(chatID, "Канал удалён из обязательной подписки.", nil)
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	// Инлайн-сообщения приходят без Message; наши клавиатуры к ним не
	// прикрепляются, такой callback игнорируется.
	if cb.Message == nil {
		return
	}
	data := cb.Data
	defer h.answerCallback(cb.ID)
	switch {
	case strings.HasPrefix(data, "tpl_"):
		if err := h.composeUC.ChooseTemplate(cb.From.ID, data); err != nil {
			if errors.Is(err, compose.ErrNoSession) {
				h.reply(cb.Message.Chat.ID, "Сценарий не найден. Начните заново: /send", nil)
				return
			}
			h.reply(cb.Message.Chat.ID, "Неизвестный шаблон.", nil)
			return
		}
		h.reply(cb.Message.Chat.ID, "Отправьте сообщение: текст, фото, видео, голосовое, аудио, гифку или стикер.", nil)
	case data == "cancel":
		h.handleCancel(cb.Message.Chat.ID, cb.From.ID)
	case strings.HasPrefix(data, "reveal_"):
		h.handleRevealCallback(ctx, cb)
	case data == "check_subs":
		h.handleCheckSubs(ctx, cb.Message.Chat.ID, cb.From.ID)
	case data == "send_now":
		h.handleSend(ctx, cb.Message.Chat.ID, cb.From.ID, false)
	case data == "send_later":
		h.handleSend(ctx, cb.Message.Chat.ID, cb.From.ID, true)
	case data == "my_profile":
		h.handleProfile(cb.Message.Chat.ID, cb.From.ID)
	case data == "my_help":
		h.handleHelp(cb.Message.Chat.ID)
	}
}

// handleRevealCallback обрабатывает кнопку раскрытия под доставленным
// сообщением. Запросивший должен быть получателем артефакта.
func (h *Handler) handleRevealCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	messageID := strings.TrimPrefix(cb.Data, "reveal_")
	res, err := h.revealUC.Reveal(ctx, messageID, cb.From.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.reply(cb.Message.Chat.ID, "Сообщение не найдено.", nil)
			return
		}
		h.log.Error().Err(err).Str("message_id", messageID).Msg("раскрытие не удалось")
		h.reply(cb.Message.Chat.ID, "Что-то пошло не так. Попробуйте позже.", nil)
		return
	}
	switch res.Status {
	case reveal.StatusForbidden:
		h.reply(cb.Message.Chat.ID, "🔒 Раскрытие доступно Боссам и администраторам. Обратитесь к админу, чтобы получить доступ.", nil)
	case reveal.StatusAlreadyRevealed:
		h.reply(cb.Message.Chat.ID, "Отправитель уже раскрыт: "+res.SenderDisplay, nil)
	default:
		h.reply(cb.Message.Chat.ID, "🕵️ Отправитель раскрыт: "+res.SenderDisplay, nil)
	}
}

func (h *Handler) handleCheckSubs(ctx context.Context, chatID, identityID int64) {
	satisfied, err := h.gateUC.Satisfied(ctx, identityID)
	if err != nil {
		h.reply(chatID, "Не удалось проверить подписку. Попробуйте позже.", nil)
		return
	}
	if !satisfied {
		h.reply(chatID, "Подписка ещё не оформлена. Подпишитесь на все каналы и нажмите кнопку снова.", nil)
		return
	}
	h.reply(chatID, "✅ Подписка подтверждена! Теперь можно отправлять сообщения: /send", nil)
}

func (h *Handler) answerCallback(callbackID string) {
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(callbackID, ""))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", "bot_api", start, err)
	if err != nil {
		h.log.Warn().Err(err).Msg("не удалось подтвердить callback")
	}
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := telegram.SplitMessage(text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}

func (h *Handler) mainKeyboard() *tgbotapi.InlineKeyboardMarkup {
	buttons := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✉️ Отправить", "send_now"),
			tgbotapi.NewInlineKeyboardButtonData("🕓 Отложить", "send_later"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👤 Профиль", "my_profile"),
			tgbotapi.NewInlineKeyboardButtonData("❓ Помощь", "my_help"),
		),
	)
	return &buttons
}

func (h *Handler) templateKeyboard() *tgbotapi.InlineKeyboardMarkup {
	buttons := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💌 Признание", "tpl_confession")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✨ Комплимент", "tpl_compliment")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🤔 Вопрос", "tpl_question")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🤬 Хейт", "tpl_hate")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✏️ Свое сообщение", "tpl_custom")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Отмена", "cancel")),
	)
	return &buttons
}

// tierTitle — человекочитаемое название статуса.
func tierTitle(tier domain.Tier) string {
	switch tier {
	case domain.TierRootAdmin:
		return "Главный администратор"
	case domain.TierAdmin:
		return "Администратор"
	case domain.TierBoss:
		return "Босс 😎"
	case domain.TierSpecial:
		return "Особый"
	default:
		return "Обычный"
	}
}

// parseTargetID извлекает числовой идентификатор из аргумента команды.
func parseTargetID(payload string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// contentFromMessage переводит входящее сообщение во внутреннее
// содержимое. Для фото берётся максимальное разрешение.
func contentFromMessage(msg *tgbotapi.Message) (domain.Content, bool) {
	switch {
	case msg.Text != "":
		return domain.Content{Kind: domain.ContentText, Text: msg.Text}, true
	case len(msg.Photo) > 0:
		photo := msg.Photo[len(msg.Photo)-1]
		return domain.Content{Kind: domain.ContentPhoto, FileID: photo.FileID, Caption: msg.Caption}, true
	case msg.Animation != nil:
		return domain.Content{Kind: domain.ContentAnimation, FileID: msg.Animation.FileID, Caption: msg.Caption}, true
	case msg.Video != nil:
		return domain.Content{Kind: domain.ContentVideo, FileID: msg.Video.FileID, Caption: msg.Caption}, true
	case msg.Voice != nil:
		return domain.Content{Kind: domain.ContentVoice, FileID: msg.Voice.FileID, Caption: msg.Caption}, true
	case msg.Audio != nil:
		return domain.Content{Kind: domain.ContentAudio, FileID: msg.Audio.FileID, Caption: msg.Caption}, true
	case msg.Sticker != nil:
		return domain.Content{Kind: domain.ContentSticker, FileID: msg.Sticker.FileID}, true
	default:
		return domain.Content{}, false
	}
}
