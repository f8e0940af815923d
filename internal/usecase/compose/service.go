package compose

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tg-anon-bot/internal/domain"
	"tg-anon-bot/internal/infra/metrics"
	"tg-anon-bot/internal/usecase/quota"
	"tg-anon-bot/internal/usecase/registry"
)

// Step — шаг сценария составления сообщения.
type Step string

const (
	StepChoosingTemplate   Step = "choosing_template"
	StepCapturingContent   Step = "capturing_content"
	StepResolvingRecipient Step = "resolving_recipient"
	StepCapturingTime      Step = "capturing_time"
)

// ScheduleLayout — формат времени отложенной отправки.
const ScheduleLayout = "02.01.2006 15:04"

var (
	// ErrNoSession — у участника нет активного сценария.
	ErrNoSession = errors.New("нет активного сценария")
	// ErrUnknownTemplate — неизвестный ключ шаблона.
	ErrUnknownTemplate = errors.New("неизвестный шаблон")
	// ErrBadTimeFormat — время не соответствует формату ДД.ММ.ГГГГ ЧЧ:ММ.
	ErrBadTimeFormat = errors.New("неверный формат времени")
	// ErrPastTime — указанное время уже прошло.
	ErrPastTime = errors.New("время уже прошло")
)

// Templates — заготовки начала сообщения по ключам кнопок.
var Templates = map[string]string{
	"tpl_confession": "Хочу признаться… ",
	"tpl_compliment": "Ты настолько… ",
	"tpl_question":   "Мне интересно… ",
	"tpl_hate":       "Меня бесит, что ты... ",
	"tpl_custom":     "",
}

// Session — состояние одного сценария составления. Один сценарий на
// отправителя; новый Begin замещает прежний.
type Session struct {
	Step      Step
	Prefix    string
	Content   domain.Content
	Recipient int64
	Bound     bool
	Deferred  bool
}

// Dispatcher доставляет готовое сообщение немедленного режима.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg domain.Message) error
}

// Outcome — результат шага, завершившего сценарий.
type Outcome struct {
	Next      Step
	Done      bool
	Message   domain.Message
	Quota     domain.QuotaState
	Delivered bool
	// DeliveryErr заполнен, если сообщение создано, но немедленная
	// доставка не удалась. Сообщение при этом сохранено.
	DeliveryErr error
}

// Service ведёт сценарии составления анонимных сообщений.
type Service struct {
	identities domain.IdentityRepo
	messages   domain.MessageRepo
	quota      *quota.Service
	registry   *registry.Service
	dispatcher Dispatcher
	log        zerolog.Logger
	loc        *time.Location
	now        func() time.Time

	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewService создаёт сервис составления. loc задаёт часовой пояс
// пользовательского времени отложенной отправки.
func NewService(identities domain.IdentityRepo, messages domain.MessageRepo, quotaSvc *quota.Service, registrySvc *registry.Service, dispatcher Dispatcher, loc *time.Location, log zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		identities: identities,
		messages:   messages,
		quota:      quotaSvc,
		registry:   registrySvc,
		dispatcher: dispatcher,
		log:        log,
		loc:        loc,
		now:        time.Now,
		sessions:   map[int64]*Session{},
	}
}

// Begin открывает сценарий. boundRecipient > 0 привязывает получателя из
// диплинка и исключает шаг ввода кода; deferred включает отложенный режим,
// доступный только привилегированным статусам.
func (s *Service) Begin(senderID int64, boundRecipient int64, deferred bool) (*Session, error) {
	identity, err := s.identities.Get(senderID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if identity.IsBanned {
		return nil, domain.ErrBanned
	}
	if deferred && !identity.CanSchedule(now) {
		return nil, domain.ErrForbidden
	}
	if boundRecipient == senderID && boundRecipient != 0 {
		return nil, domain.ErrSelfAddress
	}

	// Предварительная проверка: исчерпанная квота отменяет сценарий до
	// первого шага. Окончательное списание происходит на терминальном шаге.
	state, err := s.quota.State(senderID, now)
	if err != nil {
		return nil, err
	}
	if !state.Allowed {
		metrics.QuotaRejections.Inc()
		return nil, domain.ErrQuotaExceeded
	}

	session := &Session{
		Step:      StepChoosingTemplate,
		Recipient: boundRecipient,
		Bound:     boundRecipient != 0,
		Deferred:  deferred,
	}
	s.mu.Lock()
	s.sessions[senderID] = session
	s.mu.Unlock()
	return session, nil
}

// Active возвращает текущий шаг сценария участника.
func (s *Service) Active(senderID int64) (Step, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[senderID]
	if !ok {
		return "", false
	}
	return session.Step, true
}

// Cancel завершает сценарий без побочных эффектов.
func (s *Service) Cancel(senderID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[senderID]
	delete(s.sessions, senderID)
	return ok
}

func (s *Service) session(senderID int64, step Step) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[senderID]
	if !ok || session.Step != step {
		return nil, ErrNoSession
	}
	return session, nil
}

// ChooseTemplate фиксирует заготовку и переводит сценарий к вводу
// содержимого.
func (s *Service) ChooseTemplate(senderID int64, key string) error {
	session, err := s.session(senderID, StepChoosingTemplate)
	if err != nil {
		return err
	}
	prefix, ok := Templates[key]
	if !ok {
		return ErrUnknownTemplate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[senderID] != session {
		return ErrNoSession
	}
	session.Prefix = prefix
	session.Step = StepCapturingContent
	return nil
}

// applyPrefix дополняет содержимое заготовкой шаблона. Текст и подпись
// получают префикс; медиа без подписи получает заготовку как подпись.
func applyPrefix(prefix string, content domain.Content) domain.Content {
	if prefix == "" {
		return content
	}
	switch {
	case content.Kind == domain.ContentText:
		content.Text = prefix + content.Text
	case content.Caption != "":
		content.Caption = prefix + content.Caption
	case content.Kind != domain.ContentSticker:
		content.Caption = prefix
	}
	return content
}

// CaptureContent принимает содержимое и продвигает сценарий: к вводу кода
// получателя, к вводу времени или сразу к завершению для привязанного
// получателя в немедленном режиме.
func (s *Service) CaptureContent(ctx context.Context, senderID int64, content domain.Content) (Outcome, error) {
	session, err := s.session(senderID, StepCapturingContent)
	if err != nil {
		return Outcome{}, err
	}
	if !content.Kind.Supported() {
		return Outcome{}, domain.ErrUnsupportedContent
	}
	if content.Kind == domain.ContentText && content.Text == "" {
		return Outcome{}, domain.ErrUnsupportedContent
	}

	s.mu.Lock()
	if s.sessions[senderID] != session {
		s.mu.Unlock()
		return Outcome{}, ErrNoSession
	}
	session.Content = applyPrefix(session.Prefix, content)
	switch {
	case !session.Bound:
		session.Step = StepResolvingRecipient
	case session.Deferred:
		session.Step = StepCapturingTime
	}
	next := session.Step
	finalizeNow := session.Bound && !session.Deferred
	var snapshot Session
	if finalizeNow {
		// Терминальный шаг забирает сценарий под замком, поэтому
		// конкурентный апдейт того же отправителя его не повторит.
		snapshot = *session
		delete(s.sessions, senderID)
	}
	s.mu.Unlock()

	if finalizeNow {
		return s.finalize(ctx, senderID, snapshot, nil)
	}
	return Outcome{Next: next}, nil
}

// ResolveRecipient принимает код получателя в любом допустимом формате.
func (s *Service) ResolveRecipient(ctx context.Context, senderID int64, raw string) (Outcome, error) {
	session, err := s.session(senderID, StepResolvingRecipient)
	if err != nil {
		return Outcome{}, err
	}
	recipientID, err := s.registry.Resolve(raw)
	if err != nil {
		return Outcome{}, err
	}
	if recipientID == senderID {
		return Outcome{}, domain.ErrSelfAddress
	}

	s.mu.Lock()
	if s.sessions[senderID] != session {
		s.mu.Unlock()
		return Outcome{}, ErrNoSession
	}
	session.Recipient = recipientID
	if session.Deferred {
		session.Step = StepCapturingTime
		s.mu.Unlock()
		return Outcome{Next: StepCapturingTime}, nil
	}
	snapshot := *session
	delete(s.sessions, senderID)
	s.mu.Unlock()

	return s.finalize(ctx, senderID, snapshot, nil)
}

// CaptureScheduleTime принимает время отложенной отправки в формате
// ДД.ММ.ГГГГ ЧЧ:ММ в часовом поясе сервиса.
func (s *Service) CaptureScheduleTime(ctx context.Context, senderID int64, raw string) (Outcome, error) {
	session, err := s.session(senderID, StepCapturingTime)
	if err != nil {
		return Outcome{}, err
	}
	when, err := time.ParseInLocation(ScheduleLayout, raw, s.loc)
	if err != nil {
		return Outcome{}, ErrBadTimeFormat
	}
	if !when.After(s.now()) {
		return Outcome{}, ErrPastTime
	}
	scheduled := when.UTC()

	s.mu.Lock()
	if s.sessions[senderID] != session {
		s.mu.Unlock()
		return Outcome{}, ErrNoSession
	}
	snapshot := *session
	delete(s.sessions, senderID)
	s.mu.Unlock()

	return s.finalize(ctx, senderID, snapshot, &scheduled)
}

// finalize — терминальный шаг: атомарное списание квоты, сохранение
// сообщения и немедленная доставка, если отправка не отложена. Сценарий
// к этому моменту уже изъят из карты, sess — его снимок.
func (s *Service) finalize(ctx context.Context, senderID int64, sess Session, scheduledFor *time.Time) (Outcome, error) {
	now := s.now()
	state, err := s.quota.TryConsume(senderID, now)
	if err != nil {
		return Outcome{}, err
	}
	if !state.Allowed {
		metrics.QuotaRejections.Inc()
		return Outcome{Quota: state}, domain.ErrQuotaExceeded
	}

	msg := domain.Message{
		ID:           domain.NewMessageID(),
		FromID:       senderID,
		ToID:         sess.Recipient,
		Content:      sess.Content,
		CreatedAt:    now.UTC(),
		ScheduledFor: scheduledFor,
	}
	if err := s.messages.Create(msg); err != nil {
		return Outcome{}, err
	}

	mode := "immediate"
	if msg.Deferred() {
		mode = "deferred"
	}
	metrics.MessagesComposed.WithLabelValues(mode).Inc()
	s.log.Info().Str("message_id", msg.ID).Str("mode", mode).Int64("from", senderID).Msg("сообщение создано")

	outcome := Outcome{Done: true, Message: msg, Quota: state}
	if msg.Deferred() {
		return outcome, nil
	}
	if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
		outcome.DeliveryErr = err
		return outcome, nil
	}
	outcome.Delivered = true
	return outcome, nil
}
