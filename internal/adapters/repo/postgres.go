package repo

import (
	"context"
	crand "crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-anon-bot/internal/domain"
	"tg-anon-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool       *pgxpool.Pool
	rootHandle string
}

var _ domain.IdentityRepo = (*Postgres)(nil)
var _ domain.AddressRepo = (*Postgres)(nil)
var _ domain.MessageRepo = PostgresMessages{}
var _ domain.ChannelRepo = (*Postgres)(nil)

// PostgresMessages — представление Postgres как domain.MessageRepo.
// Отдельный тип нужен, потому что IdentityRepo и MessageRepo объявляют
// метод Get с разными сигнатурами, а один тип не может нести оба.
type PostgresMessages struct{ *Postgres }

// Messages возвращает репозиторий сообщений.
func (p *Postgres) Messages() PostgresMessages { return PostgresMessages{p} }

const (
	addressAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	addressLength   = 6
	addressRetryMax = 20
)

// NewPostgres создаёт адаптер БД. rootHandle — username корневого
// администратора, назначаемого при первом контакте.
func NewPostgres(pool *pgxpool.Pool, rootHandle string) *Postgres {
	return &Postgres{pool: pool, rootHandle: strings.TrimPrefix(strings.ToLower(strings.TrimSpace(rootHandle)), "@")}
}

// EnsureSchema создаёт таблицы, если их ещё нет.
func (p *Postgres) EnsureSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS identities (
    id BIGINT PRIMARY KEY,
    username TEXT,
    full_name TEXT,
    is_admin BOOLEAN NOT NULL DEFAULT FALSE,
    is_root_admin BOOLEAN NOT NULL DEFAULT FALSE,
    is_special BOOLEAN NOT NULL DEFAULT FALSE,
    sub_expiry TIMESTAMPTZ,
    banned BOOLEAN NOT NULL DEFAULT FALSE,
    sent_today INT NOT NULL DEFAULT 0,
    last_send_day TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS recipient_addresses (
    identity_id BIGINT PRIMARY KEY REFERENCES identities(id),
    code TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    from_id BIGINT NOT NULL,
    to_id BIGINT NOT NULL,
    kind TEXT NOT NULL,
    body TEXT NOT NULL DEFAULT '',
    caption TEXT NOT NULL DEFAULT '',
    file_id TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    scheduled_for TIMESTAMPTZ,
    claimed_at TIMESTAMPTZ,
    delivered_handle BIGINT NOT NULL DEFAULT 0,
    revealed BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS messages_due_idx ON messages (scheduled_for)
    WHERE scheduled_for IS NOT NULL AND delivered_handle = 0 AND claimed_at IS NULL;
CREATE TABLE IF NOT EXISTS required_channels (
    id BIGINT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    invite_link TEXT NOT NULL DEFAULT ''
);
`)
	metrics.ObserveNetworkRequest("postgres", "ensure_schema", "schema", start, err)
	return err
}

func generateAddressCode() (string, error) {
	buf := make([]byte, addressLength)
	if _, err := crand.Read(buf); err != nil {
		return "", err
	}
	var b strings.Builder
	b.Grow(addressLength)
	for _, raw := range buf {
		idx := int(raw) % len(addressAlphabet)
		b.WriteByte(addressAlphabet[idx])
	}
	return b.String(), nil
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// Upsert реализует domain.IdentityRepo. Профиль с совпадающим root-handle
// получает права корневого администратора; обратный переход невозможен.
func (p *Postgres) Upsert(profile domain.TelegramProfile) (domain.Identity, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	username := strings.TrimSpace(profile.Username)
	fullName := strings.TrimSpace(profile.FullName)
	isRoot := p.rootHandle != "" && strings.EqualFold(username, p.rootHandle)

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO identities (id, username, full_name, is_admin, is_root_admin)
VALUES ($1, NULLIF($2,''), NULLIF($3,''), $4, $4)
ON CONFLICT (id) DO UPDATE SET
    username = EXCLUDED.username,
    full_name = EXCLUDED.full_name,
    is_admin = identities.is_admin OR EXCLUDED.is_admin,
    is_root_admin = identities.is_root_admin OR EXCLUDED.is_root_admin
RETURNING id, username, full_name, is_admin, is_root_admin, is_special, sub_expiry, banned, sent_today, last_send_day, created_at
`, profile.ID, username, fullName, isRoot)
	identity, err := scanIdentity(row)
	metrics.ObserveNetworkRequest("postgres", "identities_upsert", "identities", start, err)
	return identity, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (domain.Identity, error) {
	var (
		identity  domain.Identity
		username  sql.NullString
		fullName  sql.NullString
		subExpiry sql.NullTime
		lastDay   sql.NullTime
	)
	err := row.Scan(&identity.ID, &username, &fullName, &identity.IsAdmin, &identity.IsRootAdmin,
		&identity.IsSpecial, &subExpiry, &identity.IsBanned, &identity.SentToday, &lastDay, &identity.CreatedAt)
	if err != nil {
		return domain.Identity{}, err
	}
	if username.Valid {
		identity.Username = username.String
	}
	if fullName.Valid {
		identity.FullName = fullName.String
	}
	if subExpiry.Valid {
		ts := subExpiry.Time
		identity.SubExpiry = &ts
	}
	if lastDay.Valid {
		ts := lastDay.Time
		identity.LastSendDay = &ts
	}
	return identity, nil
}

// Get возвращает участника по идентификатору.
func (p *Postgres) Get(id int64) (domain.Identity, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT id, username, full_name, is_admin, is_root_admin, is_special, sub_expiry, banned, sent_today, last_send_day, created_at
FROM identities WHERE id=$1
`, id)
	identity, err := scanIdentity(row)
	metrics.ObserveNetworkRequest("postgres", "identities_get", "identities", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Identity{}, domain.ErrNotFound
	}
	return identity, err
}

// SetAdmin меняет признак администратора.
func (p *Postgres) SetAdmin(id int64, value bool) error {
	return p.setFlag(id, "is_admin", value)
}

// SetSpecial меняет признак «Особый».
func (p *Postgres) SetSpecial(id int64, value bool) error {
	return p.setFlag(id, "is_special", value)
}

// SetBanned меняет признак блокировки.
func (p *Postgres) SetBanned(id int64, value bool) error {
	return p.setFlag(id, "banned", value)
}

func (p *Postgres) setFlag(id int64, column string, value bool) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`UPDATE identities SET %s=$2 WHERE id=$1`, column), id, value)
	metrics.ObserveNetworkRequest("postgres", "identities_set_"+column, "identities", start, err)
	return err
}

// GrantSubscription перезаписывает срок подписки «Босс».
func (p *Postgres) GrantSubscription(id int64, until time.Time) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE identities SET sub_expiry=$2 WHERE id=$1`, id, until.UTC())
	metrics.ObserveNetworkRequest("postgres", "identities_grant_sub", "identities", start, err)
	return err
}

// TryConsumeQuota атомарно проверяет и списывает дневную квоту. Строка
// участника блокируется на время транзакции, поэтому два конкурентных
// вызова не могут оба пройти последний слот лимита.
func (p *Postgres) TryConsumeQuota(id int64, now time.Time, limits domain.QuotaLimits) (domain.QuotaState, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "identities", start, err)
	if err != nil {
		return domain.QuotaState{}, err
	}
	defer tx.Rollback(ctx)

	start = time.Now()
	row := tx.QueryRow(ctx, `
SELECT id, username, full_name, is_admin, is_root_admin, is_special, sub_expiry, banned, sent_today, last_send_day, created_at
FROM identities WHERE id=$1 FOR UPDATE
`, id)
	identity, err := scanIdentity(row)
	metrics.ObserveNetworkRequest("postgres", "identities_get_for_update", "identities", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuotaState{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.QuotaState{}, err
	}

	allowance := limits.AllowanceFor(identity, now)
	used := identity.CurrentCount(now)
	state := domain.QuotaState{Allowance: allowance, Used: used}

	if !allowance.Unlimited && used >= allowance.Limit {
		return state, nil
	}

	day := now.UTC().Truncate(24 * time.Hour)
	start = time.Now()
	_, err = tx.Exec(ctx, `
UPDATE identities SET sent_today=$2, last_send_day=$3 WHERE id=$1
`, id, used+1, day)
	metrics.ObserveNetworkRequest("postgres", "identities_consume_quota", "identities", start, err)
	if err != nil {
		return domain.QuotaState{}, err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "identities", start, err)
	if err != nil {
		return domain.QuotaState{}, err
	}

	state.Allowed = true
	state.Used = used + 1
	return state, nil
}

// Stats возвращает счётчики участников и сообщений.
func (p *Postgres) Stats() (int, int, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var identities, messages int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM identities`).Scan(&identities)
	metrics.ObserveNetworkRequest("postgres", "identities_count", "identities", start, err)
	if err != nil {
		return 0, 0, err
	}
	start = time.Now()
	err = p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&messages)
	metrics.ObserveNetworkRequest("postgres", "messages_count", "messages", start, err)
	return identities, messages, err
}

// Resolve возвращает участника по коду получателя.
func (p *Postgres) Resolve(code string) (int64, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var id int64
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT identity_id FROM recipient_addresses WHERE code=$1`, code).Scan(&id)
	metrics.ObserveNetworkRequest("postgres", "addresses_resolve", "recipient_addresses", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	return id, err
}

// AddressOf возвращает код участника.
func (p *Postgres) AddressOf(identityID int64) (string, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var code string
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT code FROM recipient_addresses WHERE identity_id=$1`, identityID).Scan(&code)
	metrics.ObserveNetworkRequest("postgres", "addresses_of", "recipient_addresses", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	return code, err
}

// Ensure возвращает существующий код или создаёт новый под ограничением
// уникальности, перегенерируя кандидата при коллизии.
func (p *Postgres) Ensure(identityID int64) (string, error) {
	code, err := p.AddressOf(identityID)
	if err == nil {
		return code, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}

	ctx, cancel := p.connCtx()
	defer cancel()

	for attempt := 0; attempt < addressRetryMax; attempt++ {
		candidate, err := generateAddressCode()
		if err != nil {
			return "", err
		}
		start := time.Now()
		tag, err := p.pool.Exec(ctx, `
INSERT INTO recipient_addresses (identity_id, code)
VALUES ($1, $2)
ON CONFLICT (identity_id) DO NOTHING
`, identityID, candidate)
		metrics.ObserveNetworkRequest("postgres", "addresses_insert", "recipient_addresses", start, err)
		if err != nil {
			if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
				continue
			}
			return "", err
		}
		if tag.RowsAffected() == 0 {
			// Конкурентный вызов успел создать код раньше.
			return p.AddressOf(identityID)
		}
		return candidate, nil
	}
	return "", fmt.Errorf("%w: не удалось сгенерировать уникальный код за %d попыток", domain.ErrIntegrity, addressRetryMax)
}

// Create сохраняет сообщение.
func (p *Postgres) Create(msg domain.Message) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	var scheduledFor any
	if msg.ScheduledFor != nil {
		scheduledFor = msg.ScheduledFor.UTC()
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO messages (id, from_id, to_id, kind, body, caption, file_id, created_at, scheduled_for, delivered_handle, revealed)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, false)
`, msg.ID, msg.FromID, msg.ToID, string(msg.Content.Kind), msg.Content.Text, msg.Content.Caption, msg.Content.FileID, msg.CreatedAt.UTC(), scheduledFor)
	metrics.ObserveNetworkRequest("postgres", "messages_insert", "messages", start, err)
	return err
}

func scanMessage(row rowScanner) (domain.Message, error) {
	var (
		msg          domain.Message
		kind         string
		scheduledFor sql.NullTime
		claimedAt    sql.NullTime
	)
	err := row.Scan(&msg.ID, &msg.FromID, &msg.ToID, &kind, &msg.Content.Text, &msg.Content.Caption,
		&msg.Content.FileID, &msg.CreatedAt, &scheduledFor, &claimedAt, &msg.DeliveredHandle, &msg.Revealed)
	if err != nil {
		return domain.Message{}, err
	}
	msg.Content.Kind = domain.ContentKind(kind)
	if scheduledFor.Valid {
		ts := scheduledFor.Time
		msg.ScheduledFor = &ts
	}
	if claimedAt.Valid {
		ts := claimedAt.Time
		msg.ClaimedAt = &ts
	}
	return msg, nil
}

const messageColumns = `id, from_id, to_id, kind, body, caption, file_id, created_at, scheduled_for, claimed_at, delivered_handle, revealed`

// Get возвращает сообщение по идентификатору.
func (p PostgresMessages) Get(id string) (domain.Message, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, id)
	msg, err := scanMessage(row)
	metrics.ObserveNetworkRequest("postgres", "messages_get", "messages", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Message{}, domain.ErrNotFound
	}
	return msg, err
}

// SetDeliveredHandle фиксирует идентификатор доставленного артефакта.
func (p *Postgres) SetDeliveredHandle(id string, handle int64) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE messages SET delivered_handle=$2 WHERE id=$1`, id, handle)
	metrics.ObserveNetworkRequest("postgres", "messages_set_delivered", "messages", start, err)
	return err
}

// ClaimDue атомарно захватывает созревшие отложенные сообщения. Захваченная
// строка исчезает из выборки, поэтому пересекающиеся тики планировщика не
// могут выбрать одно сообщение дважды.
func (p *Postgres) ClaimDue(now time.Time) ([]domain.Message, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
UPDATE messages SET claimed_at = now()
WHERE scheduled_for IS NOT NULL AND scheduled_for <= $1 AND delivered_handle = 0 AND claimed_at IS NULL
RETURNING `+messageColumns+`
`, now.UTC())
	metrics.ObserveNetworkRequest("postgres", "messages_claim_due", "messages", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var due []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, msg)
	}
	return due, rows.Err()
}

// ReleaseClaim возвращает недоставленное сообщение в выборку планировщика.
func (p *Postgres) ReleaseClaim(id string) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE messages SET claimed_at=NULL WHERE id=$1 AND delivered_handle=0`, id)
	metrics.ObserveNetworkRequest("postgres", "messages_release_claim", "messages", start, err)
	return err
}

// MarkRevealed выполняет одностороннее раскрытие. Условие в WHERE
// гарантирует, что переход применяется не более одного раза.
func (p *Postgres) MarkRevealed(id string) (bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE messages SET revealed=true WHERE id=$1 AND revealed=false`, id)
	metrics.ObserveNetworkRequest("postgres", "messages_mark_revealed", "messages", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListRequired возвращает каналы обязательной подписки.
func (p *Postgres) ListRequired() ([]domain.Channel, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT id, title, invite_link FROM required_channels ORDER BY id`)
	metrics.ObserveNetworkRequest("postgres", "channels_list", "required_channels", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var channels []domain.Channel
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(&ch.ID, &ch.Title, &ch.InviteLink); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// AddRequired сохраняет канал обязательной подписки.
func (p *Postgres) AddRequired(ch domain.Channel) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO required_channels (id, title, invite_link)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, invite_link=EXCLUDED.invite_link
`, ch.ID, ch.Title, ch.InviteLink)
	metrics.ObserveNetworkRequest("postgres", "channels_add", "required_channels", start, err)
	return err
}

// RemoveRequired удаляет канал обязательной подписки.
func (p *Postgres) RemoveRequired(id int64) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM required_channels WHERE id=$1`, id)
	metrics.ObserveNetworkRequest("postgres", "channels_remove", "required_channels", start, err)
	return err
}
