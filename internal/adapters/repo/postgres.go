package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"notify-broker/internal/domain"
	"notify-broker/internal/infra/metrics"
)

// Postgres реализует репозитории брокера на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.MessageRepo    = (*Postgres)(nil)
	_ domain.ResultRepo     = (*Postgres)(nil)
	_ domain.ChannelRepo    = (*Postgres)(nil)
	_ domain.SubscriberRepo = (*Postgres)(nil)
	_ domain.LockRepo       = (*Postgres)(nil)
	_ domain.SettingsRepo   = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// FindDueScheduled реализует domain.MessageRepo.
func (p *Postgres) FindDueScheduled(ctx context.Context, now time.Time) ([]domain.Message, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, title, body, channel_ids, options, status, scheduled_for, sent_at, created_at
FROM messages
WHERE status = $1 AND scheduled_for <= $2
`, domain.StatusScheduled, now)
	metrics.ObserveNetworkRequest("postgres", "messages_due", "messages", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка сообщений: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// GetMessage реализует domain.MessageRepo.
func (p *Postgres) GetMessage(ctx context.Context, id string) (domain.Message, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT id, user_id, title, body, channel_ids, options, status, scheduled_for, sent_at, created_at
FROM messages
WHERE id = $1
`, id)
	msg, err := scanMessage(row)
	metrics.ObserveNetworkRequest("postgres", "message_get", "messages", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Message{}, fmt.Errorf("сообщение %s: %w", id, err)
	}
	return msg, err
}

// UpdateMessageStatus реализует domain.MessageRepo.
func (p *Postgres) UpdateMessageStatus(ctx context.Context, id string, status domain.MessageStatus, sentAt *time.Time) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var sent sql.NullTime
	if sentAt != nil {
		sent = sql.NullTime{Time: *sentAt, Valid: true}
	}

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE messages SET status = $2, sent_at = COALESCE($3, sent_at) WHERE id = $1
`, id, status, sent)
	metrics.ObserveNetworkRequest("postgres", "message_status", "messages", start, err)
	if err != nil {
		return fmt.Errorf("обновление статуса: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("обновление статуса %s: %w", id, pgx.ErrNoRows)
	}
	return nil
}

// AppendResult реализует domain.ResultRepo.
func (p *Postgres) AppendResult(ctx context.Context, result domain.MessageResult) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	var errText sql.NullString
	if result.Error != "" {
		errText = sql.NullString{String: result.Error, Valid: true}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO message_results (message_id, channel_id, success, error, created_at)
VALUES ($1, $2, $3, $4, $5)
`, result.MessageID, result.ChannelID, result.Success, errText, result.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "result_append", "message_results", start, err)
	if err != nil {
		return fmt.Errorf("запись результата: %w", err)
	}
	return nil
}

// GetChannel реализует domain.ChannelRepo.
func (p *Postgres) GetChannel(ctx context.Context, id string) (domain.Channel, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var (
		ch        domain.Channel
		rawConfig []byte
	)
	err := p.pool.QueryRow(ctx, `
SELECT id, user_id, type, name, enabled, config, created_at, updated_at
FROM channels
WHERE id = $1
`, id).Scan(&ch.ID, &ch.UserID, &ch.Type, &ch.Name, &ch.Enabled, &rawConfig, &ch.CreatedAt, &ch.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "channel_get", "channels", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Channel{}, domain.ErrChannelNotFound
	}
	if err != nil {
		return domain.Channel{}, fmt.Errorf("выборка канала: %w", err)
	}

	cfg, err := domain.ParseChannelConfig(ch.Type, rawConfig)
	if err != nil {
		return domain.Channel{}, fmt.Errorf("канал %s: %w", id, err)
	}
	ch.Config = cfg
	return ch, nil
}

// ListActiveSubscribers реализует domain.SubscriberRepo.
func (p *Postgres) ListActiveSubscribers(ctx context.Context, channelID string) ([]domain.ChannelSubscriber, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT channel_id, recipient_id, display_name, status
FROM channel_subscribers
WHERE channel_id = $1 AND status = $2
`, channelID, domain.SubscriberActive)
	metrics.ObserveNetworkRequest("postgres", "subscribers_list", "channel_subscribers", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка подписчиков: %w", err)
	}
	defer rows.Close()

	var subscribers []domain.ChannelSubscriber
	for rows.Next() {
		var (
			sub  domain.ChannelSubscriber
			name sql.NullString
		)
		if err := rows.Scan(&sub.ChannelID, &sub.RecipientID, &name, &sub.Status); err != nil {
			return nil, fmt.Errorf("чтение подписчика: %w", err)
		}
		sub.DisplayName = name.String
		subscribers = append(subscribers, sub)
	}
	return subscribers, rows.Err()
}

// GetLock реализует domain.LockRepo.
func (p *Postgres) GetLock(ctx context.Context) (domain.DaemonLock, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var lock domain.DaemonLock
	err := p.pool.QueryRow(ctx, `
SELECT holder_id, hostname, pid, heartbeat_at FROM daemon_lock WHERE id = 1
`).Scan(&lock.HolderID, &lock.Hostname, &lock.PID, &lock.HeartbeatAt)
	metrics.ObserveNetworkRequest("postgres", "lock_get", "daemon_lock", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DaemonLock{}, domain.ErrLockNotFound
	}
	if err != nil {
		return domain.DaemonLock{}, fmt.Errorf("выборка блокировки: %w", err)
	}
	return lock, nil
}

// SaveLock реализует domain.LockRepo.
func (p *Postgres) SaveLock(ctx context.Context, lock domain.DaemonLock) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO daemon_lock (id, holder_id, hostname, pid, heartbeat_at)
VALUES (1, $1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET holder_id = $1, hostname = $2, pid = $3, heartbeat_at = $4
`, lock.HolderID, lock.Hostname, lock.PID, lock.HeartbeatAt)
	metrics.ObserveNetworkRequest("postgres", "lock_save", "daemon_lock", start, err)
	if err != nil {
		return fmt.Errorf("запись блокировки: %w", err)
	}
	return nil
}

// TouchLock реализует domain.LockRepo.
func (p *Postgres) TouchLock(ctx context.Context, holderID string, at time.Time) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE daemon_lock SET heartbeat_at = $2 WHERE id = 1 AND holder_id = $1
`, holderID, at)
	metrics.ObserveNetworkRequest("postgres", "lock_touch", "daemon_lock", start, err)
	if err != nil {
		return fmt.Errorf("обновление heartbeat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLockNotFound
	}
	return nil
}

// DeleteLock реализует domain.LockRepo.
func (p *Postgres) DeleteLock(ctx context.Context, holderID string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
DELETE FROM daemon_lock WHERE id = 1 AND holder_id = $1
`, holderID)
	metrics.ObserveNetworkRequest("postgres", "lock_delete", "daemon_lock", start, err)
	if err != nil {
		return fmt.Errorf("удаление блокировки: %w", err)
	}
	return nil
}

// SchedulerEnabled реализует domain.SettingsRepo.
// Отсутствие записи трактуется как включённый планировщик.
func (p *Postgres) SchedulerEnabled(ctx context.Context) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var value string
	err := p.pool.QueryRow(ctx, `
SELECT value FROM app_settings WHERE key = 'scheduler_enabled'
`).Scan(&value)
	metrics.ObserveNetworkRequest("postgres", "settings_get", "app_settings", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("чтение настройки: %w", err)
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("разбор настройки scheduler_enabled: %w", err)
	}
	return enabled, nil
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var (
		msg        domain.Message
		rawOptions []byte
		scheduled  sql.NullTime
		sent       sql.NullTime
	)
	err := row.Scan(&msg.ID, &msg.UserID, &msg.Title, &msg.Body, &msg.ChannelIDs, &rawOptions, &msg.Status, &scheduled, &sent, &msg.CreatedAt)
	if err != nil {
		return domain.Message{}, err
	}
	if scheduled.Valid {
		t := scheduled.Time
		msg.ScheduledFor = &t
	}
	if sent.Valid {
		t := sent.Time
		msg.SentAt = &t
	}
	if len(rawOptions) > 0 {
		if err := json.Unmarshal(rawOptions, &msg.Options); err != nil {
			return domain.Message{}, fmt.Errorf("разбор настроек доставки: %w", err)
		}
	}
	return msg, nil
}
