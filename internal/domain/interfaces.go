package domain

import (
	"context"
	"time"
)

// MessageRepo управляет сообщениями со стороны диспетчера.
type MessageRepo interface {
	// FindDueScheduled возвращает сообщения со статусом scheduled,
	// чьё время отправки наступило. Порядок не гарантируется.
	FindDueScheduled(ctx context.Context, now time.Time) ([]Message, error)
	GetMessage(ctx context.Context, id string) (Message, error)
	// UpdateMessageStatus переводит сообщение в новый статус;
	// sentAt передаётся только вместе с конечным статусом.
	UpdateMessageStatus(ctx context.Context, id string, status MessageStatus, sentAt *time.Time) error
}

// ResultRepo хранит журнал попыток отправки.
type ResultRepo interface {
	// AppendResult добавляет запись журнала; записи не перезаписываются.
	AppendResult(ctx context.Context, result MessageResult) error
}

// ChannelRepo читает каналы.
type ChannelRepo interface {
	// GetChannel возвращает канал или ErrChannelNotFound.
	GetChannel(ctx context.Context, id string) (Channel, error)
}

// SubscriberRepo читает подписчиков каналов.
type SubscriberRepo interface {
	ListActiveSubscribers(ctx context.Context, channelID string) ([]ChannelSubscriber, error)
}

// LockRepo хранит запись о владельце диспетчера.
type LockRepo interface {
	// GetLock возвращает текущую запись или ErrLockNotFound.
	GetLock(ctx context.Context) (DaemonLock, error)
	// SaveLock записывает нового владельца, замещая прежнюю запись.
	SaveLock(ctx context.Context, lock DaemonLock) error
	// TouchLock обновляет heartbeat, если запись принадлежит holderID.
	TouchLock(ctx context.Context, holderID string, at time.Time) error
	// DeleteLock удаляет запись, если она принадлежит holderID.
	DeleteLock(ctx context.Context, holderID string) error
}

// SettingsRepo читает настройки, управляемые админ-поверхностью.
type SettingsRepo interface {
	// SchedulerEnabled возвращает живой флаг включения планировщика.
	SchedulerEnabled(ctx context.Context) (bool, error)
}

// Gateway — исходящий адаптер одного типа канала.
// Возвращает nil, если попытка по каналу считается успешной
// (для поштучных каналов — хотя бы один получатель получил сообщение).
type Gateway interface {
	Send(ctx context.Context, channel Channel, title, body string, recipients []string) error
}
