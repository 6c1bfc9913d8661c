package domain

import (
	"context"
	"errors"
	"time"
)

// ErrChannelNotFound возвращается, если канал отсутствует.
var ErrChannelNotFound = errors.New("канал не найден")

// ErrLockNotFound возвращается, если записи о владельце нет.
var ErrLockNotFound = errors.New("запись о владельце не найдена")

// DispatchJobCause описывает источник задачи на отправку.
type DispatchJobCause string

const (
	// DispatchCauseImmediate — пользователь запросил немедленную отправку.
	DispatchCauseImmediate DispatchJobCause = "immediate"
	// DispatchCauseScheduled — отправка по расписанию.
	DispatchCauseScheduled DispatchJobCause = "scheduled"
)

// DispatchJob — задача на отправку одного сообщения вне таймерного прохода.
type DispatchJob struct {
	ID          string           `json:"job_id,omitempty"`
	MessageID   string           `json:"message_id"`
	RequestedAt time.Time        `json:"requested_at"`
	Cause       DispatchJobCause `json:"cause"`
}

// DispatchAckFunc подтверждает обработку задачи или запрашивает повтор доставки.
type DispatchAckFunc func(success bool) error

// DispatchQueue — очередь задач немедленной отправки.
type DispatchQueue interface {
	Enqueue(ctx context.Context, job DispatchJob) error
	Receive(ctx context.Context) (DispatchJob, DispatchAckFunc, error)
}

// DeliveryEvent публикуется после перевода сообщения в конечный статус;
// его потребляет внешний push-ретранслятор.
type DeliveryEvent struct {
	MessageID  string        `json:"message_id"`
	UserID     int64         `json:"user_id"`
	Status     MessageStatus `json:"status"`
	Channels   int           `json:"channels"`
	Succeeded  int           `json:"succeeded"`
	FinishedAt time.Time     `json:"finished_at"`
}

// EventPublisher отдаёт события доставки наружу.
type EventPublisher interface {
	PublishDelivery(ctx context.Context, event DeliveryEvent) error
}
