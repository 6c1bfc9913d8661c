package domain

import "time"

// MessageStatus описывает жизненный цикл сообщения.
type MessageStatus string

const (
	// StatusPending — сообщение создано, но ещё не обработано.
	StatusPending MessageStatus = "pending"
	// StatusScheduled — отправка запланирована на будущее время.
	StatusScheduled MessageStatus = "scheduled"
	// StatusSending — сообщение взято диспетчером в обработку.
	StatusSending MessageStatus = "sending"
	// StatusSent — все каналы отправили успешно.
	StatusSent MessageStatus = "sent"
	// StatusPartial — часть каналов отправила успешно, часть нет.
	StatusPartial MessageStatus = "partial"
	// StatusFailed — ни один канал не отправил успешно.
	StatusFailed MessageStatus = "failed"
)

// Terminal сообщает, является ли статус конечным.
func (s MessageStatus) Terminal() bool {
	return s == StatusSent || s == StatusPartial || s == StatusFailed
}

// ScheduleGrace — окно, в пределах которого запланированное время
// считается «сейчас» и сообщение уходит немедленно.
const ScheduleGrace = 60 * time.Second

// InitialStatus определяет статус нового сообщения: scheduled только если
// время отправки строго дальше ScheduleGrace, иначе немедленная отправка.
func InitialStatus(scheduledFor *time.Time, now time.Time) MessageStatus {
	if scheduledFor != nil && scheduledFor.Sub(now) > ScheduleGrace {
		return StatusScheduled
	}
	return StatusSending
}

// DeliveryMode определяет, как выбираются получатели канала.
type DeliveryMode string

const (
	// DeliveryAll — все активные подписчики канала.
	DeliveryAll DeliveryMode = "all"
	// DeliverySelected — явно перечисленные получатели.
	DeliverySelected DeliveryMode = "selected"
)

// DeliveryOptions — настройки доставки сообщения для одного канала.
type DeliveryOptions struct {
	Mode         DeliveryMode `json:"mode"`
	RecipientIDs []string     `json:"recipient_ids,omitempty"`
}

// Message — единица исходящей рассылки.
type Message struct {
	ID           string
	UserID       int64
	Title        string
	Body         string
	ChannelIDs   []string
	Options      map[string]DeliveryOptions
	Status       MessageStatus
	ScheduledFor *time.Time
	SentAt       *time.Time
	CreatedAt    time.Time
}

// OptionsFor возвращает настройки доставки для канала;
// при их отсутствии действует режим DeliveryAll.
func (m Message) OptionsFor(channelID string) DeliveryOptions {
	if opts, ok := m.Options[channelID]; ok {
		if opts.Mode == "" {
			opts.Mode = DeliveryAll
		}
		return opts
	}
	return DeliveryOptions{Mode: DeliveryAll}
}

// ChannelType — закрытое множество типов интеграций.
type ChannelType string

const (
	// ChannelBroadcast — batch-API с массовой рассылкой по списку получателей.
	ChannelBroadcast ChannelType = "broadcast"
	// ChannelTelegram — API с отправкой по одному получателю за вызов.
	ChannelTelegram ChannelType = "telegram"
)

// Channel — настроенная исходящая интеграция пользователя.
type Channel struct {
	ID        string
	UserID    int64
	Type      ChannelType
	Name      string
	Enabled   bool
	Config    ChannelConfig
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SubscriberStatus описывает состояние подписчика канала.
type SubscriberStatus string

const (
	// SubscriberActive — подписчик доступен для рассылки.
	SubscriberActive SubscriberStatus = "active"
	// SubscriberBlocked — подписчик заблокировал канал.
	SubscriberBlocked SubscriberStatus = "blocked"
)

// ChannelSubscriber — известный каналу получатель.
type ChannelSubscriber struct {
	ChannelID   string
	RecipientID string
	DisplayName string
	Status      SubscriberStatus
}

// MessageResult — итог одной попытки отправки в один канал.
// Записи не обновляются после вставки: это журнал аудита.
type MessageResult struct {
	MessageID string
	ChannelID string
	Success   bool
	Error     string
	CreatedAt time.Time
}

// DaemonLock — запись о владельце единственного экземпляра диспетчера.
type DaemonLock struct {
	HolderID    string
	Hostname    string
	PID         int
	HeartbeatAt time.Time
}

// Stale сообщает, протухла ли запись: heartbeat старше таймаута.
func (l DaemonLock) Stale(now time.Time, timeout time.Duration) bool {
	return now.Sub(l.HeartbeatAt) > timeout
}

// PassSummary — итог одного прохода диспетчера.
type PassSummary struct {
	PassID     string
	StartedAt  time.Time
	FinishedAt time.Time
	Processed  int
	Outcomes   []MessageOutcome
}

// MessageOutcome — итог обработки одного сообщения внутри прохода.
type MessageOutcome struct {
	MessageID string
	Status    MessageStatus
	Results   []MessageResult
}

// FinalStatus вычисляет конечный статус сообщения по набору результатов.
// Вызывается только после того, как сделана попытка по каждому каналу.
func FinalStatus(results []MessageResult) MessageStatus {
	if len(results) == 0 {
		return StatusFailed
	}
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	switch {
	case succeeded == len(results):
		return StatusSent
	case succeeded > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}
