package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"notify-broker/internal/domain"
	"notify-broker/internal/infra/metrics"
)

// Причины отказов уровня канала; пишутся в журнал результатов как есть,
// их читает админ-поверхность.
const (
	reasonChannelUnavailable = "канал не найден или выключен"
	reasonNoRecipients       = "нет получателей"
)

// ErrMessageAlreadyTerminal возвращается при попытке отправить сообщение,
// уже находящееся в конечном статусе.
var ErrMessageAlreadyTerminal = errors.New("сообщение уже в конечном статусе")

// GatewayRegistry выбирает адаптер по каналу.
type GatewayRegistry interface {
	ForChannel(channel domain.Channel) (domain.Gateway, error)
}

// Service — машина состояний диспетчеризации.
type Service struct {
	messages    domain.MessageRepo
	results     domain.ResultRepo
	channels    domain.ChannelRepo
	resolver    *Resolver
	gateways    GatewayRegistry
	events      domain.EventPublisher
	sendTimeout time.Duration
	now         func() time.Time
	log         zerolog.Logger
}

// NewService создаёт диспетчер.
func NewService(messages domain.MessageRepo, results domain.ResultRepo, channels domain.ChannelRepo, resolver *Resolver, gateways GatewayRegistry, events domain.EventPublisher, sendTimeout time.Duration, logger zerolog.Logger) *Service {
	if sendTimeout <= 0 {
		sendTimeout = 20 * time.Second
	}
	return &Service{
		messages:    messages,
		results:     results,
		channels:    channels,
		resolver:    resolver,
		gateways:    gateways,
		events:      events,
		sendTimeout: sendTimeout,
		now:         func() time.Time { return time.Now().UTC() },
		log:         logger,
	}
}

// RunPass выполняет один проход: находит назревшие сообщения и отправляет их.
// Ошибки уровня сообщения не прерывают проход; ошибка возвращается только
// если не удалось получить список назревших сообщений.
func (s *Service) RunPass(ctx context.Context) (domain.PassSummary, error) {
	summary := domain.PassSummary{PassID: uuid.NewString(), StartedAt: s.now()}
	passLog := s.log.With().Str("pass", summary.PassID).Logger()

	due, err := s.messages.FindDueScheduled(ctx, summary.StartedAt)
	if err != nil {
		return summary, fmt.Errorf("выборка назревших сообщений: %w", err)
	}
	passLog.Info().Int("due", len(due)).Msg("dispatch: проход начат")

	for _, msg := range due {
		outcome := s.process(ctx, passLog, msg)
		summary.Outcomes = append(summary.Outcomes, outcome)
		summary.Processed++
	}

	summary.FinishedAt = s.now()
	metrics.DispatchPassesTotal.Inc()
	metrics.DispatchPassSeconds.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	passLog.Info().
		Int("processed", summary.Processed).
		Dur("took", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("dispatch: проход завершён")
	return summary, nil
}

// DispatchMessage отправляет одно сообщение вне таймерного прохода
// (немедленная отправка по задаче из очереди).
func (s *Service) DispatchMessage(ctx context.Context, messageID string) (domain.MessageOutcome, error) {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return domain.MessageOutcome{}, fmt.Errorf("получение сообщения: %w", err)
	}
	if msg.Status.Terminal() {
		return domain.MessageOutcome{}, fmt.Errorf("%w: %s", ErrMessageAlreadyTerminal, msg.Status)
	}
	return s.process(ctx, s.log, msg), nil
}

// process обрабатывает одно сообщение. Внутренняя ошибка оставляет сообщение
// в статусе sending: оператору виднее, чем молчаливый failed на баге.
func (s *Service) process(ctx context.Context, passLog zerolog.Logger, msg domain.Message) domain.MessageOutcome {
	msgLog := passLog.With().Str("message", msg.ID).Logger()
	outcome := domain.MessageOutcome{MessageID: msg.ID, Status: domain.StatusSending}

	// Переход в sending виден до первой попытки: второй экземпляр
	// не возьмёт сообщение, а зависший sending заметен оператору.
	if err := s.messages.UpdateMessageStatus(ctx, msg.ID, domain.StatusSending, nil); err != nil {
		msgLog.Error().Err(err).Msg("dispatch: не удалось перевести сообщение в sending")
		return outcome
	}

	results := make([]domain.MessageResult, 0, len(msg.ChannelIDs))
	for _, channelID := range msg.ChannelIDs {
		result, err := s.attemptChannel(ctx, msgLog, msg, channelID)
		if err != nil {
			msgLog.Error().Err(err).Str("channel", channelID).Msg("dispatch: канал не опрошен, сообщение остаётся в sending")
			return outcome
		}
		if err := s.results.AppendResult(ctx, result); err != nil {
			msgLog.Error().Err(err).Str("channel", channelID).Msg("dispatch: не удалось записать результат")
			return outcome
		}
		results = append(results, result)
	}

	final := domain.FinalStatus(results)
	sentAt := s.now()
	// Все результаты уже в журнале; только теперь конечный статус.
	if err := s.messages.UpdateMessageStatus(ctx, msg.ID, final, &sentAt); err != nil {
		msgLog.Error().Err(err).Msg("dispatch: не удалось записать конечный статус")
		return outcome
	}

	outcome.Status = final
	outcome.Results = results
	metrics.MessagesProcessed.WithLabelValues(string(final)).Inc()
	msgLog.Info().Str("status", string(final)).Int("channels", len(results)).Msg("dispatch: сообщение обработано")

	s.publishDelivery(ctx, msgLog, msg, final, results, sentAt)
	return outcome
}

// attemptChannel выполняет попытку отправки в один канал. Отказ канала
// или адаптера превращается в запись журнала, а не в ошибку: остальные
// каналы сообщения должны быть испробованы. Ошибка возвращается только
// при сбое хранилища — такой канал не считается испробованным.
func (s *Service) attemptChannel(ctx context.Context, msgLog zerolog.Logger, msg domain.Message, channelID string) (domain.MessageResult, error) {
	result := domain.MessageResult{MessageID: msg.ID, ChannelID: channelID, CreatedAt: s.now()}
	chanLog := msgLog.With().Str("channel", channelID).Logger()

	channel, err := s.channels.GetChannel(ctx, channelID)
	if err != nil {
		// Фиксированная причина пишется только по факту отсутствия
		// записи; сбой хранилища — не приговор каналу.
		if !errors.Is(err, domain.ErrChannelNotFound) {
			return result, fmt.Errorf("получение канала: %w", err)
		}
		result.Error = reasonChannelUnavailable
		chanLog.Warn().Msg("dispatch: канал не найден")
		return result, nil
	}
	if !channel.Enabled {
		result.Error = reasonChannelUnavailable
		chanLog.Warn().Msg("dispatch: канал выключен")
		return result, nil
	}

	recipients, err := s.resolver.Resolve(ctx, channel, msg.OptionsFor(channelID))
	if err != nil {
		return result, fmt.Errorf("определение получателей: %w", err)
	}
	if len(recipients) == 0 {
		result.Error = reasonNoRecipients
		chanLog.Warn().Msg("dispatch: нет получателей")
		return result, nil
	}

	gw, err := s.gateways.ForChannel(channel)
	if err != nil {
		result.Error = err.Error()
		chanLog.Error().Err(err).Msg("dispatch: адаптер не найден")
		return result, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	err = gw.Send(sendCtx, channel, msg.Title, msg.Body, recipients)
	cancel()
	metrics.ObserveChannelSend(string(channel.Type), err)
	if err != nil {
		result.Error = err.Error()
		chanLog.Warn().Err(err).Int("recipients", len(recipients)).Msg("dispatch: отправка не удалась")
		return result, nil
	}

	result.Success = true
	chanLog.Info().Int("recipients", len(recipients)).Msg("dispatch: отправка успешна")
	return result, nil
}

func (s *Service) publishDelivery(ctx context.Context, msgLog zerolog.Logger, msg domain.Message, status domain.MessageStatus, results []domain.MessageResult, finishedAt time.Time) {
	if s.events == nil {
		return
	}
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	event := domain.DeliveryEvent{
		MessageID:  msg.ID,
		UserID:     msg.UserID,
		Status:     status,
		Channels:   len(results),
		Succeeded:  succeeded,
		FinishedAt: finishedAt,
	}
	if err := s.events.PublishDelivery(ctx, event); err != nil {
		msgLog.Warn().Err(err).Msg("dispatch: событие доставки не опубликовано")
	}
}
