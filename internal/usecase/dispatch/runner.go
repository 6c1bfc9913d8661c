package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"notify-broker/internal/domain"
	"notify-broker/internal/infra/metrics"
)

// Liveness — контракт менеджера блокировки, нужный циклу.
type Liveness interface {
	TryAcquire(ctx context.Context) (bool, error)
	Heartbeat(ctx context.Context) error
	WriteStandalone(ctx context.Context) error
	Release(ctx context.Context) error
}

// Runner запускает диспетчер: непрерывным циклом или одноразово.
// Оба режима гоняют один и тот же Service.
type Runner struct {
	service  *Service
	liveness Liveness
	settings domain.SettingsRepo

	dispatchInterval  time.Duration
	pollInterval      time.Duration
	heartbeatInterval time.Duration

	mu       sync.Mutex
	lastPass domain.PassSummary

	log zerolog.Logger
}

// NewRunner создаёт управляющий цикл.
func NewRunner(service *Service, liveness Liveness, settings domain.SettingsRepo, dispatchInterval, pollInterval, heartbeatInterval time.Duration, logger zerolog.Logger) *Runner {
	if dispatchInterval <= 0 {
		dispatchInterval = time.Minute
	}
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = 10 * time.Second
	}
	return &Runner{
		service:           service,
		liveness:          liveness,
		settings:          settings,
		dispatchInterval:  dispatchInterval,
		pollInterval:      pollInterval,
		heartbeatInterval: heartbeatInterval,
		log:               logger,
	}
}

// LastPass возвращает итог последнего прохода (для ops-поверхности).
func (r *Runner) LastPass() domain.PassSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPass
}

// Run — непрерывный режим: захват блокировки, heartbeat по расписанию,
// проход раз в dispatchInterval. Отказ захвата — не ошибка: другой
// экземпляр жив, этот тихо завершается.
func (r *Runner) Run(ctx context.Context) error {
	acquired, err := r.liveness.TryAcquire(ctx)
	if err != nil {
		return fmt.Errorf("захват блокировки: %w", err)
	}
	if !acquired {
		return nil
	}
	defer func() {
		// Снимаем блокировку уже после выхода из цикла; сигнал
		// не должен оборвать снятие, поэтому свежий контекст.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.liveness.Release(releaseCtx); err != nil {
			r.log.Error().Err(err).Msg("runner: не удалось снять блокировку")
		}
	}()

	// Сигнал останавливает запуск новых проходов, но текущий проход
	// должен дойти до конца: иначе сообщение зависнет в sending.
	workCtx := context.WithoutCancel(ctx)

	_ = r.liveness.Heartbeat(workCtx)
	r.cycle(workCtx)
	lastHeartbeat := time.Now()
	lastPass := time.Now()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("runner: получен сигнал завершения")
			return nil
		case <-ticker.C:
			if time.Since(lastHeartbeat) >= r.heartbeatInterval {
				_ = r.liveness.Heartbeat(workCtx)
				lastHeartbeat = time.Now()
			}
			if time.Since(lastPass) >= r.dispatchInterval {
				r.cycle(workCtx)
				lastPass = time.Now()
			}
		}
	}
}

// RunOnce — одноразовый режим для внешнего периодического триггера.
// Ошибка возвращается только при недоступности хранилища; исходы
// отдельных сообщений и каналов остаются в журнале результатов.
func (r *Runner) RunOnce(ctx context.Context) error {
	// Тот же щит, что и в непрерывном режиме: сигнал не должен
	// оборвать отправки текущего сообщения на полпути.
	workCtx := context.WithoutCancel(ctx)

	if err := r.liveness.WriteStandalone(workCtx); err != nil {
		return fmt.Errorf("запись heartbeat: %w", err)
	}
	enabled, err := r.settings.SchedulerEnabled(workCtx)
	if err != nil {
		return fmt.Errorf("чтение флага планировщика: %w", err)
	}
	if !enabled {
		metrics.DispatchPassesSkipped.Inc()
		r.log.Info().Msg("runner: планировщик выключен, проход пропущен")
		return nil
	}
	summary, err := r.service.RunPass(workCtx)
	if err != nil {
		return err
	}
	r.storePass(summary)
	return nil
}

// RunConsumer читает задачи немедленной отправки и прогоняет их
// через тот же диспетчер. Работает параллельно с таймерным циклом.
func (r *Runner) RunConsumer(ctx context.Context, queue domain.DispatchQueue) {
	if queue == nil {
		return
	}
	for {
		job, ack, err := queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			r.log.Error().Err(err).Msg("runner: ошибка чтения очереди")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		jobLog := r.log.With().Str("job", job.ID).Str("message", job.MessageID).Logger()
		outcome, err := r.service.DispatchMessage(context.WithoutCancel(ctx), job.MessageID)
		if err != nil {
			// Уже отправленное сообщение повторять нельзя.
			if errors.Is(err, ErrMessageAlreadyTerminal) {
				jobLog.Warn().Err(err).Msg("runner: задача отброшена")
				_ = ack(true)
				continue
			}
			jobLog.Error().Err(err).Msg("runner: задача не обработана")
			_ = ack(false)
			continue
		}
		jobLog.Info().Str("status", string(outcome.Status)).Msg("runner: задача обработана")
		_ = ack(true)
	}
}

// cycle проверяет живой флаг планировщика и выполняет проход.
// Ошибки логируются и не прерывают цикл: повтор на следующем тике.
func (r *Runner) cycle(ctx context.Context) {
	enabled, err := r.settings.SchedulerEnabled(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("runner: не удалось прочитать флаг планировщика")
		return
	}
	if !enabled {
		metrics.DispatchPassesSkipped.Inc()
		r.log.Info().Msg("runner: планировщик выключен, проход пропущен")
		return
	}
	summary, err := r.service.RunPass(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("runner: проход завершился ошибкой")
		return
	}
	r.storePass(summary)
}

func (r *Runner) storePass(summary domain.PassSummary) {
	r.mu.Lock()
	r.lastPass = summary
	r.mu.Unlock()
}
