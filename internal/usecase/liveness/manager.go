package liveness

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"notify-broker/internal/domain"
	"notify-broker/internal/infra/metrics"
)

// Manager обеспечивает единственность экземпляра диспетчера.
// Запись о владельце живёт в хранилище и видна снаружи (ops-дашборд).
type Manager struct {
	repo       domain.LockRepo
	staleAfter time.Duration
	holderID   string
	hostname   string
	pid        int
	now        func() time.Time
	probe      func(pid int) bool
	log        zerolog.Logger
}

// NewManager создаёт менеджер блокировки для текущего процесса.
func NewManager(repo domain.LockRepo, staleAfter time.Duration, logger zerolog.Logger) *Manager {
	hostname, _ := os.Hostname()
	pid := os.Getpid()
	return &Manager{
		repo:       repo,
		staleAfter: staleAfter,
		holderID:   fmt.Sprintf("%s:%d:%s", hostname, pid, uuid.NewString()),
		hostname:   hostname,
		pid:        pid,
		now:        func() time.Time { return time.Now().UTC() },
		probe:      processAlive,
		log:        logger,
	}
}

// HolderID возвращает идентификатор владельца этого процесса.
func (m *Manager) HolderID() string { return m.holderID }

// TryAcquire пытается захватить блокировку.
// false — не ошибка: другой живой экземпляр уже работает.
func (m *Manager) TryAcquire(ctx context.Context) (bool, error) {
	existing, err := m.repo.GetLock(ctx)
	switch {
	case err == nil:
		if m.holderAlive(existing) {
			metrics.LockContention.Inc()
			m.log.Info().
				Str("holder", existing.HolderID).
				Time("heartbeat", existing.HeartbeatAt).
				Msg("liveness: блокировка занята живым экземпляром")
			return false, nil
		}
		m.log.Warn().
			Str("holder", existing.HolderID).
			Time("heartbeat", existing.HeartbeatAt).
			Msg("liveness: найдена протухшая блокировка, захватываем")
	case err == domain.ErrLockNotFound:
		// Первый запуск: записи ещё нет.
	default:
		return false, fmt.Errorf("чтение блокировки: %w", err)
	}

	lock := domain.DaemonLock{
		HolderID:    m.holderID,
		Hostname:    m.hostname,
		PID:         m.pid,
		HeartbeatAt: m.now(),
	}
	if err := m.repo.SaveLock(ctx, lock); err != nil {
		return false, fmt.Errorf("запись блокировки: %w", err)
	}
	m.log.Info().Str("holder", m.holderID).Msg("liveness: блокировка захвачена")
	return true, nil
}

// Heartbeat обновляет отметку живости. Повторные вызовы владение не меняют.
// Неудача записи не фатальна: цикл продолжит и повторит на следующем тике.
func (m *Manager) Heartbeat(ctx context.Context) error {
	if err := m.repo.TouchLock(ctx, m.holderID, m.now()); err != nil {
		metrics.HeartbeatFailures.Inc()
		m.log.Warn().Err(err).Msg("liveness: не удалось записать heartbeat")
		return err
	}
	return nil
}

// WriteStandalone записывает heartbeat без захвата блокировки —
// для одноразового запуска, где пересечения исключает внешний триггер.
func (m *Manager) WriteStandalone(ctx context.Context) error {
	lock := domain.DaemonLock{
		HolderID:    m.holderID,
		Hostname:    m.hostname,
		PID:         m.pid,
		HeartbeatAt: m.now(),
	}
	if err := m.repo.SaveLock(ctx, lock); err != nil {
		metrics.HeartbeatFailures.Inc()
		m.log.Warn().Err(err).Msg("liveness: не удалось записать heartbeat")
		return err
	}
	return nil
}

// Release снимает блокировку при штатном завершении.
// После падения остаётся протухшая запись — её заберёт следующий TryAcquire.
func (m *Manager) Release(ctx context.Context) error {
	if err := m.repo.DeleteLock(ctx, m.holderID); err != nil {
		return fmt.Errorf("снятие блокировки: %w", err)
	}
	m.log.Info().Str("holder", m.holderID).Msg("liveness: блокировка снята")
	return nil
}

// IsStale сообщает, протухла ли текущая запись о владельце.
func (m *Manager) IsStale(ctx context.Context, timeout time.Duration) (bool, error) {
	lock, err := m.repo.GetLock(ctx)
	if err == domain.ErrLockNotFound {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return lock.Stale(m.now(), timeout), nil
}

// holderAlive решает, жив ли владелец записи. Для процесса на этом же
// хосте спрашиваем ОС; чужой хост судим только по возрасту heartbeat.
func (m *Manager) holderAlive(lock domain.DaemonLock) bool {
	if lock.Stale(m.now(), m.staleAfter) {
		return false
	}
	if lock.Hostname == m.hostname {
		return m.probe(lock.PID)
	}
	return true
}

// processAlive проверяет существование процесса сигналом 0.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
