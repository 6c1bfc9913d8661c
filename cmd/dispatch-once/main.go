package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"notify-broker/internal/adapters/gateway"
	"notify-broker/internal/adapters/repo"
	"notify-broker/internal/domain"
	"notify-broker/internal/infra/config"
	"notify-broker/internal/infra/db"
	applog "notify-broker/internal/infra/log"
	"notify-broker/internal/infra/metrics"
	"notify-broker/internal/infra/queue"
	"notify-broker/internal/usecase/dispatch"
	"notify-broker/internal/usecase/liveness"
)

// Одноразовый запуск для внешнего периодического триггера (systemd timer,
// cron). Ненулевой код выхода — только невозможность стартовать;
// неудачи отдельных сообщений и каналов остаются в журнале результатов.
func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("dispatch-once: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	var events domain.EventPublisher
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		events = queue.NewRedisEventPublisher(redisClient, cfg.Queues.Events)
	}

	registry := gateway.NewRegistry(
		gateway.NewBroadcast(cfg.Broadcast.APIURL, cfg.Dispatch.SendTimeout),
		gateway.NewTelegram(cfg.Telegram.SendRate),
	)
	resolver := dispatch.NewResolver(repoAdapter)
	service := dispatch.NewService(repoAdapter, repoAdapter, repoAdapter, resolver, registry, events, cfg.Dispatch.SendTimeout, applog.ForComponent(logger, "dispatch"))
	manager := liveness.NewManager(repoAdapter, cfg.Lock.StaleAfter, applog.ForComponent(logger, "liveness"))
	runner := dispatch.NewRunner(service, manager, repoAdapter, cfg.Dispatch.Interval, cfg.Dispatch.PollInterval, cfg.Lock.HeartbeatInterval, applog.ForComponent(logger, "runner"))

	if err := runner.RunOnce(ctx); err != nil {
		logger.Fatal().Err(err).Msg("dispatch-once: запуск не удался")
	}
	logger.Info().Msg("dispatch-once: проход завершён")
}
