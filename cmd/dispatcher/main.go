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
	httpinfra "notify-broker/internal/infra/http"
	applog "notify-broker/internal/infra/log"
	"notify-broker/internal/infra/metrics"
	"notify-broker/internal/infra/queue"
	"notify-broker/internal/usecase/dispatch"
	"notify-broker/internal/usecase/liveness"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("dispatcher: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
	}

	var events domain.EventPublisher
	if redisClient != nil {
		events = queue.NewRedisEventPublisher(redisClient, cfg.Queues.Events)
	}

	var dispatchQueue domain.DispatchQueue
	switch cfg.Queues.Backend {
	case "rabbit":
		rabbitQueue, err := queue.NewRabbitDispatchQueue(cfg.RabbitURL, cfg.Queues.Dispatch)
		if err != nil {
			logger.Fatal().Err(err).Msg("dispatcher: не удалось инициализировать очередь RabbitMQ")
		}
		defer rabbitQueue.Close()
		dispatchQueue = rabbitQueue
	default:
		if redisClient != nil {
			dispatchQueue = queue.NewRedisDispatchQueue(redisClient, cfg.Queues.Dispatch)
		}
	}

	registry := gateway.NewRegistry(
		gateway.NewBroadcast(cfg.Broadcast.APIURL, cfg.Dispatch.SendTimeout),
		gateway.NewTelegram(cfg.Telegram.SendRate),
	)
	resolver := dispatch.NewResolver(repoAdapter)
	service := dispatch.NewService(repoAdapter, repoAdapter, repoAdapter, resolver, registry, events, cfg.Dispatch.SendTimeout, applog.ForComponent(logger, "dispatch"))
	manager := liveness.NewManager(repoAdapter, cfg.Lock.StaleAfter, applog.ForComponent(logger, "liveness"))
	runner := dispatch.NewRunner(service, manager, repoAdapter, cfg.Dispatch.Interval, cfg.Dispatch.PollInterval, cfg.Lock.HeartbeatInterval, applog.ForComponent(logger, "runner"))

	metrics.StartServer(ctx, applog.ForComponent(logger, "metrics"), cfg.MetricsAddr)
	opsServer := httpinfra.NewServer(applog.ForComponent(logger, "ops"), repoAdapter, runner, cfg.Lock.StaleAfter)
	opsServer.Start(ctx, cfg.OpsAddr)

	go runner.RunConsumer(ctx, dispatchQueue)

	if err := runner.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("dispatcher: цикл завершился ошибкой")
	}
	logger.Info().Msg("dispatcher: остановлен")
}
