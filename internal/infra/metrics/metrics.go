package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	DispatchPassesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_passes_total",
		Help: "Количество выполненных проходов диспетчера",
	})
	DispatchPassesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_passes_skipped_total",
		Help: "Количество проходов, пропущенных из-за выключенного планировщика",
	})
	DispatchPassSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_pass_seconds",
		Help:    "Длительность одного прохода диспетчера",
		Buckets: prometheus.DefBuckets,
	})
	MessagesProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_messages_total",
		Help: "Обработанные сообщения по конечному статусу",
	}, []string{"status"})
	ChannelSendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_sends_total",
		Help: "Попытки отправки по типу канала и исходу",
	}, []string{"channel_type", "status"})
	HeartbeatFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_failures_total",
		Help: "Неудачные записи heartbeat",
	})
	LockContention = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lock_contention_total",
		Help: "Отказы захвата блокировки из-за живого владельца",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		DispatchPassesTotal,
		DispatchPassesSkipped,
		DispatchPassSeconds,
		MessagesProcessed,
		ChannelSendsTotal,
		HeartbeatFailures,
		LockContention,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: сервер запущен")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: сервер остановлен")
		}
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveChannelSend записывает исход попытки отправки в канал.
func ObserveChannelSend(channelType string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ChannelSendsTotal.WithLabelValues(channelType, status).Inc()
}
