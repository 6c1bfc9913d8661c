package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов брокера.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`
	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Dispatch struct {
		// Interval — периодичность проходов по запланированным сообщениям.
		Interval time.Duration `envconfig:"DISPATCH_INTERVAL" default:"60s"`
		// PollInterval — шаг цикла демона между проверками.
		PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"10s"`
		// SendTimeout — таймаут одной попытки отправки в канал.
		SendTimeout time.Duration `envconfig:"SEND_TIMEOUT" default:"20s"`
	} `envconfig:""`

	Lock struct {
		HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"10s"`
		StaleAfter        time.Duration `envconfig:"LOCK_STALE_AFTER" default:"60s"`
	} `envconfig:""`

	Broadcast struct {
		APIURL string `envconfig:"BROADCAST_API_URL"`
	} `envconfig:""`

	Telegram struct {
		// SendRate — максимум отправок в секунду на бота.
		SendRate float64 `envconfig:"TG_SEND_RATE" default:"25"`
	} `envconfig:""`

	Queues struct {
		// Backend выбирает транспорт очереди задач: redis или rabbit.
		Backend  string `envconfig:"QUEUE_BACKEND" default:"redis"`
		Dispatch string `envconfig:"DISPATCH_QUEUE_KEY" default:"dispatch_jobs"`
		Events   string `envconfig:"DELIVERY_EVENTS_KEY" default:"delivery_events"`
	} `envconfig:""`

	OpsAddr     string `envconfig:"OPS_ADDR" default:":8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
