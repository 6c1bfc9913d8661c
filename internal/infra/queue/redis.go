package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"notify-broker/internal/domain"
	"notify-broker/internal/infra/metrics"
)

// RedisDispatchQueue реализует очередь задач на базе Redis lists.
type RedisDispatchQueue struct {
	client *redis.Client
	key    string
}

// NewRedisDispatchQueue создаёт очередь по указанному ключу.
func NewRedisDispatchQueue(client *redis.Client, key string) *RedisDispatchQueue {
	return &RedisDispatchQueue{client: client, key: key}
}

var _ domain.DispatchQueue = (*RedisDispatchQueue)(nil)

// Enqueue публикует задачу в очередь.
func (q *RedisDispatchQueue) Enqueue(ctx context.Context, job domain.DispatchJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди.
// Redis list не умеет повторную доставку, поэтому ack — заглушка:
// неуспешная обработка фиксируется только журналом результатов.
func (q *RedisDispatchQueue) Receive(ctx context.Context) (domain.DispatchJob, domain.DispatchAckFunc, error) {
	ack := func(bool) error { return nil }
	for {
		if err := ctx.Err(); err != nil {
			return domain.DispatchJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.DispatchJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.DispatchJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.DispatchJob{}, nil, errors.New("redis queue: unexpected response")
		}
		var job domain.DispatchJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.DispatchJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		return job, ack, nil
	}
}

// RedisEventPublisher отдаёт события доставки push-ретранслятору.
type RedisEventPublisher struct {
	client *redis.Client
	key    string
}

// NewRedisEventPublisher создаёт публикатор по указанному ключу.
func NewRedisEventPublisher(client *redis.Client, key string) *RedisEventPublisher {
	return &RedisEventPublisher{client: client, key: key}
}

var _ domain.EventPublisher = (*RedisEventPublisher)(nil)

// PublishDelivery публикует событие доставки.
func (p *RedisEventPublisher) PublishDelivery(ctx context.Context, event domain.DeliveryEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	err = p.client.LPush(ctx, p.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", p.key, start, err)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
