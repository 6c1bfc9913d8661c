package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"notify-broker/internal/domain"
	"notify-broker/internal/infra/metrics"
)

// RabbitDispatchQueue реализует очередь задач поверх AMQP.
type RabbitDispatchQueue struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	queue      string
	deliveries <-chan amqp.Delivery
}

// NewRabbitDispatchQueue подключается к RabbitMQ и объявляет durable-очередь.
func NewRabbitDispatchQueue(amqpURL, queue string) (*RabbitDispatchQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &RabbitDispatchQueue{conn: conn, channel: ch, queue: queue}, nil
}

var _ domain.DispatchQueue = (*RabbitDispatchQueue)(nil)

// Enqueue публикует задачу в очередь.
func (q *RabbitDispatchQueue) Enqueue(ctx context.Context, job domain.DispatchJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.channel.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу. Ack с success=false возвращает
// задачу в очередь для повторной доставки.
func (q *RabbitDispatchQueue) Receive(ctx context.Context) (domain.DispatchJob, domain.DispatchAckFunc, error) {
	if q.deliveries == nil {
		deliveries, err := q.channel.Consume(q.queue, "", false, false, false, false, nil)
		if err != nil {
			return domain.DispatchJob{}, nil, fmt.Errorf("start consume: %w", err)
		}
		q.deliveries = deliveries
	}
	for {
		select {
		case <-ctx.Done():
			return domain.DispatchJob{}, nil, ctx.Err()
		case delivery, ok := <-q.deliveries:
			if !ok {
				return domain.DispatchJob{}, nil, errors.New("amqp queue: канал доставки закрыт")
			}
			var job domain.DispatchJob
			if err := json.Unmarshal(delivery.Body, &job); err != nil {
				// Нечитаемое сообщение повторять бессмысленно.
				_ = delivery.Nack(false, false)
				return domain.DispatchJob{}, nil, fmt.Errorf("decode job: %w", err)
			}
			ack := func(success bool) error {
				if success {
					return delivery.Ack(false)
				}
				return delivery.Nack(false, true)
			}
			return job, ack, nil
		}
	}
}

// Close закрывает канал и соединение.
func (q *RabbitDispatchQueue) Close() error {
	if err := q.channel.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}
