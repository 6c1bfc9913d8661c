package dispatch

import (
	"context"
	"fmt"

	"notify-broker/internal/domain"
)

// Resolver определяет конкретный список получателей для канала.
type Resolver struct {
	subscribers domain.SubscriberRepo
}

// NewResolver создаёт резолвер получателей.
func NewResolver(subscribers domain.SubscriberRepo) *Resolver {
	return &Resolver{subscribers: subscribers}
}

// Resolve возвращает получателей согласно настройкам доставки.
// Явный список в режиме selected возвращается как есть, без проверки
// по подписчикам: неизвестные идентификаторы отклонит сам провайдер.
// Если выбор пуст, действует legacy-получатель из конфигурации канала.
func (r *Resolver) Resolve(ctx context.Context, channel domain.Channel, opts domain.DeliveryOptions) ([]string, error) {
	recipients, err := r.resolve(ctx, channel, opts)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 && channel.Config != nil {
		if fallback := channel.Config.DefaultRecipient(); fallback != "" {
			return []string{fallback}, nil
		}
	}
	return recipients, nil
}

func (r *Resolver) resolve(ctx context.Context, channel domain.Channel, opts domain.DeliveryOptions) ([]string, error) {
	if opts.Mode == domain.DeliverySelected && len(opts.RecipientIDs) > 0 {
		return opts.RecipientIDs, nil
	}
	subscribers, err := r.subscribers.ListActiveSubscribers(ctx, channel.ID)
	if err != nil {
		return nil, fmt.Errorf("выборка подписчиков: %w", err)
	}
	recipients := make([]string, 0, len(subscribers))
	for _, sub := range subscribers {
		recipients = append(recipients, sub.RecipientID)
	}
	return recipients, nil
}
