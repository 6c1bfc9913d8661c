package gateway

import (
	"fmt"

	"notify-broker/internal/domain"
)

// Registry выбирает адаптер по типу канала.
type Registry struct {
	gateways map[domain.ChannelType]domain.Gateway
}

// NewRegistry создаёт реестр адаптеров.
func NewRegistry(broadcast, telegram domain.Gateway) *Registry {
	return &Registry{gateways: map[domain.ChannelType]domain.Gateway{
		domain.ChannelBroadcast: broadcast,
		domain.ChannelTelegram:  telegram,
	}}
}

// ForChannel возвращает адаптер для канала.
func (r *Registry) ForChannel(channel domain.Channel) (domain.Gateway, error) {
	gw, ok := r.gateways[channel.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownChannelType, channel.Type)
	}
	return gw, nil
}
