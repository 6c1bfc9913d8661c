package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FormatMode определяет, как заголовок и тело собираются в сообщение провайдера.
type FormatMode string

const (
	// FormatPlain — простой текст.
	FormatPlain FormatMode = "plain"
	// FormatMarkdown — разметка Markdown.
	FormatMarkdown FormatMode = "markdown"
)

// ErrUnknownChannelType возвращается для типа канала вне закрытого множества.
var ErrUnknownChannelType = errors.New("неизвестный тип канала")

// ChannelConfig — типизированная конфигурация канала.
// Ровно одна реализация на каждый ChannelType; разбирается один раз при
// загрузке канала, дальше диспетчер работает только с вариантом.
type ChannelConfig interface {
	// DefaultRecipient возвращает legacy-получателя по умолчанию
	// (пустая строка, если он не настроен).
	DefaultRecipient() string
	// Format возвращает режим форматирования.
	Format() FormatMode
}

// BroadcastConfig — конфигурация batch-канала.
type BroadcastConfig struct {
	APIToken   string     `json:"api_token"`
	DefaultTo  string     `json:"default_recipient,omitempty"`
	FormatMode FormatMode `json:"format,omitempty"`
}

// TelegramConfig — конфигурация Telegram-канала.
type TelegramConfig struct {
	BotToken      string     `json:"bot_token"`
	DefaultChatID string     `json:"default_chat_id,omitempty"`
	FormatMode    FormatMode `json:"format,omitempty"`
}

// DefaultRecipient реализует ChannelConfig.
func (c BroadcastConfig) DefaultRecipient() string { return c.DefaultTo }

// Format реализует ChannelConfig.
func (c BroadcastConfig) Format() FormatMode { return normalizeFormat(c.FormatMode) }

// DefaultRecipient реализует ChannelConfig.
func (c TelegramConfig) DefaultRecipient() string { return c.DefaultChatID }

// Format реализует ChannelConfig.
func (c TelegramConfig) Format() FormatMode { return normalizeFormat(c.FormatMode) }

func normalizeFormat(mode FormatMode) FormatMode {
	if strings.EqualFold(string(mode), string(FormatMarkdown)) {
		return FormatMarkdown
	}
	return FormatPlain
}

// ParseChannelConfig разбирает сырой JSON конфигурации в вариант по типу канала.
func ParseChannelConfig(channelType ChannelType, raw []byte) (ChannelConfig, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	switch channelType {
	case ChannelBroadcast:
		var cfg BroadcastConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("конфигурация broadcast-канала: %w", err)
		}
		return cfg, nil
	case ChannelTelegram:
		var cfg TelegramConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("конфигурация telegram-канала: %w", err)
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannelType, channelType)
	}
}
