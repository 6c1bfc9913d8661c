package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"notify-broker/internal/domain"
	"notify-broker/internal/infra/metrics"
)

// telegramMessageLimit — лимит Telegram на длину текста сообщения.
const telegramMessageLimit = 4096

// botClient — минимальный интерфейс клиента Bot API.
type botClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram отправляет сообщения по одному получателю за вызов.
// Попытка по каналу успешна, если доставлен хотя бы один получатель.
type Telegram struct {
	limiter *rate.Limiter
	factory func(token string) (botClient, error)

	mu      sync.Mutex
	clients map[string]botClient
}

// NewTelegram создаёт адаптер Bot API с общим лимитом отправок в секунду.
func NewTelegram(sendRate float64) *Telegram {
	if sendRate <= 0 {
		sendRate = 25
	}
	return &Telegram{
		limiter: rate.NewLimiter(rate.Limit(sendRate), 1),
		factory: func(token string) (botClient, error) {
			return tgbotapi.NewBotAPI(token)
		},
		clients: make(map[string]botClient),
	}
}

var _ domain.Gateway = (*Telegram)(nil)

// Send реализует domain.Gateway.
func (g *Telegram) Send(ctx context.Context, channel domain.Channel, title, body string, recipients []string) error {
	cfg, ok := channel.Config.(domain.TelegramConfig)
	if !ok {
		return fmt.Errorf("канал %s: конфигурация не является TelegramConfig", channel.ID)
	}
	if cfg.BotToken == "" {
		return fmt.Errorf("канал %s: не задан токен бота", channel.ID)
	}

	client, err := g.clientFor(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("канал %s: создание бота: %w", channel.ID, err)
	}

	mode := cfg.Format()
	text := Render(mode, title, body)
	if utf8.RuneCountInString(text) > telegramMessageLimit {
		// Обрезка может разорвать разметку (незакрытая «*» и т.п.),
		// Bot API такое отвергает. Обрезанный текст уходит без форматирования.
		mode = domain.FormatPlain
		text = Truncate(Render(mode, title, body), telegramMessageLimit)
	}

	delivered := 0
	var failures []string
	for _, recipient := range recipients {
		if err := g.sendOne(ctx, client, mode, recipient, text); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", recipient, err))
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return fmt.Errorf("ни один получатель не получил сообщение: %s", strings.Join(failures, "; "))
	}
	return nil
}

func (g *Telegram) sendOne(ctx context.Context, client botClient, mode domain.FormatMode, recipient, text string) error {
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("некорректный chat id: %w", err)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if mode == domain.FormatMarkdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}

	start := time.Now()
	_, err = client.Send(msg)
	metrics.ObserveNetworkRequest("telegram", "send_message", "bot_api", start, err)
	return err
}

func (g *Telegram) clientFor(token string) (botClient, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if client, ok := g.clients[token]; ok {
		return client, nil
	}
	client, err := g.factory(token)
	if err != nil {
		return nil, err
	}
	g.clients[token] = client
	return client, nil
}
