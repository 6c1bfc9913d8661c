package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"notify-broker/internal/domain"
)

type fakeBot struct {
	sent   []tgbotapi.MessageConfig
	failed map[int64]error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable")
	}
	if err, fail := f.failed[msg.ChatID]; fail {
		return tgbotapi.Message{}, err
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{}, nil
}

func newTestTelegram(bot *fakeBot) *Telegram {
	g := NewTelegram(1000)
	g.factory = func(string) (botClient, error) { return bot, nil }
	return g
}

func telegramChannel(mode domain.FormatMode) domain.Channel {
	return domain.Channel{
		ID:      "tg1",
		Type:    domain.ChannelTelegram,
		Enabled: true,
		Config:  domain.TelegramConfig{BotToken: "token", FormatMode: mode},
	}
}

func TestTelegramSendAllRecipients(t *testing.T) {
	bot := &fakeBot{}
	g := newTestTelegram(bot)

	err := g.Send(context.Background(), telegramChannel(domain.FormatPlain), "привет", "текст", []string{"100", "200"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(bot.sent) != 2 {
		t.Fatalf("ожидали 2 отправки, получили %d", len(bot.sent))
	}
	if bot.sent[0].Text != "привет\n\nтекст" {
		t.Fatalf("ожидали plain-текст, получили %q", bot.sent[0].Text)
	}
	if bot.sent[0].ParseMode != "" {
		t.Fatalf("plain-режим не должен задавать ParseMode")
	}
}

func TestTelegramAtLeastOneSucceeds(t *testing.T) {
	bot := &fakeBot{failed: map[int64]error{100: errors.New("blocked"), 300: errors.New("blocked")}}
	g := newTestTelegram(bot)

	err := g.Send(context.Background(), telegramChannel(domain.FormatPlain), "t", "b", []string{"100", "200", "300"})
	if err != nil {
		t.Fatalf("один получатель доставлен, канал должен считаться успешным: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("ожидали 1 доставку, получили %d", len(bot.sent))
	}
}

func TestTelegramAllRecipientsFail(t *testing.T) {
	bot := &fakeBot{failed: map[int64]error{100: errors.New("timeout"), 200: errors.New("blocked")}}
	g := newTestTelegram(bot)

	err := g.Send(context.Background(), telegramChannel(domain.FormatPlain), "t", "b", []string{"100", "200"})
	if err == nil {
		t.Fatalf("ожидали ошибку при полном отказе")
	}
	if !strings.Contains(err.Error(), "timeout") || !strings.Contains(err.Error(), "blocked") {
		t.Fatalf("ожидали обе причины в ошибке, получили: %v", err)
	}
}

func TestTelegramMarkdownMode(t *testing.T) {
	bot := &fakeBot{}
	g := newTestTelegram(bot)

	err := g.Send(context.Background(), telegramChannel(domain.FormatMarkdown), "заголовок", "тело", []string{"1"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if bot.sent[0].ParseMode != tgbotapi.ModeMarkdown {
		t.Fatalf("ожидали ParseMode Markdown")
	}
	if bot.sent[0].Text != "*заголовок*\n\nтело" {
		t.Fatalf("ожидали markdown-разметку, получили %q", bot.sent[0].Text)
	}
}

// Слишком длинное сообщение обрезается и уходит без разметки:
// обрезка по границе может оставить незакрытую сущность.
func TestTelegramTruncationDropsMarkdown(t *testing.T) {
	bot := &fakeBot{}
	g := newTestTelegram(bot)

	body := strings.Repeat("а", 5000) + " *жирный хвост*"
	err := g.Send(context.Background(), telegramChannel(domain.FormatMarkdown), "заголовок", body, []string{"1"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	sent := bot.sent[0]
	if sent.ParseMode != "" {
		t.Fatalf("обрезанный текст не должен уходить с ParseMode, получили %q", sent.ParseMode)
	}
	if got := len([]rune(sent.Text)); got > 4096 {
		t.Fatalf("текст длиннее лимита: %d рун", got)
	}
	if strings.HasPrefix(sent.Text, "*") {
		t.Fatalf("без разметки заголовок не должен оборачиваться в «*»")
	}
}

func TestTelegramInvalidChatID(t *testing.T) {
	bot := &fakeBot{}
	g := newTestTelegram(bot)

	err := g.Send(context.Background(), telegramChannel(domain.FormatPlain), "t", "b", []string{"не-число"})
	if err == nil {
		t.Fatalf("ожидали ошибку для некорректного chat id")
	}
}

func TestTruncatePrefersLineBreak(t *testing.T) {
	text := strings.Repeat("а", 100) + "\n" + strings.Repeat("б", 100)
	got := Truncate(text, 150)
	if len([]rune(got)) != 100 {
		t.Fatalf("ожидали обрезку по переносу строки, получили %d рун", len([]rune(got)))
	}
	if Truncate("короткий", 4096) != "короткий" {
		t.Fatalf("короткий текст не должен обрезаться")
	}
}
