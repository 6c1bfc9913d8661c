package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"notify-broker/internal/domain"
)

func broadcastChannel(token string) domain.Channel {
	return domain.Channel{
		ID:      "c1",
		Type:    domain.ChannelBroadcast,
		Enabled: true,
		Config:  domain.BroadcastConfig{APIToken: token, FormatMode: domain.FormatPlain},
	}
}

func TestBroadcastSendChunks(t *testing.T) {
	var calls []broadcastRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("ожидали Bearer tok, получили %q", got)
		}
		var req broadcastRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("не удалось разобрать запрос: %v", err)
		}
		calls = append(calls, req)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := NewBroadcast(srv.URL, time.Second)
	g.chunkSize = 2

	recipients := []string{"r1", "r2", "r3", "r4", "r5"}
	if err := g.Send(context.Background(), broadcastChannel("tok"), "заголовок", "текст", recipients); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(calls) != 3 {
		t.Fatalf("ожидали 3 чанка, получили %d", len(calls))
	}
	if len(calls[0].To) != 2 || len(calls[2].To) != 1 {
		t.Fatalf("ожидали чанки 2/2/1, получили %d/%d/%d", len(calls[0].To), len(calls[1].To), len(calls[2].To))
	}
	if calls[0].Title != "заголовок" || calls[0].Format != "plain" {
		t.Fatalf("ожидали заголовок и формат в запросе")
	}
}

func TestBroadcastChunkFailureReportsProgress(t *testing.T) {
	var call int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call++
		if call == 2 {
			http.Error(w, "provider down", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := NewBroadcast(srv.URL, time.Second)
	g.chunkSize = 1

	err := g.Send(context.Background(), broadcastChannel("tok"), "t", "b", []string{"r1", "r2", "r3"})
	if err == nil {
		t.Fatalf("ожидали ошибку на втором чанке")
	}
	if !strings.Contains(err.Error(), "чанк 2 из 3") || !strings.Contains(err.Error(), "принято чанков: 1") {
		t.Fatalf("ожидали отчёт о чанках, получили: %v", err)
	}
	if call != 2 {
		t.Fatalf("после ошибки чанка отправка должна прекратиться, вызовов: %d", call)
	}
}

func TestBroadcastRejectsForeignConfig(t *testing.T) {
	g := NewBroadcast("http://localhost", time.Second)
	ch := domain.Channel{ID: "c1", Type: domain.ChannelBroadcast, Config: domain.TelegramConfig{BotToken: "x"}}
	if err := g.Send(context.Background(), ch, "t", "b", []string{"r1"}); err == nil {
		t.Fatalf("ожидали ошибку о чужой конфигурации")
	}
}

func TestChunkRecipients(t *testing.T) {
	var recipients []string
	for i := 0; i < 1201; i++ {
		recipients = append(recipients, fmt.Sprintf("r%d", i))
	}
	chunks := chunkRecipients(recipients, 500)
	if len(chunks) != 3 {
		t.Fatalf("ожидали 3 чанка, получили %d", len(chunks))
	}
	if len(chunks[0]) != 500 || len(chunks[1]) != 500 || len(chunks[2]) != 201 {
		t.Fatalf("ожидали чанки 500/500/201")
	}
}
