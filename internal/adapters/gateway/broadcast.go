package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"notify-broker/internal/domain"
	"notify-broker/internal/infra/metrics"
)

// maxRecipientsPerCall — лимит провайдера на количество получателей в одном вызове.
const maxRecipientsPerCall = 500

// Broadcast отправляет сообщения через batch-API провайдера.
// Список получателей режется на чанки по maxRecipientsPerCall;
// попытка по каналу успешна, только если прошли все чанки.
type Broadcast struct {
	client    *http.Client
	baseURL   string
	chunkSize int
}

// NewBroadcast создаёт адаптер batch-API.
func NewBroadcast(baseURL string, timeout time.Duration) *Broadcast {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Broadcast{
		client:    &http.Client{Timeout: timeout},
		baseURL:   strings.TrimRight(baseURL, "/"),
		chunkSize: maxRecipientsPerCall,
	}
}

var _ domain.Gateway = (*Broadcast)(nil)

type broadcastRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Format string   `json:"format"`
	To     []string `json:"to"`
}

// Send реализует domain.Gateway.
func (g *Broadcast) Send(ctx context.Context, channel domain.Channel, title, body string, recipients []string) error {
	cfg, ok := channel.Config.(domain.BroadcastConfig)
	if !ok {
		return fmt.Errorf("канал %s: конфигурация не является BroadcastConfig", channel.ID)
	}
	if cfg.APIToken == "" {
		return fmt.Errorf("канал %s: не задан API-токен", channel.ID)
	}

	chunks := chunkRecipients(recipients, g.chunkSize)
	for i, chunk := range chunks {
		if err := g.sendChunk(ctx, cfg, title, body, chunk); err != nil {
			return fmt.Errorf("чанк %d из %d (принято чанков: %d): %w", i+1, len(chunks), i, err)
		}
	}
	return nil
}

func (g *Broadcast) sendChunk(ctx context.Context, cfg domain.BroadcastConfig, title, body string, to []string) error {
	payload, err := json.Marshal(broadcastRequest{
		Title:  title,
		Body:   body,
		Format: string(cfg.Format()),
		To:     to,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/broadcast", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIToken)

	start := time.Now()
	resp, err := g.client.Do(req)
	metrics.ObserveNetworkRequest("broadcast", "send", "broadcast_api", start, err)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("send failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}

func chunkRecipients(recipients []string, size int) [][]string {
	if size <= 0 {
		return [][]string{recipients}
	}
	var chunks [][]string
	for start := 0; start < len(recipients); start += size {
		end := start + size
		if end > len(recipients) {
			end = len(recipients)
		}
		chunks = append(chunks, recipients[start:end])
	}
	return chunks
}
