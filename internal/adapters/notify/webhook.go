package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alejandrodnm/wagerbot/internal/domain"
	"github.com/alejandrodnm/wagerbot/internal/ports"
)

// Webhook publica los resultados en un canal vía Discord webhook.
type Webhook struct {
	url    string
	client *http.Client
	fmt    *Formatter
}

// NewWebhook crea el publicador para la URL dada (timeout de 10s).
func NewWebhook(url string, f *Formatter) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		fmt:    f,
	}
}

// PublishSettlement envía el resumen de la liquidación.
func (w *Webhook) PublishSettlement(ctx context.Context, res domain.SettlementResult) error {
	return w.send(ctx, w.fmt.SettlementText(res))
}

func (w *Webhook) send(ctx context.Context, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("notify.Webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify.Webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify.Webhook: send: %w", err)
	}
	defer resp.Body.Close()

	// Discord responde 204 No Content
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notify.Webhook: status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Fanout reparte la liquidación entre varios publicadores. El fallo de uno
// no impide la entrega al resto.
type Fanout []ports.ResultPublisher

// PublishSettlement implementa ports.ResultPublisher.
func (f Fanout) PublishSettlement(ctx context.Context, res domain.SettlementResult) error {
	var errs []string
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.PublishSettlement(ctx, res); err != nil {
			slog.Warn("publisher failed", "wager_id", res.WagerID, "err", err)
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.New("notify.Fanout: " + strings.Join(errs, "; "))
	}
	return nil
}
