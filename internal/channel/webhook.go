package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mr1hm/go-emergency-alerts/internal/models"
)

type webhookPayload struct {
	Rule      *models.AlertRule      `json:"rule"`
	Event     *models.EmergencyEvent `json:"event"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
}

type WebhookAdapter struct {
	client *http.Client
}

func NewWebhookAdapter(timeout time.Duration) *WebhookAdapter {
	return &WebhookAdapter{
		client: &http.Client{Timeout: timeout},
	}
}

func (w *WebhookAdapter) Method() models.NotificationMethod { return models.MethodWebhook }

// Send POSTs the rule, event and composed text as JSON. Only a 2xx response
// counts as delivered.
func (w *WebhookAdapter) Send(ctx context.Context, url string, msg Message) error {
	if url == "" {
		return fmt.Errorf("webhook: %w", ErrNoDestination)
	}

	body, err := json.Marshal(webhookPayload{
		Rule:      msg.Rule,
		Event:     msg.Event,
		Title:     msg.Title,
		Message:   msg.Body,
		Timestamp: msg.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("webhook: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
