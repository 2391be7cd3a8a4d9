package channel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mr1hm/go-emergency-alerts/internal/models"
)

type SMSConfig struct {
	GatewayURL string
	Token      string
	From       string
}

// SMSAdapter posts a form-encoded message to an HTTP SMS gateway.
type SMSAdapter struct {
	cfg    SMSConfig
	client *http.Client
}

func NewSMSAdapter(cfg SMSConfig, timeout time.Duration) *SMSAdapter {
	return &SMSAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *SMSAdapter) Method() models.NotificationMethod { return models.MethodSMS }

// Send transmits the title and body as a single text. Length limits are the
// gateway's business.
func (s *SMSAdapter) Send(ctx context.Context, to string, msg Message) error {
	if to == "" {
		return fmt.Errorf("sms: %w", ErrNoDestination)
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.cfg.From)
	form.Set("Body", msg.Title+"\n\n"+msg.Body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GatewayURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("sms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms gateway status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
