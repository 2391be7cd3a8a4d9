package channel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mr1hm/go-emergency-alerts/internal/models"
)

// LogAdapter writes the message to the structured log instead of sending
// it. Used for methods whose transport is not configured.
type LogAdapter struct {
	method models.NotificationMethod
}

func NewLogAdapter(method models.NotificationMethod) *LogAdapter {
	return &LogAdapter{method: method}
}

func (l *LogAdapter) Method() models.NotificationMethod { return l.method }

func (l *LogAdapter) Send(ctx context.Context, to string, msg Message) error {
	if to == "" {
		return fmt.Errorf("%s: %w", l.method, ErrNoDestination)
	}
	slog.Info("alert delivered to log", "method", l.method, "to", to, "title", msg.Title, "body", msg.Body)
	return nil
}
