// Package channel holds the transports that carry a composed alert to a
// user: email, SMS and webhook. The dispatcher only sees Adapter.
package channel

import (
	"context"
	"errors"
	"time"

	"github.com/mr1hm/go-emergency-alerts/internal/models"
)

var ErrNoDestination = errors.New("no destination")

// Message is what an adapter delivers. Rule and Event are carried for
// adapters that forward structured payloads (webhook).
type Message struct {
	Title     string
	Body      string
	Rule      *models.AlertRule
	Event     *models.EmergencyEvent
	Timestamp time.Time
}

// Adapter sends one message to one destination. A nil error means the
// transport accepted the message.
type Adapter interface {
	Method() models.NotificationMethod
	Send(ctx context.Context, to string, msg Message) error
}

// Registry maps a notification method to its adapter.
type Registry map[models.NotificationMethod]Adapter

func NewRegistry(adapters ...Adapter) Registry {
	r := make(Registry, len(adapters))
	for _, a := range adapters {
		r[a.Method()] = a
	}
	return r
}

func (r Registry) Get(m models.NotificationMethod) (Adapter, bool) {
	a, ok := r[m]
	return a, ok
}
