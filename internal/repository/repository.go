package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mr1hm/go-emergency-alerts/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDeliveryFinal is returned when a ledger row already left pending.
	ErrDeliveryFinal = errors.New("delivery already in terminal state")
)

type DeliveryFilter struct {
	RuleID string
	Status *models.DeliveryStatus
	Since  *time.Time
	Limit  int
	Offset int
}

type RuleStore interface {
	LoadActiveRules(ctx context.Context, alertType models.EventType) ([]models.AlertRule, error)
	// LoadRule returns nil, nil when no rule has the given id.
	LoadRule(ctx context.Context, id string) (*models.AlertRule, error)
}

type SettingsStore interface {
	// LoadSettings returns nil, nil when the user is unknown.
	LoadSettings(ctx context.Context, userID string) (*models.NotificationSettings, error)
}

// DeliveryLedger is the append-only record of dispatch attempts. Cooldown and
// quota decisions are derived from it and nothing else.
type DeliveryLedger interface {
	LoadDeliveriesSince(ctx context.Context, ruleID string, since time.Time) ([]models.AlertDelivery, error)
	LoadDeliveriesInRange(ctx context.Context, ruleID string, from, to time.Time) ([]models.AlertDelivery, error)
	InsertDelivery(ctx context.Context, d *models.AlertDelivery) (string, error)
	UpdateDeliveryStatus(ctx context.Context, id string, status models.DeliveryStatus, deliveredAt *time.Time, errorMessage string) error
}

// Store is everything the alert engine consumes.
type Store interface {
	RuleStore
	SettingsStore
	DeliveryLedger
}

// RuleAdmin is the write side used by the rules file sync.
type RuleAdmin interface {
	UpsertUser(ctx context.Context, u models.User) error
	UpsertSettings(ctx context.Context, s *models.NotificationSettings) error
	ReplaceRules(ctx context.Context, rules []models.AlertRule) error
}

type DeliveryReader interface {
	ListDeliveries(ctx context.Context, opts DeliveryFilter) ([]models.AlertDelivery, error)
}

// EventLog is the producer-side record of events already handed to the engine.
type EventLog interface {
	// MarkEventSeen records id and reports whether this was the first sighting.
	MarkEventSeen(ctx context.Context, id string, eventType models.EventType) (bool, error)
}
