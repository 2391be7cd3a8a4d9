package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mr1hm/go-emergency-alerts/internal/channel"
	"github.com/mr1hm/go-emergency-alerts/internal/models"
)

// mockStore implements repository.Store in memory for testing
type mockStore struct {
	mu         sync.Mutex
	rules      map[string]models.AlertRule
	settings   map[string]*models.NotificationSettings
	deliveries []models.AlertDelivery
	nextID     int

	loadedTypes []models.EventType
	ledgerErr   error
	settingsErr error
}

func newMockStore(rules ...models.AlertRule) *mockStore {
	s := &mockStore{
		rules:    make(map[string]models.AlertRule),
		settings: make(map[string]*models.NotificationSettings),
	}
	for _, r := range rules {
		s.rules[r.ID] = r
	}
	return s
}

func (m *mockStore) LoadActiveRules(ctx context.Context, alertType models.EventType) ([]models.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadedTypes = append(m.loadedTypes, alertType)
	var out []models.AlertRule
	for _, r := range m.rules {
		if r.IsActive && r.AlertType == alertType {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) LoadRule(ctx context.Context, id string) (*models.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *mockStore) LoadSettings(ctx context.Context, userID string) (*models.NotificationSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settingsErr != nil {
		return nil, m.settingsErr
	}
	return m.settings[userID], nil
}

func (m *mockStore) LoadDeliveriesSince(ctx context.Context, ruleID string, since time.Time) ([]models.AlertDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ledgerErr != nil {
		return nil, m.ledgerErr
	}
	var out []models.AlertDelivery
	for _, d := range m.deliveries {
		if d.AlertRuleID == ruleID && !d.CreatedAt.Before(since) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockStore) LoadDeliveriesInRange(ctx context.Context, ruleID string, from, to time.Time) ([]models.AlertDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ledgerErr != nil {
		return nil, m.ledgerErr
	}
	var out []models.AlertDelivery
	for _, d := range m.deliveries {
		if d.AlertRuleID == ruleID && !d.CreatedAt.Before(from) && d.CreatedAt.Before(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockStore) InsertDelivery(ctx context.Context, d *models.AlertDelivery) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	d.ID = fmt.Sprintf("delivery_%d", m.nextID)
	m.deliveries = append(m.deliveries, *d)
	return d.ID, nil
}

func (m *mockStore) UpdateDeliveryStatus(ctx context.Context, id string, status models.DeliveryStatus, deliveredAt *time.Time, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.deliveries {
		if m.deliveries[i].ID != id {
			continue
		}
		if m.deliveries[i].DeliveryStatus != models.DeliveryPending {
			return errors.New("already final")
		}
		m.deliveries[i].DeliveryStatus = status
		m.deliveries[i].DeliveredAt = deliveredAt
		m.deliveries[i].ErrorMessage = errorMessage
		return nil
	}
	return errors.New("not found")
}

// addDelivery seeds the ledger with a finished row for ruleID at t.
func (m *mockStore) addDelivery(ruleID string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.deliveries = append(m.deliveries, models.AlertDelivery{
		ID:             fmt.Sprintf("seed_%d", m.nextID),
		AlertRuleID:    ruleID,
		DeliveryMethod: models.MethodEmail,
		DeliveryStatus: models.DeliverySent,
		CreatedAt:      t,
	})
}

func (m *mockStore) ledger() []models.AlertDelivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AlertDelivery, len(m.deliveries))
	copy(out, m.deliveries)
	return out
}

// fakeAdapter records sends and returns err for every call.
type fakeAdapter struct {
	method models.NotificationMethod
	err    error
	delay  time.Duration

	mu   sync.Mutex
	sent []string
}

func (f *fakeAdapter) Method() models.NotificationMethod { return f.method }

func (f *fakeAdapter) Send(ctx context.Context, to string, msg channel.Message) error {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.delay):
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)
	return f.err
}

func (f *fakeAdapter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func quakeRule() models.AlertRule {
	return models.AlertRule{
		ID:        "rule_1",
		UserID:    "user_1",
		Name:      "Critical quakes",
		AlertType: models.EventTypeEarthquake,
		Conditions: []models.AlertCondition{
			{Field: "severity", Operator: models.OperatorEquals, Value: "critical"},
		},
		CooldownMinutes:     60,
		MaxAlertsPerDay:     3,
		NotificationMethods: []models.NotificationMethod{models.MethodEmail},
		IsActive:            true,
	}
}

func quakeEvent(ts time.Time) *models.EmergencyEvent {
	return &models.EmergencyEvent{
		ID:          "usgs_ci123",
		Type:        models.EventTypeEarthquake,
		Title:       "M 6.1 - 10km NE of Ridgecrest, CA",
		Description: "Strong shaking reported near Ridgecrest.",
		Severity:    models.SeverityCritical,
		Location:    "10km NE of Ridgecrest, CA",
		State:       "CA",
		Coordinates: &models.Coordinates{Latitude: 35.7, Longitude: -117.5},
		Timestamp:   ts,
		SourceData:  map[string]any{"magnitude": 6.1},
	}
}
