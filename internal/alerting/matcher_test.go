package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mr1hm/go-emergency-alerts/internal/metrics"
	"github.com/mr1hm/go-emergency-alerts/internal/models"
)

var pacific = time.FixedZone("PST", -8*60*60)

func newTestMatcher(store *mockStore, now time.Time) *RuleMatcher {
	clock := fixedClock(now)
	return NewRuleMatcher(NewCooldownGuard(store, clock), NewQuotaGuard(store, clock, pacific))
}

func TestDecide_InactiveOrWrongType(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, pacific)
	store := newMockStore()
	m := newTestMatcher(store, now)

	rule := quakeRule()
	rule.IsActive = false
	d, err := m.Decide(context.Background(), &rule, quakeEvent(now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Admitted || d.Reason != metrics.OutcomeInactive {
		t.Errorf("inactive rule: got %+v", d)
	}

	rule = quakeRule()
	event := quakeEvent(now)
	event.Type = models.EventTypeWildfire
	d, _ = m.Decide(context.Background(), &rule, event)
	if d.Admitted || d.Reason != metrics.OutcomeInactive {
		t.Errorf("type mismatch: got %+v", d)
	}
}

func TestDecide_Geography(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, pacific)
	m := newTestMatcher(newMockStore(), now)

	rule := quakeRule()
	rule.States = []string{"CA"}

	event := quakeEvent(now)
	event.State = "TX"
	d, _ := m.Decide(context.Background(), &rule, event)
	if d.Admitted || d.Reason != metrics.OutcomeGeography {
		t.Errorf("TX event against CA rule: got %+v", d)
	}

	event.State = "ca"
	d, _ = m.Decide(context.Background(), &rule, event)
	if !d.Admitted {
		t.Errorf("state match should be case-insensitive: got %+v", d)
	}

	event.State = ""
	d, _ = m.Decide(context.Background(), &rule, event)
	if d.Admitted {
		t.Error("event without a state should not pass a state filter")
	}

	rule.States = nil
	d, _ = m.Decide(context.Background(), &rule, event)
	if !d.Admitted {
		t.Errorf("empty state list should allow any state: got %+v", d)
	}
}

func TestDecide_Cooldown(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, pacific)
	rule := quakeRule()
	rule.CooldownMinutes = 60

	store := newMockStore()
	store.addDelivery(rule.ID, now.Add(-30*time.Minute))
	d, err := newTestMatcher(store, now).Decide(context.Background(), &rule, quakeEvent(now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Admitted || d.Reason != metrics.OutcomeCooldown {
		t.Errorf("delivery 30m ago with 60m cooldown: got %+v", d)
	}

	store = newMockStore()
	store.addDelivery(rule.ID, now.Add(-61*time.Minute))
	d, _ = newTestMatcher(store, now).Decide(context.Background(), &rule, quakeEvent(now))
	if !d.Admitted {
		t.Errorf("delivery 61m ago with 60m cooldown: got %+v", d)
	}
}

func TestDecide_CooldownCountsFailedRows(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, pacific)
	rule := quakeRule()

	store := newMockStore()
	store.addDelivery(rule.ID, now.Add(-5*time.Minute))
	store.deliveries[0].DeliveryStatus = models.DeliveryFailed

	d, _ := newTestMatcher(store, now).Decide(context.Background(), &rule, quakeEvent(now))
	if d.Reason != metrics.OutcomeCooldown {
		t.Errorf("expected failed row to hold cooldown, got %+v", d)
	}
}

func TestDecide_ZeroCooldownNeverCools(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, pacific)
	rule := quakeRule()
	rule.CooldownMinutes = 0

	store := newMockStore()
	store.addDelivery(rule.ID, now)

	d, _ := newTestMatcher(store, now).Decide(context.Background(), &rule, quakeEvent(now))
	if !d.Admitted {
		t.Errorf("zero cooldown should not suppress: got %+v", d)
	}
}

func TestDecide_QuotaResetsAtLocalMidnight(t *testing.T) {
	rule := quakeRule()
	rule.CooldownMinutes = 0
	rule.MaxAlertsPerDay = 1

	lateEvening := time.Date(2026, 3, 10, 23, 30, 0, 0, pacific)
	store := newMockStore()
	store.addDelivery(rule.ID, time.Date(2026, 3, 10, 22, 0, 0, 0, pacific))

	d, _ := newTestMatcher(store, lateEvening).Decide(context.Background(), &rule, quakeEvent(lateEvening))
	if d.Admitted || d.Reason != metrics.OutcomeQuota {
		t.Errorf("second alert on the same day: got %+v", d)
	}

	afterMidnight := time.Date(2026, 3, 11, 0, 10, 0, 0, pacific)
	d, _ = newTestMatcher(store, afterMidnight).Decide(context.Background(), &rule, quakeEvent(afterMidnight))
	if !d.Admitted {
		t.Errorf("first alert of the next day: got %+v", d)
	}
}

func TestDecide_ZeroQuotaAdmitsNothing(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, pacific)
	rule := quakeRule()
	rule.MaxAlertsPerDay = 0

	d, _ := newTestMatcher(newMockStore(), now).Decide(context.Background(), &rule, quakeEvent(now))
	if d.Admitted || d.Reason != metrics.OutcomeQuota {
		t.Errorf("got %+v", d)
	}
}

func TestDecide_Conditions(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, pacific)
	rule := quakeRule()
	event := quakeEvent(now)
	event.Severity = models.SeverityLow

	d, _ := newTestMatcher(newMockStore(), now).Decide(context.Background(), &rule, event)
	if d.Admitted || d.Reason != metrics.OutcomeConditions {
		t.Errorf("got %+v", d)
	}
}

func TestDecide_StoreErrorFailsClosed(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, pacific)
	rule := quakeRule()
	store := newMockStore()
	store.ledgerErr = errors.New("disk I/O error")
	m := newTestMatcher(store, now)

	d, err := m.Decide(context.Background(), &rule, quakeEvent(now))
	if err == nil {
		t.Fatal("expected error from ledger lookup")
	}
	if d.Admitted || d.Reason != metrics.OutcomeError {
		t.Errorf("got %+v", d)
	}
	if m.Admit(context.Background(), &rule, quakeEvent(now)) {
		t.Error("Admit should reject when the ledger is unavailable")
	}
}

func TestDecide_MalformedRule(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, pacific)
	m := newTestMatcher(newMockStore(), now)

	if _, err := m.Decide(context.Background(), nil, quakeEvent(now)); !errors.Is(err, errMalformedRule) {
		t.Errorf("nil rule: got err %v", err)
	}

	rule := quakeRule()
	rule.ID = ""
	if _, err := m.Decide(context.Background(), &rule, quakeEvent(now)); !errors.Is(err, errMalformedRule) {
		t.Errorf("empty id: got err %v", err)
	}
}

func TestDayWindow(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// 2026-03-08 is the spring-forward day in the US.
	start, end := DayWindow(time.Date(2026, 3, 8, 15, 0, 0, 0, la), la)
	if start.Hour() != 0 || start.Day() != 8 {
		t.Errorf("start = %v", start)
	}
	if got := end.Sub(start); got != 23*time.Hour {
		t.Errorf("spring-forward day length = %v, want 23h", got)
	}

	start, end = DayWindow(time.Date(2026, 11, 1, 9, 0, 0, 0, la), la)
	if got := end.Sub(start); got != 25*time.Hour {
		t.Errorf("fall-back day length = %v, want 25h", got)
	}

	start, _ = DayWindow(time.Date(2026, 3, 11, 7, 30, 0, 0, time.UTC), pacific)
	if start.Day() != 10 {
		t.Errorf("UTC morning should map to previous local day, got %v", start)
	}
}
