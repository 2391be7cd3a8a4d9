package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mr1hm/go-emergency-alerts/internal/metrics"
	"github.com/mr1hm/go-emergency-alerts/internal/models"
	"github.com/mr1hm/go-emergency-alerts/internal/repository"
)

var errMalformedRule = errors.New("malformed rule")

// CooldownGuard suppresses a rule while any ledger row for it is younger
// than the rule's cooldown.
type CooldownGuard struct {
	ledger repository.DeliveryLedger
	now    func() time.Time
}

func NewCooldownGuard(ledger repository.DeliveryLedger, now func() time.Time) *CooldownGuard {
	return &CooldownGuard{ledger: ledger, now: now}
}

func (g *CooldownGuard) InCooldown(ctx context.Context, rule *models.AlertRule) (bool, error) {
	if rule.CooldownMinutes <= 0 {
		return false, nil
	}
	start := g.now().Add(-time.Duration(rule.CooldownMinutes) * time.Minute)
	recent, err := g.ledger.LoadDeliveriesSince(ctx, rule.ID, start)
	if err != nil {
		return false, fmt.Errorf("cooldown lookup: %w", err)
	}
	return len(recent) > 0, nil
}

// QuotaGuard caps the number of ledger rows a rule may produce within one
// local calendar day.
type QuotaGuard struct {
	ledger repository.DeliveryLedger
	now    func() time.Time
	loc    *time.Location
}

func NewQuotaGuard(ledger repository.DeliveryLedger, now func() time.Time, loc *time.Location) *QuotaGuard {
	if loc == nil {
		loc = time.Local
	}
	return &QuotaGuard{ledger: ledger, now: now, loc: loc}
}

// Exhausted reports whether today's rows already reach MaxAlertsPerDay. A
// limit of zero or less admits nothing.
func (g *QuotaGuard) Exhausted(ctx context.Context, rule *models.AlertRule) (bool, error) {
	from, to := DayWindow(g.now(), g.loc)
	today, err := g.ledger.LoadDeliveriesInRange(ctx, rule.ID, from, to)
	if err != nil {
		return false, fmt.Errorf("quota lookup: %w", err)
	}
	return len(today) >= rule.MaxAlertsPerDay, nil
}

// DayWindow returns [local midnight, next local midnight) around t. The end
// is computed with AddDate so DST days are 23 or 25 hours long.
func DayWindow(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// Decision is the outcome of one admission check. Reason is one of the
// metrics.Outcome* values.
type Decision struct {
	Admitted bool   `json:"admitted"`
	Reason   string `json:"reason,omitempty"`
}

// RuleMatcher combines the geography filter, cooldown, quota and conditions
// into a single admit/reject decision.
type RuleMatcher struct {
	cooldown *CooldownGuard
	quota    *QuotaGuard
}

func NewRuleMatcher(cooldown *CooldownGuard, quota *QuotaGuard) *RuleMatcher {
	return &RuleMatcher{cooldown: cooldown, quota: quota}
}

// Admit is Decide with errors logged and treated as rejection.
func (m *RuleMatcher) Admit(ctx context.Context, rule *models.AlertRule, event *models.EmergencyEvent) bool {
	d, err := m.Decide(ctx, rule, event)
	if err != nil {
		slog.Error("rule evaluation failed, rule will not trigger",
			"rule_id", ruleID(rule), "event_id", eventID(event), "error", err)
	}
	return d.Admitted
}

// Decide runs the admission steps in order: active and type, geography,
// cooldown, quota, conditions. Any error yields a rejected decision.
func (m *RuleMatcher) Decide(ctx context.Context, rule *models.AlertRule, event *models.EmergencyEvent) (d Decision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d = Decision{Reason: metrics.OutcomeError}
			err = fmt.Errorf("panic during rule evaluation: %v", rec)
		}
		metrics.RuleDecisions.WithLabelValues(d.Reason).Inc()
	}()

	if rule == nil || event == nil {
		return Decision{Reason: metrics.OutcomeError}, errMalformedRule
	}
	if rule.ID == "" {
		return Decision{Reason: metrics.OutcomeError}, fmt.Errorf("%w: empty id", errMalformedRule)
	}

	if !rule.IsActive || rule.AlertType != event.Type {
		return Decision{Reason: metrics.OutcomeInactive}, nil
	}

	if !stateAllowed(rule.States, event.State) {
		return Decision{Reason: metrics.OutcomeGeography}, nil
	}

	cooling, err := m.cooldown.InCooldown(ctx, rule)
	if err != nil {
		return Decision{Reason: metrics.OutcomeError}, err
	}
	if cooling {
		return Decision{Reason: metrics.OutcomeCooldown}, nil
	}

	exhausted, err := m.quota.Exhausted(ctx, rule)
	if err != nil {
		return Decision{Reason: metrics.OutcomeError}, err
	}
	if exhausted {
		return Decision{Reason: metrics.OutcomeQuota}, nil
	}

	if !EvaluateAll(rule.Conditions, event) {
		return Decision{Reason: metrics.OutcomeConditions}, nil
	}

	return Decision{Admitted: true, Reason: metrics.OutcomeAdmitted}, nil
}

func stateAllowed(states []string, state string) bool {
	if len(states) == 0 {
		return true
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return false
	}
	for _, s := range states {
		if strings.EqualFold(strings.TrimSpace(s), state) {
			return true
		}
	}
	return false
}

func ruleID(r *models.AlertRule) string {
	if r == nil {
		return ""
	}
	return r.ID
}

func eventID(e *models.EmergencyEvent) string {
	if e == nil {
		return ""
	}
	return e.ID
}
