package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mr1hm/go-emergency-alerts/internal/channel"
	"github.com/mr1hm/go-emergency-alerts/internal/metrics"
	"github.com/mr1hm/go-emergency-alerts/internal/models"
	"github.com/mr1hm/go-emergency-alerts/internal/repository"
)

var (
	ErrRuleNotFound = errors.New("alert rule not found")
	ErrInvalidEvent = errors.New("invalid event")
)

type Options struct {
	// Location defines the calendar day for quotas and the time zone used in
	// composed messages. Defaults to time.Local.
	Location *time.Location
	// AdapterTimeout bounds each channel adapter call. Zero means no bound.
	AdapterTimeout time.Duration
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
	// OnDelivery is called with every row after its terminal status is set.
	OnDelivery func(models.AlertDelivery)
}

// Result summarizes one ProcessEvent call.
type Result struct {
	Candidates int                    `json:"candidates"`
	Admitted   int                    `json:"admitted"`
	Deliveries []models.AlertDelivery `json:"deliveries"`
}

// Engine matches events against stored rules and dispatches alerts.
//
// Admission and the insert of the resulting pending ledger rows happen under
// a per-rule lock, so concurrent events cannot both pass the same cooldown or
// quota check. Adapter calls run after the lock is released.
type Engine struct {
	store      repository.Store
	matcher    *RuleMatcher
	composer   *Composer
	dispatcher *Dispatcher
	locks      *keyLock
}

func NewEngine(store repository.Store, adapters channel.Registry, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	dispatcher := NewDispatcher(store, adapters, opts.AdapterTimeout, opts.Now)
	dispatcher.onFinish = opts.OnDelivery

	return &Engine{
		store: store,
		matcher: NewRuleMatcher(
			NewCooldownGuard(store, opts.Now),
			NewQuotaGuard(store, opts.Now, opts.Location),
		),
		composer:   NewComposer(opts.Location),
		dispatcher: dispatcher,
		locks:      newKeyLock(),
	}
}

// ProcessEvent runs every active rule of the event's type. Rule and channel
// failures are logged and recorded in the ledger; only a malformed event is
// returned as an error.
func (e *Engine) ProcessEvent(ctx context.Context, event *models.EmergencyEvent) (Result, error) {
	var res Result
	if event == nil || event.Type == "" {
		return res, ErrInvalidEvent
	}
	metrics.EventsProcessed.WithLabelValues(string(event.Type)).Inc()

	rules, err := e.store.LoadActiveRules(ctx, event.Type)
	if err != nil {
		slog.Error("failed to load candidate rules", "event_id", event.ID, "type", event.Type, "error", err)
		return res, nil
	}
	res.Candidates = len(rules)

	for i := range rules {
		rule := &rules[i]
		pending, admitted := e.admitAndReserve(ctx, rule, event)
		if !admitted {
			continue
		}
		res.Admitted++
		res.Deliveries = append(res.Deliveries, e.dispatcher.deliver(ctx, pending)...)
	}

	slog.Debug("event processed",
		"event_id", event.ID, "type", event.Type,
		"candidates", res.Candidates, "admitted", res.Admitted, "deliveries", len(res.Deliveries))
	return res, nil
}

func (e *Engine) admitAndReserve(ctx context.Context, rule *models.AlertRule, event *models.EmergencyEvent) ([]pendingDelivery, bool) {
	unlock := e.locks.Lock(rule.ID)
	defer unlock()

	if !e.matcher.Admit(ctx, rule, event) {
		return nil, false
	}

	settings, err := e.store.LoadSettings(ctx, rule.UserID)
	if err != nil {
		slog.Error("failed to load notification settings, rule skipped",
			"rule_id", rule.ID, "user_id", rule.UserID, "error", err)
		return nil, false
	}
	if settings == nil {
		slog.Warn("no notification settings for user, using defaults",
			"rule_id", rule.ID, "user_id", rule.UserID)
	}

	title, message := e.composer.Compose(rule, event)
	slog.Info("alert rule triggered", "rule_id", rule.ID, "rule", rule.Name, "event_id", event.ID)
	return e.dispatcher.reserve(ctx, rule, event, title, message, settings), true
}

// TestAlert reports whether ruleID would trigger for event, without
// dispatching anything. Following it with ProcessEvent for the same event
// does consume cooldown and quota; that is the caller's call to make.
func (e *Engine) TestAlert(ctx context.Context, ruleID string, event *models.EmergencyEvent) (bool, error) {
	d, err := e.DryRun(ctx, ruleID, event)
	if err != nil {
		return false, err
	}
	return d.Admitted, nil
}

// DryRun is TestAlert with the rejection reason.
func (e *Engine) DryRun(ctx context.Context, ruleID string, event *models.EmergencyEvent) (Decision, error) {
	if event == nil {
		return Decision{}, ErrInvalidEvent
	}
	rule, err := e.store.LoadRule(ctx, ruleID)
	if err != nil {
		return Decision{}, fmt.Errorf("load rule %s: %w", ruleID, err)
	}
	if rule == nil {
		return Decision{}, fmt.Errorf("%w: %s", ErrRuleNotFound, ruleID)
	}
	return e.matcher.Decide(ctx, rule, event)
}
