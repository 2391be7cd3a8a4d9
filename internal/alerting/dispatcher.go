package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mr1hm/go-emergency-alerts/internal/channel"
	"github.com/mr1hm/go-emergency-alerts/internal/metrics"
	"github.com/mr1hm/go-emergency-alerts/internal/models"
	"github.com/mr1hm/go-emergency-alerts/internal/repository"
)

const ledgerWriteTimeout = 5 * time.Second

// pendingDelivery is a ledger row already written as pending, waiting for
// its adapter call.
type pendingDelivery struct {
	row     models.AlertDelivery
	to      string
	adapter channel.Adapter
	msg     channel.Message
}

// Dispatcher fans a composed alert out to the rule's channels, one ledger
// row per attempt.
type Dispatcher struct {
	ledger   repository.DeliveryLedger
	adapters channel.Registry
	timeout  time.Duration
	now      func() time.Time
	onFinish func(models.AlertDelivery)
}

func NewDispatcher(ledger repository.DeliveryLedger, adapters channel.Registry, timeout time.Duration, now func() time.Time) *Dispatcher {
	return &Dispatcher{
		ledger:   ledger,
		adapters: adapters,
		timeout:  timeout,
		now:      now,
	}
}

// Dispatch writes a pending row and invokes the adapter for every eligible
// method. Failures are recorded on the row and never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, rule *models.AlertRule, event *models.EmergencyEvent, title, message string, settings *models.NotificationSettings) []models.AlertDelivery {
	return d.deliver(ctx, d.reserve(ctx, rule, event, title, message, settings))
}

// reserve inserts one pending row per eligible method. Only reserved rows
// are later sent.
func (d *Dispatcher) reserve(ctx context.Context, rule *models.AlertRule, event *models.EmergencyEvent, title, message string, settings *models.NotificationSettings) []pendingDelivery {
	if settings == nil {
		settings = models.DefaultSettings(rule.UserID, "")
	}

	var pending []pendingDelivery
	for _, method := range rule.NotificationMethods {
		to, ok := destination(method, rule, settings)
		if !ok {
			slog.Debug("channel not eligible, skipping", "rule_id", rule.ID, "method", method)
			continue
		}
		adapter, ok := d.adapters.Get(method)
		if !ok {
			slog.Warn("no adapter registered for method, skipping", "rule_id", rule.ID, "method", method)
			continue
		}

		row := models.AlertDelivery{
			AlertRuleID:    rule.ID,
			UserID:         rule.UserID,
			Title:          title,
			Message:        message,
			Severity:       event.Severity,
			AlertType:      event.Type,
			SourceData:     event.SourceData,
			Location:       event.Location,
			Coordinates:    event.Coordinates,
			DeliveryMethod: method,
			DeliveryStatus: models.DeliveryPending,
			CreatedAt:      d.now(),
		}
		id, err := d.ledger.InsertDelivery(ctx, &row)
		if err != nil {
			slog.Error("failed to record pending delivery, channel skipped",
				"rule_id", rule.ID, "method", method, "error", err)
			continue
		}
		row.ID = id

		pending = append(pending, pendingDelivery{
			row:     row,
			to:      to,
			adapter: adapter,
			msg: channel.Message{
				Title:     title,
				Body:      message,
				Rule:      rule,
				Event:     event,
				Timestamp: row.CreatedAt,
			},
		})
	}
	return pending
}

// deliver runs each reserved send with its own timeout. A slow or failing
// channel does not cancel the others.
func (d *Dispatcher) deliver(ctx context.Context, pending []pendingDelivery) []models.AlertDelivery {
	out := make([]models.AlertDelivery, 0, len(pending))
	for _, p := range pending {
		err := d.send(ctx, p)

		row := p.row
		if err != nil {
			row.DeliveryStatus = models.DeliveryFailed
			row.ErrorMessage = err.Error()
			slog.Warn("alert delivery failed",
				"rule_id", row.AlertRuleID, "delivery_id", row.ID, "method", row.DeliveryMethod, "error", err)
		} else {
			delivered := d.now()
			row.DeliveryStatus = models.DeliverySent
			row.DeliveredAt = &delivered
			slog.Info("alert delivered",
				"rule_id", row.AlertRuleID, "delivery_id", row.ID, "method", row.DeliveryMethod)
		}

		// The terminal status is written even if the caller's context is gone,
		// otherwise the row would stay pending forever.
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
		if uerr := d.ledger.UpdateDeliveryStatus(writeCtx, row.ID, row.DeliveryStatus, row.DeliveredAt, row.ErrorMessage); uerr != nil {
			slog.Error("failed to record delivery outcome",
				"delivery_id", row.ID, "status", row.DeliveryStatus, "error", uerr)
		}
		cancel()

		metrics.Deliveries.WithLabelValues(string(row.DeliveryMethod), string(row.DeliveryStatus)).Inc()
		if d.onFinish != nil {
			d.onFinish(row)
		}
		out = append(out, row)
	}
	return out
}

func (d *Dispatcher) send(ctx context.Context, p pendingDelivery) (err error) {
	sendCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("adapter panic: %v", rec)
		}
	}()

	start := time.Now()
	err = p.adapter.Send(sendCtx, p.to, p.msg)
	metrics.AdapterDuration.WithLabelValues(string(p.row.DeliveryMethod)).Observe(time.Since(start).Seconds())
	return err
}

// destination resolves where a method would deliver, and whether the user's
// settings allow it at all.
func destination(method models.NotificationMethod, rule *models.AlertRule, s *models.NotificationSettings) (string, bool) {
	switch method {
	case models.MethodEmail:
		return s.Email, s.EmailEnabled && s.Email != ""
	case models.MethodSMS:
		return s.PhoneNumber, s.SMSEnabled && s.PhoneNumber != ""
	case models.MethodWebhook:
		return rule.WebhookURL, s.WebhookEnabled && rule.WebhookURL != ""
	default:
		return "", false
	}
}
