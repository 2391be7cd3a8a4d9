package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mr1hm/go-emergency-alerts/internal/models"
)

const ruleColumns = `id, user_id, name, alert_type, conditions, states, cooldown_minutes,
	max_alerts_per_day, notification_methods, webhook_url, is_active`

func (s *SQLiteDB) LoadActiveRules(ctx context.Context, alertType models.EventType) ([]models.AlertRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM alert_rules WHERE alert_type = ? AND is_active = 1 ORDER BY id`,
		string(alertType))
	if err != nil {
		return nil, fmt.Errorf("error querying active rules: %w", err)
	}
	defer rows.Close()

	var rules []models.AlertRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

func (s *SQLiteDB) LoadRule(ctx context.Context, id string) (*models.AlertRule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ReplaceRules makes the rule table match rules exactly: listed rules are
// upserted, everything else is removed. Ledger rows are left untouched.
func (s *SQLiteDB) ReplaceRules(ctx context.Context, rules []models.AlertRule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]any, 0, len(rules))
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	if len(ids) == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM alert_rules`); err != nil {
			return fmt.Errorf("error clearing rules: %w", err)
		}
	} else {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
		if _, err := tx.ExecContext(ctx, `DELETE FROM alert_rules WHERE id NOT IN (`+placeholders+`)`, ids...); err != nil {
			return fmt.Errorf("error removing stale rules: %w", err)
		}
	}

	now := toMillis(time.Now())
	for _, r := range rules {
		conditions, err := json.Marshal(nonNil(r.Conditions))
		if err != nil {
			return fmt.Errorf("error encoding conditions for rule %s: %w", r.ID, err)
		}
		states, _ := json.Marshal(nonNil(r.States))
		methods, _ := json.Marshal(nonNil(r.NotificationMethods))

		_, err = tx.ExecContext(ctx, `
			INSERT INTO alert_rules (`+ruleColumns+`, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				user_id = excluded.user_id,
				name = excluded.name,
				alert_type = excluded.alert_type,
				conditions = excluded.conditions,
				states = excluded.states,
				cooldown_minutes = excluded.cooldown_minutes,
				max_alerts_per_day = excluded.max_alerts_per_day,
				notification_methods = excluded.notification_methods,
				webhook_url = excluded.webhook_url,
				is_active = excluded.is_active,
				updated_at = excluded.updated_at`,
			r.ID, r.UserID, r.Name, string(r.AlertType), string(conditions), string(states),
			r.CooldownMinutes, r.MaxAlertsPerDay, string(methods), r.WebhookURL,
			boolToInt(r.IsActive), now)
		if err != nil {
			return fmt.Errorf("error upserting rule %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*models.AlertRule, error) {
	var (
		r                         models.AlertRule
		alertType                 string
		conditions, states, meths string
		active                    int
	)
	err := row.Scan(&r.ID, &r.UserID, &r.Name, &alertType, &conditions, &states,
		&r.CooldownMinutes, &r.MaxAlertsPerDay, &meths, &r.WebhookURL, &active)
	if err != nil {
		return nil, err
	}
	r.AlertType = models.EventType(alertType)
	r.IsActive = active == 1

	if err := json.Unmarshal([]byte(conditions), &r.Conditions); err != nil {
		return nil, fmt.Errorf("error decoding conditions for rule %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(states), &r.States); err != nil {
		return nil, fmt.Errorf("error decoding states for rule %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(meths), &r.NotificationMethods); err != nil {
		return nil, fmt.Errorf("error decoding notification methods for rule %s: %w", r.ID, err)
	}
	return &r, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
