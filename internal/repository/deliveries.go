package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mr1hm/go-emergency-alerts/internal/models"
)

const deliveryColumns = `id, alert_rule_id, user_id, title, message, severity, alert_type, source_data,
	location, latitude, longitude, delivery_method, delivery_status, created_at, delivered_at, error_message`

func (s *SQLiteDB) LoadDeliveriesSince(ctx context.Context, ruleID string, since time.Time) ([]models.AlertDelivery, error) {
	return s.queryDeliveries(ctx,
		`SELECT `+deliveryColumns+` FROM alert_deliveries
		 WHERE alert_rule_id = ? AND created_at >= ? ORDER BY created_at`,
		ruleID, toMillis(since))
}

// LoadDeliveriesInRange returns rows created in [from, to).
func (s *SQLiteDB) LoadDeliveriesInRange(ctx context.Context, ruleID string, from, to time.Time) ([]models.AlertDelivery, error) {
	return s.queryDeliveries(ctx,
		`SELECT `+deliveryColumns+` FROM alert_deliveries
		 WHERE alert_rule_id = ? AND created_at >= ? AND created_at < ? ORDER BY created_at`,
		ruleID, toMillis(from), toMillis(to))
}

func (s *SQLiteDB) ListDeliveries(ctx context.Context, opts DeliveryFilter) ([]models.AlertDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM alert_deliveries WHERE 1=1`
	var args []any

	if opts.RuleID != "" {
		query += ` AND alert_rule_id = ?`
		args = append(args, opts.RuleID)
	}
	if opts.Status != nil {
		query += ` AND delivery_status = ?`
		args = append(args, string(*opts.Status))
	}
	if opts.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, toMillis(*opts.Since))
	}
	query += ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	return s.queryDeliveries(ctx, query, args...)
}

// InsertDelivery appends a ledger row. An empty ID or CreatedAt is filled in.
func (s *SQLiteDB) InsertDelivery(ctx context.Context, d *models.AlertDelivery) (string, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	if d.DeliveryStatus == "" {
		d.DeliveryStatus = models.DeliveryPending
	}

	var sourceData sql.NullString
	if d.SourceData != nil {
		b, err := json.Marshal(d.SourceData)
		if err != nil {
			return "", fmt.Errorf("error encoding source data: %w", err)
		}
		sourceData = sql.NullString{String: string(b), Valid: true}
	}
	var lat, lng sql.NullFloat64
	if d.Coordinates != nil {
		lat = sql.NullFloat64{Float64: d.Coordinates.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: d.Coordinates.Longitude, Valid: true}
	}
	var deliveredAt sql.NullInt64
	if d.DeliveredAt != nil {
		deliveredAt = sql.NullInt64{Int64: toMillis(*d.DeliveredAt), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_deliveries (`+deliveryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.AlertRuleID, d.UserID, d.Title, d.Message, string(d.Severity), string(d.AlertType),
		sourceData, d.Location, lat, lng, string(d.DeliveryMethod), string(d.DeliveryStatus),
		toMillis(d.CreatedAt), deliveredAt, d.ErrorMessage)
	if err != nil {
		return "", fmt.Errorf("error inserting delivery: %w", err)
	}
	return d.ID, nil
}

// UpdateDeliveryStatus moves a pending row to its terminal status. A row
// that already left pending is never rewritten.
func (s *SQLiteDB) UpdateDeliveryStatus(ctx context.Context, id string, status models.DeliveryStatus, deliveredAt *time.Time, errorMessage string) error {
	var delivered sql.NullInt64
	if deliveredAt != nil {
		delivered = sql.NullInt64{Int64: toMillis(*deliveredAt), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE alert_deliveries SET delivery_status = ?, delivered_at = ?, error_message = ?
		 WHERE id = ? AND delivery_status = ?`,
		string(status), delivered, errorMessage, id, string(models.DeliveryPending))
	if err != nil {
		return fmt.Errorf("error updating delivery %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alert_deliveries WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("delivery %s: %w", id, ErrNotFound)
	}
	return fmt.Errorf("delivery %s: %w", id, ErrDeliveryFinal)
}

// PruneDeliveries deletes rows older than retention, except rows whose rule
// still needs them for a cooldown window longer than the retention.
func (s *SQLiteDB) PruneDeliveries(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	cutoff := now.Add(-retention)
	retentionMinutes := int64(retention / time.Minute)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM alert_deliveries
		WHERE created_at < ?
		  AND NOT EXISTS (
			SELECT 1 FROM alert_rules r
			WHERE r.id = alert_deliveries.alert_rule_id AND r.cooldown_minutes > ?
		  )`,
		toMillis(cutoff), retentionMinutes)
	if err != nil {
		return 0, fmt.Errorf("error pruning deliveries: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteDB) queryDeliveries(ctx context.Context, query string, args ...any) ([]models.AlertDelivery, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying deliveries: %w", err)
	}
	defer rows.Close()

	var out []models.AlertDelivery
	for rows.Next() {
		var (
			d                                  models.AlertDelivery
			severity, alertType, method, state string
			sourceData                         sql.NullString
			lat, lng                           sql.NullFloat64
			createdAt                          int64
			deliveredAt                        sql.NullInt64
		)
		err := rows.Scan(&d.ID, &d.AlertRuleID, &d.UserID, &d.Title, &d.Message, &severity, &alertType,
			&sourceData, &d.Location, &lat, &lng, &method, &state, &createdAt, &deliveredAt, &d.ErrorMessage)
		if err != nil {
			return nil, fmt.Errorf("error scanning delivery: %w", err)
		}

		d.Severity = models.Severity(severity)
		d.AlertType = models.EventType(alertType)
		d.DeliveryMethod = models.NotificationMethod(method)
		d.DeliveryStatus = models.DeliveryStatus(state)
		d.CreatedAt = fromMillis(createdAt)
		if deliveredAt.Valid {
			t := fromMillis(deliveredAt.Int64)
			d.DeliveredAt = &t
		}
		if lat.Valid && lng.Valid {
			d.Coordinates = &models.Coordinates{Latitude: lat.Float64, Longitude: lng.Float64}
		}
		if sourceData.Valid {
			if err := json.Unmarshal([]byte(sourceData.String), &d.SourceData); err != nil {
				return nil, fmt.Errorf("error decoding source data for delivery %s: %w", d.ID, err)
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
