package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mr1hm/go-emergency-alerts/internal/models"
	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

// Timestamps are stored as unix milliseconds so range predicates compare
// numerically.
func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS notification_settings (
			user_id TEXT PRIMARY KEY,
			email_enabled INTEGER NOT NULL DEFAULT 1,
			email TEXT NOT NULL DEFAULT '',
			sms_enabled INTEGER NOT NULL DEFAULT 0,
			phone_number TEXT NOT NULL DEFAULT '',
			webhook_enabled INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS alert_rules (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			alert_type TEXT NOT NULL,
			conditions TEXT NOT NULL DEFAULT '[]',
			states TEXT NOT NULL DEFAULT '[]',
			cooldown_minutes INTEGER NOT NULL DEFAULT 0,
			max_alerts_per_day INTEGER NOT NULL DEFAULT 0,
			notification_methods TEXT NOT NULL DEFAULT '[]',
			webhook_url TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS alert_deliveries (
			id TEXT PRIMARY KEY,
			alert_rule_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			severity TEXT NOT NULL,
			alert_type TEXT NOT NULL,
			source_data TEXT,
			location TEXT NOT NULL DEFAULT '',
			latitude REAL,
			longitude REAL,
			delivery_method TEXT NOT NULL,
			delivery_status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			delivered_at INTEGER,
			error_message TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS seen_events (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			seen_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_alert_rules_type_active ON alert_rules(alert_type, is_active);
		CREATE INDEX IF NOT EXISTS idx_alert_deliveries_rule_created ON alert_deliveries(alert_rule_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_alert_deliveries_created ON alert_deliveries(created_at);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) MarkEventSeen(ctx context.Context, id string, eventType models.EventType) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_events (id, type, seen_at) VALUES (?, ?, ?)`,
		id, string(eventType), toMillis(time.Now()))
	if err != nil {
		return false, fmt.Errorf("error marking event seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
