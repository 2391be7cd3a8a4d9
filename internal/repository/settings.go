package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mr1hm/go-emergency-alerts/internal/models"
)

// LoadSettings returns the user's saved settings. Known users without a row
// get DefaultSettings persisted on first access; unknown users yield nil.
func (s *SQLiteDB) LoadSettings(ctx context.Context, userID string) (*models.NotificationSettings, error) {
	settings := models.NotificationSettings{UserID: userID}
	var emailOn, smsOn, webhookOn int

	err := s.db.QueryRowContext(ctx, `
		SELECT email_enabled, email, sms_enabled, phone_number, webhook_enabled
		FROM notification_settings WHERE user_id = ?`, userID).
		Scan(&emailOn, &settings.Email, &smsOn, &settings.PhoneNumber, &webhookOn)
	if err == nil {
		settings.EmailEnabled = emailOn == 1
		settings.SMSEnabled = smsOn == 1
		settings.WebhookEnabled = webhookOn == 1
		return &settings, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("error loading settings for %s: %w", userID, err)
	}

	var email string
	err = s.db.QueryRowContext(ctx, `SELECT email FROM users WHERE id = ?`, userID).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading user %s: %w", userID, err)
	}

	defaults := models.DefaultSettings(userID, email)
	if err := s.UpsertSettings(ctx, defaults); err != nil {
		return nil, err
	}
	return defaults, nil
}

func (s *SQLiteDB) UpsertSettings(ctx context.Context, n *models.NotificationSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_settings (user_id, email_enabled, email, sms_enabled, phone_number, webhook_enabled)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			email_enabled = excluded.email_enabled,
			email = excluded.email,
			sms_enabled = excluded.sms_enabled,
			phone_number = excluded.phone_number,
			webhook_enabled = excluded.webhook_enabled`,
		n.UserID, boolToInt(n.EmailEnabled), n.Email, boolToInt(n.SMSEnabled), n.PhoneNumber, boolToInt(n.WebhookEnabled))
	if err != nil {
		return fmt.Errorf("error saving settings for %s: %w", n.UserID, err)
	}
	return nil
}

func (s *SQLiteDB) UpsertUser(ctx context.Context, u models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET email = excluded.email`,
		u.ID, u.Email)
	if err != nil {
		return fmt.Errorf("error saving user %s: %w", u.ID, err)
	}
	return nil
}
