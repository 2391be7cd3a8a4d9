package rules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mr1hm/go-emergency-alerts/internal/models"
	"github.com/mr1hm/go-emergency-alerts/internal/repository"
)

// Invalidator drops cached notification settings after they change.
type Invalidator interface {
	InvalidateSettings(ctx context.Context, userID string) error
}

// Sync writes users and their settings, then replaces the rule table with the
// rules in f. inv may be nil when settings are not cached.
func Sync(ctx context.Context, admin repository.RuleAdmin, f *File, inv Invalidator) error {
	for _, u := range f.Users {
		if err := admin.UpsertUser(ctx, models.User{ID: u.ID, Email: u.Email}); err != nil {
			return fmt.Errorf("error saving user %s: %w", u.ID, err)
		}
		if err := admin.UpsertSettings(ctx, u.NotificationSettings()); err != nil {
			return fmt.Errorf("error saving settings for user %s: %w", u.ID, err)
		}
		if inv != nil {
			if err := inv.InvalidateSettings(ctx, u.ID); err != nil {
				slog.Warn("failed to invalidate cached settings", "user_id", u.ID, "error", err)
			}
		}
	}

	rules := f.AlertRules()
	if err := admin.ReplaceRules(ctx, rules); err != nil {
		return fmt.Errorf("error replacing rules: %w", err)
	}

	slog.Info("rules synced", "users", len(f.Users), "rules", len(rules))
	return nil
}
