package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mr1hm/go-emergency-alerts/internal/models"
	"github.com/mr1hm/go-emergency-alerts/internal/repository"
)

type settingsEntry struct {
	Settings  *models.NotificationSettings `json:"settings"`
	FetchedAt time.Time                    `json:"fetchedAt"`
}

// Store wraps a repository.Store and serves LoadSettings through the cache.
// An entry is fresh for ttl; after that it is refetched, and kept around for
// staleTTL more so it can be served while the database is failing.
type Store struct {
	repository.Store
	backend  Backend
	ttl      time.Duration
	staleTTL time.Duration
	now      func() time.Time
}

func NewStore(store repository.Store, backend Backend, ttl, staleTTL time.Duration) *Store {
	return &Store{
		Store:    store,
		backend:  backend,
		ttl:      ttl,
		staleTTL: staleTTL,
		now:      time.Now,
	}
}

func settingsKey(userID string) string {
	return "settings:" + userID
}

func (s *Store) LoadSettings(ctx context.Context, userID string) (*models.NotificationSettings, error) {
	var cached settingsEntry
	err := s.backend.Get(ctx, settingsKey(userID), &cached)
	hit := err == nil
	if err != nil && !errors.Is(err, ErrMiss) {
		slog.Warn("settings cache read failed", "user_id", userID, "error", err)
	}
	if hit && s.now().Sub(cached.FetchedAt) < s.ttl {
		return cached.Settings, nil
	}

	fresh, err := s.Store.LoadSettings(ctx, userID)
	if err != nil {
		if hit {
			slog.Warn("serving stale notification settings", "user_id", userID,
				"age", s.now().Sub(cached.FetchedAt), "error", err)
			return cached.Settings, nil
		}
		return nil, err
	}

	entry := settingsEntry{Settings: fresh, FetchedAt: s.now()}
	if err := s.backend.Set(ctx, settingsKey(userID), entry, s.ttl+s.staleTTL); err != nil {
		slog.Warn("settings cache write failed", "user_id", userID, "error", err)
	}
	return fresh, nil
}

// InvalidateSettings drops the cached entry so the next load hits the store.
func (s *Store) InvalidateSettings(ctx context.Context, userID string) error {
	return s.backend.Delete(ctx, settingsKey(userID))
}
