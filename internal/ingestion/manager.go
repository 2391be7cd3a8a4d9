package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mr1hm/go-emergency-alerts/internal/alerting"
	"github.com/mr1hm/go-emergency-alerts/internal/config"
	"github.com/mr1hm/go-emergency-alerts/internal/metrics"
	"github.com/mr1hm/go-emergency-alerts/internal/models"
	"github.com/mr1hm/go-emergency-alerts/internal/repository"
	"github.com/mr1hm/go-emergency-alerts/internal/worker"
)

const (
	sourceUSGS  = "usgs"
	sourceGDACS = "gdacs"
	sourceNWS   = "nws"
)

// EventProcessor is what the pollers feed. *alerting.Engine satisfies it.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, event *models.EmergencyEvent) (alerting.Result, error)
}

// Manager polls the configured feeds and hands every new event to the
// processor through a worker pool. Feeds repeat items across polls, so an
// event id is only processed the first time it is seen.
type Manager struct {
	cfg       *config.Config
	seen      repository.EventLog
	processor EventProcessor
	client    *http.Client
	pool      *worker.Pool[*models.EmergencyEvent]
	wg        sync.WaitGroup
}

func NewManager(cfg *config.Config, seen repository.EventLog, processor EventProcessor) *Manager {
	m := &Manager{
		cfg:       cfg,
		seen:      seen,
		processor: processor,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	m.pool = worker.NewPool("ingestion", cfg.Worker.Count, cfg.Worker.BufferSize, m.process)
	return m
}

func (m *Manager) process(ctx context.Context, event *models.EmergencyEvent) error {
	if m.seen != nil {
		first, err := m.seen.MarkEventSeen(ctx, event.ID, event.Type)
		if err != nil {
			return fmt.Errorf("error marking event %s seen: %w", event.ID, err)
		}
		if !first {
			return nil
		}
	}

	// The event is now marked seen, so it must be dispatched even if the pool
	// is shutting down.
	res, err := m.processor.ProcessEvent(context.WithoutCancel(ctx), event)
	if err != nil {
		return fmt.Errorf("error processing event %s: %w", event.ID, err)
	}

	slog.Info("processed event",
		"event_id", event.ID, "type", event.Type, "severity", event.Severity,
		"admitted", res.Admitted, "deliveries", len(res.Deliveries))
	return nil
}

func (m *Manager) Start(ctx context.Context) {
	m.pool.Start(ctx)

	if m.cfg.Sources.USGSEnabled {
		m.wg.Add(1)
		go m.runPoller(ctx, sourceUSGS, m.cfg.Sources.USGSURL, m.cfg.Sources.USGSPollInterval)
	}

	if m.cfg.Sources.GDACSEnabled {
		m.wg.Add(1)
		go m.runPoller(ctx, sourceGDACS, m.cfg.Sources.GDACSURL, m.cfg.Sources.GDACSPollInterval)
	}

	if m.cfg.Sources.NWSEnabled {
		m.wg.Add(1)
		go m.runPoller(ctx, sourceNWS, m.cfg.Sources.NWSURL, m.cfg.Sources.NWSPollInterval)
	}
}

// Submit queues an event for processing, blocking while the queue is full.
func (m *Manager) Submit(ctx context.Context, event *models.EmergencyEvent) error {
	return m.pool.Submit(ctx, event)
}

func (m *Manager) runPoller(ctx context.Context, source, url string, interval time.Duration) {
	defer m.wg.Done()
	slog.Info("starting poller", "source", source, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.poll(ctx, source, url)

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller shutting down", "source", source)
			return
		case <-ticker.C:
			m.poll(ctx, source, url)
		}
	}
}

func (m *Manager) poll(ctx context.Context, source, url string) {
	slog.Debug("polling", "source", source)

	events, err := m.fetch(ctx, source, url)
	if err != nil {
		metrics.PollErrors.WithLabelValues(source).Inc()
		slog.Error("poll failed", "source", source, "error", err)
		return
	}

	for _, e := range events {
		if err := m.pool.Submit(ctx, e); err != nil {
			return
		}
	}

	slog.Debug("poll complete", "source", source, "count", len(events))
}

func (m *Manager) fetch(ctx context.Context, source, url string) ([]*models.EmergencyEvent, error) {
	body, err := m.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	switch source {
	case sourceUSGS:
		return parseUSGS(body)
	case sourceGDACS:
		return parseGDACS(body)
	case sourceNWS:
		return parseNWS(body)
	default:
		return nil, fmt.Errorf("unknown source %q", source)
	}
}

func (m *Manager) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	// api.weather.gov rejects requests without a User-Agent.
	if ua := m.cfg.Sources.UserAgent; ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error doing request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}
	return resp.Body, nil
}

func (m *Manager) Stop() {
	m.wg.Wait()
	m.pool.Stop()
	m.client.CloseIdleConnections()
	slog.Info("ingestion manager stopped")
}
