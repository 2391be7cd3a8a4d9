package ingestion

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mr1hm/go-emergency-alerts/internal/alerting"
	"github.com/mr1hm/go-emergency-alerts/internal/config"
	"github.com/mr1hm/go-emergency-alerts/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockEventLog implements repository.EventLog for testing
type mockEventLog struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMockEventLog() *mockEventLog {
	return &mockEventLog{seen: make(map[string]bool)}
}

func (m *mockEventLog) MarkEventSeen(ctx context.Context, id string, eventType models.EventType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[id] {
		return false, nil
	}
	m.seen[id] = true
	return true, nil
}

// mockProcessor records every event handed to the engine
type mockProcessor struct {
	mu      sync.Mutex
	events  []*models.EmergencyEvent
	ctxErrs []error
}

func (m *mockProcessor) ProcessEvent(ctx context.Context, event *models.EmergencyEvent) (alerting.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	return alerting.Result{}, nil
}

func (m *mockProcessor) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockProcessor) byID(id string) *models.EmergencyEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Worker: config.WorkerConfig{
			Count:      2,
			BufferSize: 10,
		},
		Sources: config.SourcesConfig{
			USGSPollInterval:  time.Minute,
			GDACSPollInterval: time.Minute,
			NWSPollInterval:   time.Minute,
			UserAgent:         "test-agent",
		},
	}
}

func TestManager_StartStop(t *testing.T) {
	mgr := NewManager(testConfig(), newMockEventLog(), &mockProcessor{})

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	time.Sleep(50 * time.Millisecond)

	cancel()
	mgr.Stop()
}

func TestManager_SkipsSeenEvents(t *testing.T) {
	proc := &mockProcessor{}
	mgr := NewManager(testConfig(), newMockEventLog(), proc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)

	for i := 0; i < 3; i++ {
		mgr.Submit(ctx, &models.EmergencyEvent{ID: "usgs_same", Type: models.EventTypeEarthquake})
	}
	mgr.Submit(ctx, &models.EmergencyEvent{ID: "usgs_other", Type: models.EventTypeEarthquake})
	mgr.Stop()

	if proc.count() != 2 {
		t.Errorf("expected 2 distinct events processed, got %d", proc.count())
	}
}

func TestManager_ConcurrentSubmit(t *testing.T) {
	cfg := testConfig()
	cfg.Worker.Count = 4
	cfg.Worker.BufferSize = 100
	proc := &mockProcessor{}
	mgr := NewManager(cfg, newMockEventLog(), proc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)

	var wg sync.WaitGroup
	numGoroutines := 10
	numPerGoroutine := 50

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(goroutineID int) {
			defer wg.Done()
			for j := 0; j < numPerGoroutine; j++ {
				mgr.Submit(ctx, &models.EmergencyEvent{
					ID:        fmt.Sprintf("test_%d_%d", goroutineID, j),
					Type:      models.EventTypeEarthquake,
					Timestamp: time.Now(),
				})
			}
		}(i)
	}

	wg.Wait()
	mgr.Stop()

	expected := numGoroutines * numPerGoroutine
	if actual := proc.count(); actual != expected {
		t.Errorf("expected %d events processed, got %d", expected, actual)
	}
}

func TestManager_GracefulShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Worker.BufferSize = 100
	mgr := NewManager(cfg, nil, &mockProcessor{})

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	for i := 0; i < 50; i++ {
		mgr.Submit(ctx, &models.EmergencyEvent{
			ID:   fmt.Sprintf("shutdown_test_%d", i),
			Type: models.EventTypeWeather,
		})
	}

	cancel()

	done := make(chan struct{})
	go func() {
		mgr.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("manager.Stop() timed out - possible goroutine leak")
	}
}

func TestManager_PollsAllSources(t *testing.T) {
	var (
		mu         sync.Mutex
		userAgents []string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/usgs", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		userAgents = append(userAgents, r.Header.Get("User-Agent"))
		mu.Unlock()
		w.Write([]byte(usgsFixture))
	})
	mux.HandleFunc("/gdacs", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(gdacsFixture))
	})
	mux.HandleFunc("/nws", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(nwsFixture))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig()
	cfg.Sources.USGSEnabled = true
	cfg.Sources.USGSURL = srv.URL + "/usgs"
	cfg.Sources.GDACSEnabled = true
	cfg.Sources.GDACSURL = srv.URL + "/gdacs"
	cfg.Sources.NWSEnabled = true
	cfg.Sources.NWSURL = srv.URL + "/nws"

	proc := &mockProcessor{}
	mgr := NewManager(cfg, newMockEventLog(), proc)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for proc.count() < 5 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	mgr.Stop()

	if proc.count() != 5 {
		t.Fatalf("expected 5 events from three feeds, got %d", proc.count())
	}
	for _, id := range []string{"usgs_ci40000001", "gdacs_WF_1001", "gdacs_TC_1002", "nws_urn:oid:2.49.0.1.840.0.abc"} {
		if proc.byID(id) == nil {
			t.Errorf("missing event %s", id)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(userAgents) == 0 || userAgents[0] != "test-agent" {
		t.Errorf("User-Agent not sent: %v", userAgents)
	}
}

func TestManager_PollErrorDoesNotSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig()
	proc := &mockProcessor{}
	mgr := NewManager(cfg, nil, proc)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)
	mgr.poll(ctx, sourceUSGS, srv.URL)
	cancel()
	mgr.Stop()

	if proc.count() != 0 {
		t.Errorf("expected no events after failed poll, got %d", proc.count())
	}
}

func TestManager_ProcessAfterShutdownStillDispatches(t *testing.T) {
	proc := &mockProcessor{}
	seen := newMockEventLog()
	mgr := NewManager(testConfig(), seen, proc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	event := &models.EmergencyEvent{ID: "usgs_ci1", Type: models.EventTypeEarthquake}
	if err := mgr.process(ctx, event); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if proc.count() != 1 {
		t.Fatalf("expected event to reach the engine, got %d calls", proc.count())
	}
	if proc.ctxErrs[0] != nil {
		t.Errorf("engine saw cancelled context: %v", proc.ctxErrs[0])
	}
}
