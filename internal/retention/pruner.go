// Package retention periodically trims the delivery ledger.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mr1hm/go-emergency-alerts/internal/metrics"
)

type Ledger interface {
	PruneDeliveries(ctx context.Context, now time.Time, retention time.Duration) (int64, error)
}

// Pruner runs PruneDeliveries on a cron schedule. Rows are kept while any
// rule's cooldown window still needs them, whatever the retention says.
type Pruner struct {
	ledger    Ledger
	retention time.Duration
	cron      *cron.Cron
	now       func() time.Time
	timeout   time.Duration
}

func NewPruner(ledger Ledger, retention time.Duration, schedule string, loc *time.Location) (*Pruner, error) {
	if loc == nil {
		loc = time.Local
	}
	p := &Pruner{
		ledger:    ledger,
		retention: retention,
		cron:      cron.New(cron.WithLocation(loc)),
		now:       time.Now,
		timeout:   time.Minute,
	}
	if _, err := p.cron.AddFunc(schedule, func() { p.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return p, nil
}

func (p *Pruner) Start() {
	slog.Info("delivery retention started", "retention", p.retention)
	p.cron.Start()
}

// Stop halts the schedule and waits for a running prune to finish.
func (p *Pruner) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
}

func (p *Pruner) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	n, err := p.ledger.PruneDeliveries(ctx, p.now(), p.retention)
	if err != nil {
		slog.Error("delivery prune failed", "error", err)
		return 0, err
	}
	if n > 0 {
		metrics.DeliveriesPruned.Add(float64(n))
		slog.Info("pruned deliveries", "count", n, "retention", p.retention)
	}
	return n, nil
}
