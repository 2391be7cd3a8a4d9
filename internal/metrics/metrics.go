// Package metrics exposes Prometheus instruments for the alert pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alert_engine",
		Name:      "events_processed_total",
		Help:      "Events passed to ProcessEvent, by event type",
	}, []string{"type"})

	RuleDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alert_engine",
		Name:      "rule_decisions_total",
		Help:      "Rule admission outcomes by reason",
	}, []string{"outcome"})

	Deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alert_engine",
		Name:      "deliveries_total",
		Help:      "Finished ledger rows by method and status",
	}, []string{"method", "status"})

	AdapterDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "alert_engine",
		Name:      "adapter_duration_seconds",
		Help:      "Time spent inside channel adapters",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	PollErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alert_engine",
		Name:      "source_poll_errors_total",
		Help:      "Failed polls per event source",
	}, []string{"source"})

	DeliveriesPruned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "alert_engine",
		Name:      "deliveries_pruned_total",
		Help:      "Ledger rows removed by retention",
	})

	StreamDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "alert_engine",
		Name:      "stream_dropped_total",
		Help:      "Deliveries not sent to a live subscriber because its buffer was full",
	})
)

// Rule decision outcomes.
const (
	OutcomeAdmitted   = "admitted"
	OutcomeInactive   = "inactive"
	OutcomeGeography  = "geography"
	OutcomeCooldown   = "cooldown"
	OutcomeQuota      = "quota"
	OutcomeConditions = "conditions"
	OutcomeError      = "error"
)

func init() {
	prometheus.MustRegister(EventsProcessed, RuleDecisions, Deliveries, AdapterDuration, PollErrors, DeliveriesPruned, StreamDropped)
}
