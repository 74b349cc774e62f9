// Package metrics exposes the orchestrator's Prometheus metrics. The
// outbox counters are best-effort and may be lost on crash: they are
// in-process counters, never the authoritative source of truth (the
// outbox table itself is).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the counters and histograms the bridge's workers
// update. A single Registry is shared across all Submitter workers, the
// Ingester and the Backfill pass.
type Registry struct {
	reg *prometheus.Registry

	OutboxSubmitted prometheus.Counter
	OutboxFailed    prometheus.Counter
	OutboxDead      prometheus.Counter
	OutboxRetried   prometheus.Counter
	SubmitLatency   prometheus.Histogram

	EventsIngested prometheus.Counter
	BackfillPatched prometheus.Counter
}

// NewRegistry builds a fresh Registry with all collectors registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		OutboxSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_outbox_submitted_total",
			Help: "Outbox rows successfully finalized on-chain.",
		}),
		OutboxFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_outbox_failed_total",
			Help: "Outbox submission attempts that failed and left the row retryable.",
		}),
		OutboxDead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_outbox_dead_total",
			Help: "Outbox rows dead-lettered after exhausting retries.",
		}),
		OutboxRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_outbox_retried_total",
			Help: "Outbox submission retries attempted.",
		}),
		SubmitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_outbox_submit_latency_seconds",
			Help:    "Time from claiming an outbox row to a terminal submission outcome.",
			Buckets: prometheus.DefBuckets,
		}),
		EventsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_chain_events_ingested_total",
			Help: "Chain events recorded by the replay ingester.",
		}),
		BackfillPatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_backfill_patched_total",
			Help: "Outbox rows stamped with chain ids by the backfill pass.",
		}),
	}

	reg.MustRegister(
		r.OutboxSubmitted, r.OutboxFailed, r.OutboxDead, r.OutboxRetried,
		r.SubmitLatency, r.EventsIngested, r.BackfillPatched,
	)

	return r
}

// Handler returns the /metrics HTTP handler serving Prometheus text
// format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
