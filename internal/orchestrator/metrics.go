package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CycleDurationSeconds tracks full poll-cycle latency.
	CycleDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_conviction_cycle_duration_seconds",
		Help:    "Duration of producer poll cycles",
		Buckets: prometheus.DefBuckets,
	})

	// CycleErrorsTotal counts cycles degraded by store, fetch or
	// evaluation failures.
	CycleErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_conviction_cycle_errors_total",
		Help: "Total number of poll-cycle errors",
	})

	// ConvictionChangesTotal counts threshold crossings detected.
	ConvictionChangesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_conviction_changes_total",
		Help: "Total number of conviction changes detected",
	})

	// ActiveSubscriptions reports the subscription count each cycle.
	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_conviction_active_subscriptions",
		Help: "Number of active subscriptions observed in the last cycle",
	})
)
