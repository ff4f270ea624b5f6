package datasource

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchDurationSeconds tracks bulk snapshot fetch latency.
	FetchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_conviction_fetch_duration_seconds",
		Help:    "Duration of bulk market snapshot fetches",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	// FetchErrorsTotal tracks failed fetches after retries.
	FetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_conviction_gamma_fetch_errors_total",
		Help: "Total number of failed Gamma API fetches",
	})

	// RequestRetriesTotal tracks retried HTTP attempts.
	RequestRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_conviction_request_retries_total",
		Help: "Total number of retried Gamma API requests",
	})

	// PagesFetchedTotal tracks pagination progress.
	PagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_conviction_pages_fetched_total",
		Help: "Total number of market pages fetched",
	})

	// MarketsFetchedTotal tracks successfully parsed snapshots.
	MarketsFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_conviction_markets_fetched_total",
		Help: "Total number of market snapshots parsed",
	})

	// ParseSkipsTotal tracks records dropped by the snapshot parser.
	ParseSkipsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_conviction_parse_skips_total",
		Help: "Total number of market records skipped as unparseable",
	})
)
