package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsConsumedTotal counts records fetched from the topic.
	RecordsConsumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_conviction_records_consumed_total",
		Help: "Total number of Kafka records fetched from the event topic",
	})

	// DecodeFailuresTotal counts records skipped as undecodable.
	DecodeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_conviction_decode_failures_total",
		Help: "Total number of Kafka records that failed event decoding",
	})

	// FetchErrorsTotal counts per-partition fetch errors.
	FetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_conviction_kafka_fetch_errors_total",
		Help: "Total number of Kafka fetch errors",
	})
)
