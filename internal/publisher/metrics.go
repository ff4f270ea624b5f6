package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsPublishedTotal counts events acknowledged by the broker.
	EventsPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_conviction_events_published_total",
		Help: "Total number of conviction events delivered to Kafka",
	})

	// PublishFailuresTotal counts records that exhausted delivery.
	PublishFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_conviction_publish_failures_total",
		Help: "Total number of conviction events that failed delivery",
	})
)
