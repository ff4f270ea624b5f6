package projector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsProjectedTotal counts events fully written to the archive.
	EventsProjectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_conviction_events_projected_total",
		Help: "Total number of conviction events projected to the archive",
	})

	// ArchiveWriteFailuresTotal counts failed document upserts.
	ArchiveWriteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_conviction_archive_write_failures_total",
		Help: "Total number of archive document writes that failed",
	})
)
