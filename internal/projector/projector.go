// Package projector materializes consumed conviction events into the
// archive as two documents per event: a per-market latest-state
// document that each new event overwrites, and an append-style
// per-event history document keyed by the unique event ID.
package projector

import (
	"context"
	"fmt"

	"github.com/mselser95/polymarket-conviction/pkg/types"
	"go.uber.org/zap"
)

const (
	typeMarketLatest    = "market_latest"
	typeConvictionEvent = "conviction_event"
)

// document is an event body with the archive type discriminator.
type document struct {
	Type string `json:"type"`
	types.ConvictionEvent
}

// Projector writes consumed events to the archive.
type Projector struct {
	archive Archive
	logger  *zap.Logger
}

// New creates a projector over the given archive.
func New(archive Archive, logger *zap.Logger) *Projector {
	return &Projector{
		archive: archive,
		logger:  logger,
	}
}

// MarketKey returns the latest-state document key for a market.
func MarketKey(marketID string) string {
	return "market::" + marketID
}

// EventKey returns the history document key for an event.
func EventKey(eventID string) string {
	return "event::" + eventID
}

// Project upserts both documents for the event. Failures are logged
// and swallowed so the consumer keeps committing offsets; a partial
// write self-heals when the next event for the market arrives.
func (p *Projector) Project(ctx context.Context, event *types.ConvictionEvent) {
	latest := document{Type: typeMarketLatest, ConvictionEvent: *event}
	history := document{Type: typeConvictionEvent, ConvictionEvent: *event}

	var failed bool

	err := p.archive.Upsert(ctx, MarketKey(event.MarketID), latest)
	if err != nil {
		failed = true
		ArchiveWriteFailuresTotal.Inc()
		p.logger.Error("market-latest-write-failed",
			zap.String("market-id", event.MarketID),
			zap.String("event-id", event.EventID),
			zap.Error(err))
	}

	err = p.archive.Upsert(ctx, EventKey(event.EventID), history)
	if err != nil {
		failed = true
		ArchiveWriteFailuresTotal.Inc()
		p.logger.Error("event-history-write-failed",
			zap.String("market-id", event.MarketID),
			zap.String("event-id", event.EventID),
			zap.Error(err))
	}

	if failed {
		return
	}

	EventsProjectedTotal.Inc()
	p.logger.Info("event-projected",
		zap.String("market-id", event.MarketID),
		zap.String("event-id", event.EventID),
		zap.String("direction", event.ConvictionDirection))
}

// memoryArchive is an in-process Archive for tests and dry runs.
type memoryArchive struct {
	docs map[string]any
}

// NewMemoryArchive returns an Archive that keeps documents in a map.
func NewMemoryArchive() Archive {
	return &memoryArchive{docs: make(map[string]any)}
}

func (m *memoryArchive) Upsert(_ context.Context, key string, doc any) error {
	m.docs[key] = doc
	return nil
}

func (m *memoryArchive) Close() error {
	return nil
}

// Get is a test helper; it is not part of the Archive interface.
func (m *memoryArchive) Get(key string) (any, error) {
	doc, ok := m.docs[key]
	if !ok {
		return nil, fmt.Errorf("document %s not found", key)
	}
	return doc, nil
}
