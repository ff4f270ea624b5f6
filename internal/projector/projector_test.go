package projector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mselser95/polymarket-conviction/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEvent(eventID string, yesPrice float64) *types.ConvictionEvent {
	prev := 0.45
	return &types.ConvictionEvent{
		EventID:             eventID,
		Timestamp:           time.Now().UTC(),
		MarketID:            "0xmarket",
		Question:            "Will X happen?",
		YesPrice:            yesPrice,
		NoPrice:             1 - yesPrice,
		Source:              types.EventSource,
		ConvictionDirection: types.DirectionYes,
		ConvictionMagnitude: 0.15,
		PreviousYesPrice:    &prev,
	}
}

func TestProjectWritesBothDocuments(t *testing.T) {
	archive := NewMemoryArchive().(*memoryArchive)
	projector := New(archive, zap.NewNop())

	event := testEvent("event-1", 0.60)
	projector.Project(context.Background(), event)

	latest, err := archive.Get(MarketKey("0xmarket"))
	require.NoError(t, err)
	latestDoc := latest.(document)
	assert.Equal(t, "market_latest", latestDoc.Type)
	assert.Equal(t, 0.60, latestDoc.YesPrice)

	history, err := archive.Get(EventKey("event-1"))
	require.NoError(t, err)
	historyDoc := history.(document)
	assert.Equal(t, "conviction_event", historyDoc.Type)
	assert.Equal(t, "event-1", historyDoc.EventID)
}

func TestProjectLatestOverwrites(t *testing.T) {
	archive := NewMemoryArchive().(*memoryArchive)
	projector := New(archive, zap.NewNop())

	projector.Project(context.Background(), testEvent("event-1", 0.60))
	projector.Project(context.Background(), testEvent("event-2", 0.75))

	latest, err := archive.Get(MarketKey("0xmarket"))
	require.NoError(t, err)
	assert.Equal(t, 0.75, latest.(document).YesPrice)
	assert.Equal(t, "event-2", latest.(document).EventID)

	// Both history documents survive.
	_, err = archive.Get(EventKey("event-1"))
	require.NoError(t, err)
	_, err = archive.Get(EventKey("event-2"))
	require.NoError(t, err)
}

func TestProjectRedeliveryIsIdempotent(t *testing.T) {
	archive := NewMemoryArchive().(*memoryArchive)
	projector := New(archive, zap.NewNop())

	event := testEvent("event-1", 0.60)
	projector.Project(context.Background(), event)
	projector.Project(context.Background(), event)

	assert.Len(t, archive.docs, 2)
}

type failingArchive struct {
	failKey string
	wrote   []string
}

func (f *failingArchive) Upsert(_ context.Context, key string, _ any) error {
	if key == f.failKey {
		return errors.New("write failed")
	}
	f.wrote = append(f.wrote, key)
	return nil
}

func (f *failingArchive) Close() error { return nil }

func TestProjectPartialFailureDoesNotPanic(t *testing.T) {
	archive := &failingArchive{failKey: MarketKey("0xmarket")}
	projector := New(archive, zap.NewNop())

	// The history write still happens after the latest write fails.
	projector.Project(context.Background(), testEvent("event-1", 0.60))
	assert.Equal(t, []string{EventKey("event-1")}, archive.wrote)
}
