// Package orchestrator drives the producer poll loop: load
// subscriptions, bulk-fetch snapshots, evaluate conviction per market
// and publish the resulting events.
package orchestrator

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mselser95/polymarket-conviction/internal/conviction"
	"github.com/mselser95/polymarket-conviction/pkg/types"
	"go.uber.org/zap"
)

// SubscriptionLister provides the set of markets to track.
type SubscriptionLister interface {
	ListActive(ctx context.Context) ([]*types.Subscription, error)
}

// SnapshotFetcher provides current market snapshots, in bulk and by
// slug for markets the bulk fetch missed.
type SnapshotFetcher interface {
	FetchAllActive(ctx context.Context) (map[string]*types.MarketSnapshot, error)
	FetchBySlug(ctx context.Context, slug string) (*types.MarketSnapshot, error)
}

// EventPublisher hands conviction events to the log.
type EventPublisher interface {
	Publish(ctx context.Context, event *types.ConvictionEvent) error
}

// Config holds the orchestrator dependencies and tuning.
type Config struct {
	Subscriptions SubscriptionLister
	Snapshots     SnapshotFetcher
	Publisher     EventPublisher
	PollInterval  time.Duration
	Logger        *zap.Logger
}

// Orchestrator owns the per-market conviction state map. The map is
// only touched between ticks of the single poll loop, so it needs no
// locking; fan-out goroutines each operate on a distinct market's state.
type Orchestrator struct {
	subscriptions SubscriptionLister
	snapshots     SnapshotFetcher
	publisher     EventPublisher
	pollInterval  time.Duration
	logger        *zap.Logger

	states map[string]*conviction.State
}

// New creates an orchestrator with an empty state map.
func New(cfg *Config) *Orchestrator {
	return &Orchestrator{
		subscriptions: cfg.Subscriptions,
		snapshots:     cfg.Snapshots,
		publisher:     cfg.Publisher,
		pollInterval:  cfg.PollInterval,
		logger:        cfg.Logger,
		states:        make(map[string]*conviction.State),
	}
}

// Run executes poll cycles until the context is cancelled. Cancellation
// is observed between cycles; an in-flight cycle always completes.
func (o *Orchestrator) Run(ctx context.Context) {
	o.logger.Info("orchestrator-started",
		zap.Duration("poll-interval", o.pollInterval))

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	o.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator-stopped")
			return
		case <-ticker.C:
			o.runCycle(ctx)
		}
	}
}

// runCycle performs one load-fetch-join-evaluate-publish pass. Store
// and fetch failures degrade the cycle to a no-op instead of crashing
// the loop.
func (o *Orchestrator) runCycle(ctx context.Context) {
	start := time.Now()
	defer func() {
		CycleDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	subs, err := o.subscriptions.ListActive(ctx)
	if err != nil {
		CycleErrorsTotal.Inc()
		o.logger.Error("subscription-load-failed", zap.Error(err))
		return
	}

	ActiveSubscriptions.Set(float64(len(subs)))

	if len(subs) == 0 {
		o.logger.Debug("no-active-subscriptions")
		return
	}

	snapshots, err := o.snapshots.FetchAllActive(ctx)
	if err != nil {
		CycleErrorsTotal.Inc()
		o.logger.Error("snapshot-fetch-failed", zap.Error(err))
		return
	}

	type pair struct {
		sub      *types.Subscription
		snapshot *types.MarketSnapshot
		state    *conviction.State
	}

	pairs := make([]pair, 0, len(subs))
	for _, sub := range subs {
		snapshot, ok := snapshots[sub.MarketID]
		if !ok {
			snapshot = o.fetchBySlugFallback(ctx, sub)
			if snapshot == nil {
				o.logger.Debug("no-snapshot-for-subscription",
					zap.String("market-id", sub.MarketID))
				continue
			}
		}

		state, ok := o.states[sub.MarketID]
		if !ok {
			state = &conviction.State{}
			o.states[sub.MarketID] = state
		}

		pairs = append(pairs, pair{sub: sub, snapshot: snapshot, state: state})
	}

	var wg sync.WaitGroup
	for _, p := range pairs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.evaluate(ctx, p.sub, p.snapshot, p.state)
		}()
	}
	wg.Wait()

	o.logger.Debug("poll-cycle-complete",
		zap.Int("subscriptions", len(subs)),
		zap.Int("matched", len(pairs)),
		zap.Duration("elapsed", time.Since(start)))
}

// fetchBySlugFallback resolves a subscription the bulk fetch missed,
// typically a market past the pagination cap. The data source caches
// slug lookups for one poll interval, so at most one extra API call is
// made per market per cycle. Returns nil when the subscription has no
// slug or the lookup cannot produce a matching snapshot.
func (o *Orchestrator) fetchBySlugFallback(ctx context.Context, sub *types.Subscription) *types.MarketSnapshot {
	if sub.Slug == "" {
		return nil
	}

	snapshot, err := o.snapshots.FetchBySlug(ctx, sub.Slug)
	if err != nil {
		o.logger.Warn("slug-fallback-fetch-failed",
			zap.String("market-id", sub.MarketID),
			zap.String("slug", sub.Slug),
			zap.Error(err))
		return nil
	}

	if snapshot == nil {
		return nil
	}

	if snapshot.MarketID != sub.MarketID {
		o.logger.Warn("slug-fallback-market-mismatch",
			zap.String("market-id", sub.MarketID),
			zap.String("slug", sub.Slug),
			zap.String("resolved-market-id", snapshot.MarketID))
		return nil
	}

	return snapshot
}

// evaluate runs the conviction engine for one market and publishes any
// resulting event. A panic in one market's evaluation never aborts the
// others.
func (o *Orchestrator) evaluate(ctx context.Context, sub *types.Subscription, snapshot *types.MarketSnapshot, state *conviction.State) {
	defer func() {
		if r := recover(); r != nil {
			CycleErrorsTotal.Inc()
			o.logger.Error("conviction-evaluation-panicked",
				zap.String("market-id", sub.MarketID),
				zap.Any("panic", r))
		}
	}()

	first := state.LastYesPrice == nil

	change := conviction.Evaluate(sub, snapshot, state)
	if change == nil {
		if first {
			o.logger.Info("baseline-set",
				zap.String("market-id", sub.MarketID),
				zap.Float64("yes-price", snapshot.YesPrice))
			return
		}

		o.logger.Debug("no-conviction-change",
			zap.String("market-id", sub.MarketID),
			zap.Float64("yes-price", snapshot.YesPrice))
		return
	}

	ConvictionChangesTotal.Inc()
	o.logger.Info("conviction-change-detected",
		zap.String("market-id", sub.MarketID),
		zap.String("direction", change.Direction),
		zap.Float64("magnitude", change.Magnitude),
		zap.Float64("previous-yes-price", change.PreviousYesPrice),
		zap.Float64("yes-price", snapshot.YesPrice))

	event := buildEvent(snapshot, change)
	err := o.publisher.Publish(ctx, event)
	if err != nil {
		o.logger.Error("event-publish-failed",
			zap.String("market-id", sub.MarketID),
			zap.String("event-id", event.EventID),
			zap.Error(err))
	}
}

// buildEvent assembles the wire event for a detected change. The event
// timestamp is the snapshot's fetch time, not the detection time.
func buildEvent(snapshot *types.MarketSnapshot, change *conviction.Change) *types.ConvictionEvent {
	previous := change.PreviousYesPrice

	// JSON has no Infinity; a move off a zero baseline is clamped to
	// the largest representable magnitude.
	magnitudePct := change.MagnitudePct
	if math.IsInf(magnitudePct, 1) {
		magnitudePct = math.MaxFloat64
	}

	return &types.ConvictionEvent{
		EventID:   uuid.NewString(),
		Timestamp: snapshot.FetchedAt,
		MarketID:  snapshot.MarketID,
		Question:  snapshot.Question,
		YesPrice:  snapshot.YesPrice,
		NoPrice:   snapshot.NoPrice,
		Source:    types.EventSource,

		ConvictionDirection:    change.Direction,
		ConvictionMagnitude:    change.Magnitude,
		ConvictionMagnitudePct: magnitudePct,
		PreviousYesPrice:       &previous,

		Volume:    snapshot.Volume,
		Liquidity: snapshot.Liquidity,
	}
}
