// Package subscriptions implements the MongoDB-backed subscription
// store. Records are ref-counted: external writers $inc the counter
// concurrently, and only strictly positive counts are considered active.
package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/polymarket-conviction/pkg/config"
	"github.com/mselser95/polymarket-conviction/pkg/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// Store manages subscriptions in a MongoDB collection.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

// SubscribeOptions carries optional fields set only when the
// subscription document is first inserted.
type SubscribeOptions struct {
	Slug         string
	Threshold    *float64
	ThresholdPct *float64
}

// NewStore connects to MongoDB and binds the configured collection.
func NewStore(ctx context.Context, cfg *config.MongoConfig, logger *zap.Logger) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	err = client.Ping(ctx, nil)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	collection := client.Database(cfg.Database).Collection(cfg.FullCollection())

	logger.Info("subscription-store-connected",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.FullCollection()))

	return &Store{
		client:     client,
		collection: collection,
		logger:     logger,
	}, nil
}

// ListActive returns every subscription with ref_count > 0. The filter
// is pushed to the store; documents with unknown keys decode fine.
func (s *Store) ListActive(ctx context.Context) ([]*types.Subscription, error) {
	cursor, err := s.collection.Find(ctx, activeFilter())
	if err != nil {
		return nil, fmt.Errorf("find active subscriptions: %w", err)
	}

	var subs []*types.Subscription
	err = cursor.All(ctx, &subs)
	if err != nil {
		return nil, fmt.Errorf("decode subscriptions: %w", err)
	}

	s.logger.Debug("listed-active-subscriptions", zap.Int("count", len(subs)))

	return subs, nil
}

// Subscribe atomically increments ref_count, upserting the document.
// created_at and the optional overrides are set only on insert;
// updated_at is refreshed on every call.
func (s *Store) Subscribe(ctx context.Context, marketID string, opts SubscribeOptions) error {
	update := buildSubscribeUpdate(opts, time.Now().UTC())

	_, err := s.collection.UpdateOne(ctx,
		bson.M{"market_id": marketID},
		update,
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", marketID, err)
	}

	s.logger.Info("subscribed", zap.String("market-id", marketID))

	return nil
}

// Unsubscribe atomically decrements ref_count. No lower bound is
// enforced; zero and negative counts are simply excluded by ListActive.
func (s *Store) Unsubscribe(ctx context.Context, marketID string) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"market_id": marketID},
		buildUnsubscribeUpdate(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("unsubscribe %s: %w", marketID, err)
	}

	s.logger.Info("unsubscribed", zap.String("market-id", marketID))

	return nil
}

// Close disconnects the MongoDB client.
func (s *Store) Close(ctx context.Context) error {
	s.logger.Info("subscription-store-closing")
	return s.client.Disconnect(ctx)
}

func activeFilter() bson.M {
	return bson.M{"ref_count": bson.M{"$gt": 0}}
}

func buildSubscribeUpdate(opts SubscribeOptions, now time.Time) bson.M {
	setOnInsert := bson.M{"created_at": now}
	if opts.Slug != "" {
		setOnInsert["slug"] = opts.Slug
	}
	if opts.Threshold != nil {
		setOnInsert["conviction_threshold"] = *opts.Threshold
	}
	if opts.ThresholdPct != nil {
		setOnInsert["conviction_threshold_pct"] = *opts.ThresholdPct
	}

	return bson.M{
		"$inc":         bson.M{"ref_count": 1},
		"$setOnInsert": setOnInsert,
		"$set":         bson.M{"updated_at": now},
	}
}

func buildUnsubscribeUpdate(now time.Time) bson.M {
	return bson.M{
		"$inc": bson.M{"ref_count": -1},
		"$set": bson.M{"updated_at": now},
	}
}
