// Package consumer reads conviction events from Kafka as part of a
// consumer group, with offsets committed automatically after polling.
package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/mselser95/polymarket-conviction/internal/publisher"
	"github.com/mselser95/polymarket-conviction/pkg/config"
	"github.com/mselser95/polymarket-conviction/pkg/types"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Consumer wraps a kgo group consumer for the conviction event topic.
type Consumer struct {
	client *kgo.Client
	logger *zap.Logger

	// Records fetched but not yet handed out by Poll.
	pending []*kgo.Record
}

// New joins the configured consumer group. New deployments without a
// committed offset start from the earliest retained record so no
// historical events are skipped.
func New(cfg *config.KafkaConfig, logger *zap.Logger) (*Consumer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.BootstrapServers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.FullTopic()),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	}

	opts = append(opts, publisher.KafkaOpts(cfg)...)

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	logger.Info("kafka-consumer-initialized",
		zap.Strings("bootstrap-servers", cfg.BootstrapServers),
		zap.String("topic", cfg.FullTopic()),
		zap.String("group-id", cfg.GroupID))

	return &Consumer{
		client: client,
		logger: logger,
	}, nil
}

// Poll returns the next decoded conviction event, or nil when the
// context expires before a decodable record arrives. Records that fail
// to decode are logged and skipped rather than poisoning the stream.
func (c *Consumer) Poll(ctx context.Context) (*types.ConvictionEvent, error) {
	for {
		record, err := c.nextRecord(ctx)
		if err != nil {
			return nil, err
		}
		if record == nil {
			return nil, nil
		}

		RecordsConsumedTotal.Inc()

		var event types.ConvictionEvent
		err = json.Unmarshal(record.Value, &event)
		if err != nil {
			DecodeFailuresTotal.Inc()
			c.logger.Warn("undecodable-record-skipped",
				zap.String("topic", record.Topic),
				zap.Int32("partition", record.Partition),
				zap.Int64("offset", record.Offset),
				zap.Error(err))
			continue
		}

		c.logger.Debug("event-consumed",
			zap.String("event-id", event.EventID),
			zap.String("market-id", event.MarketID),
			zap.Int64("offset", record.Offset))

		return &event, nil
	}
}

func (c *Consumer) nextRecord(ctx context.Context) (*kgo.Record, error) {
	if len(c.pending) > 0 {
		record := c.pending[0]
		c.pending = c.pending[1:]
		return record, nil
	}

	fetches := c.client.PollFetches(ctx)
	if fetches.IsClientClosed() {
		return nil, fmt.Errorf("kafka consumer closed")
	}

	fetches.EachError(func(topic string, partition int32, err error) {
		// A cancelled poll is a quiet cycle, not a failure. Any records
		// fetched alongside the cancellation are still kept: autocommit
		// will advance past them either way.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}

		FetchErrorsTotal.Inc()
		c.logger.Error("fetch-error",
			zap.String("topic", topic),
			zap.Int32("partition", partition),
			zap.Error(err))
	})

	c.pending = fetches.Records()
	if len(c.pending) == 0 {
		return nil, nil
	}

	record := c.pending[0]
	c.pending = c.pending[1:]
	return record, nil
}

// Close leaves the group, committing any outstanding offsets.
func (c *Consumer) Close() {
	c.logger.Info("kafka-consumer-closing")
	c.client.Close()
}
