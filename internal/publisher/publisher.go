// Package publisher produces conviction events to a partitioned Kafka
// topic, keyed by market ID so per-market ordering is preserved.
package publisher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/mselser95/polymarket-conviction/pkg/config"
	"github.com/mselser95/polymarket-conviction/pkg/types"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"
	"go.uber.org/zap"
)

const (
	topicPartitions   = 3
	replicationFactor = 1
)

// Publisher wraps a kgo producer configured for durable, idempotent,
// per-market-ordered event publication.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *zap.Logger
}

// New creates a Kafka producer with acks from all in-sync replicas,
// idempotent writes (the kgo default with all-ISR acks), zstd
// compression and bounded buffering.
func New(cfg *config.KafkaConfig, logger *zap.Logger) (*Publisher, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.BootstrapServers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.ZstdCompression()),
		kgo.ProducerLinger(10 * time.Millisecond),
		kgo.RecordDeliveryTimeout(60 * time.Second),
		kgo.ProducerBatchMaxBytes(5 * 1024 * 1024),
		kgo.MaxBufferedRecords(10000),
	}

	opts = append(opts, authOpts(cfg)...)

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	topic := cfg.FullTopic()
	logger.Info("kafka-producer-initialized",
		zap.Strings("bootstrap-servers", cfg.BootstrapServers),
		zap.String("topic", topic))

	return &Publisher{
		client: client,
		topic:  topic,
		logger: logger,
	}, nil
}

// authOpts builds SASL/TLS options shared by producer and consumer.
func authOpts(cfg *config.KafkaConfig) []kgo.Opt {
	if cfg.SecurityProtocol == "" || cfg.SecurityProtocol == "PLAINTEXT" {
		return nil
	}

	var opts []kgo.Opt

	switch strings.ToUpper(cfg.SASLMechanism) {
	case "SCRAM-SHA-256":
		opts = append(opts, kgo.SASL(scram.Auth{
			User: cfg.SASLUsername,
			Pass: cfg.SASLPassword,
		}.AsSha256Mechanism()))
	case "SCRAM-SHA-512":
		opts = append(opts, kgo.SASL(scram.Auth{
			User: cfg.SASLUsername,
			Pass: cfg.SASLPassword,
		}.AsSha512Mechanism()))
	default:
		opts = append(opts, kgo.SASL(plain.Auth{
			User: cfg.SASLUsername,
			Pass: cfg.SASLPassword,
		}.AsMechanism()))
	}

	if strings.Contains(cfg.SecurityProtocol, "SSL") {
		opts = append(opts, kgo.DialTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}))
	}

	return opts
}

// KafkaOpts exposes the auth option builder for the consumer side.
func KafkaOpts(cfg *config.KafkaConfig) []kgo.Opt {
	return authOpts(cfg)
}

// ProvisionTopic best-effort creates the event topic. A pre-existing
// topic is not an error, and no provisioning failure aborts startup.
func (p *Publisher) ProvisionTopic(ctx context.Context) {
	admin := kadm.NewClient(p.client)

	responses, err := admin.CreateTopics(ctx, topicPartitions, replicationFactor, nil, p.topic)
	if err != nil {
		p.logger.Warn("topic-provisioning-failed",
			zap.String("topic", p.topic),
			zap.Error(err))
		return
	}

	for _, response := range responses.Sorted() {
		if response.Err == nil {
			p.logger.Info("topic-created",
				zap.String("topic", response.Topic),
				zap.Int("partitions", topicPartitions))
			continue
		}

		if errors.Is(response.Err, kerr.TopicAlreadyExists) {
			p.logger.Debug("topic-already-exists", zap.String("topic", response.Topic))
			continue
		}

		p.logger.Warn("topic-provisioning-failed",
			zap.String("topic", response.Topic),
			zap.Error(response.Err))
	}
}

// Publish stamps published_at, serializes the event and produces it
// asynchronously; delivery results are logged in the callback.
func (p *Publisher) Publish(ctx context.Context, event *types.ConvictionEvent) error {
	publishedAt := time.Now().UTC()
	event.PublishedAt = &publishedAt

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventID, err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.MarketID),
		Value: payload,
	}

	p.logger.Info("publishing-event",
		zap.String("market-id", event.MarketID),
		zap.String("event-id", event.EventID),
		zap.String("direction", event.ConvictionDirection),
		zap.Float64("magnitude", event.ConvictionMagnitude))

	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			PublishFailuresTotal.Inc()
			p.logger.Error("event-delivery-failed",
				zap.String("event-id", event.EventID),
				zap.Error(err))
			return
		}

		EventsPublishedTotal.Inc()
		p.logger.Debug("event-delivered",
			zap.String("topic", r.Topic),
			zap.Int32("partition", r.Partition),
			zap.Int64("offset", r.Offset))
	})

	return nil
}

// Flush blocks until all buffered records are delivered or the context
// expires; records still undelivered at that point are lost.
func (p *Publisher) Flush(ctx context.Context) error {
	return p.client.Flush(ctx)
}

// Close releases the underlying client.
func (p *Publisher) Close() {
	p.client.Close()
}
