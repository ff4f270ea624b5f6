package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/mselser95/polymarket-conviction/pkg/config"
	"github.com/mselser95/polymarket-conviction/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kfake"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

func newTestPublisher(t *testing.T) (*Publisher, []string) {
	t.Helper()

	cluster, err := kfake.NewCluster(kfake.NumBrokers(1))
	require.NoError(t, err)
	t.Cleanup(cluster.Close)

	cfg := &config.KafkaConfig{
		BootstrapServers: cluster.ListenAddrs(),
		Topic:            "conviction-events",
		ClientID:         "publisher-test",
	}

	pub, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pub.Close)

	return pub, cluster.ListenAddrs()
}

func testEvent(marketID string) *types.ConvictionEvent {
	prev := 0.45
	return &types.ConvictionEvent{
		EventID:             "11111111-2222-3333-4444-555555555555",
		Timestamp:           time.Now().UTC(),
		MarketID:            marketID,
		Question:            "Will X happen?",
		YesPrice:            0.60,
		NoPrice:             0.40,
		Source:              types.EventSource,
		ConvictionDirection: types.DirectionYes,
		ConvictionMagnitude: 0.15,
		PreviousYesPrice:    &prev,
	}
}

func TestPublishRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pub, addrs := newTestPublisher(t)
	pub.ProvisionTopic(ctx)

	event := testEvent("0xmarket")
	require.NoError(t, pub.Publish(ctx, event))
	require.NoError(t, pub.Flush(ctx))

	// published_at is stamped at publish time.
	require.NotNil(t, event.PublishedAt)
	assert.WithinDuration(t, time.Now().UTC(), *event.PublishedAt, time.Minute)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(addrs...),
		kgo.ConsumeTopics("conviction-events"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())

	records := fetches.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "0xmarket", string(records[0].Key))

	var decoded types.ConvictionEvent
	require.NoError(t, json.Unmarshal(records[0].Value, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, 0.60, decoded.YesPrice)
	assert.Equal(t, types.DirectionYes, decoded.ConvictionDirection)
	require.NotNil(t, decoded.PreviousYesPrice)
	assert.Equal(t, 0.45, *decoded.PreviousYesPrice)
	require.NotNil(t, decoded.PublishedAt)
}

func TestPublishSameMarketSamePartition(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pub, addrs := newTestPublisher(t)
	pub.ProvisionTopic(ctx)

	for range 5 {
		require.NoError(t, pub.Publish(ctx, testEvent("0xsame")))
	}
	require.NoError(t, pub.Flush(ctx))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(addrs...),
		kgo.ConsumeTopics("conviction-events"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var records []*kgo.Record
	for len(records) < 5 {
		fetches := consumer.PollFetches(ctx)
		require.NoError(t, fetches.Err())
		records = append(records, fetches.Records()...)
	}

	partition := records[0].Partition
	for _, record := range records {
		assert.Equal(t, partition, record.Partition)
	}
}

func TestProvisionTopicIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pub, _ := newTestPublisher(t)

	// Provisioning twice must not error or panic.
	pub.ProvisionTopic(ctx)
	pub.ProvisionTopic(ctx)
}
