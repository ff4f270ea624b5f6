package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/mselser95/polymarket-conviction/pkg/config"
	"github.com/mselser95/polymarket-conviction/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kfake"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

const testTopic = "conviction-events"

func newTestCluster(t *testing.T) []string {
	t.Helper()

	cluster, err := kfake.NewCluster(kfake.NumBrokers(1))
	require.NoError(t, err)
	t.Cleanup(cluster.Close)

	admin, err := kgo.NewClient(kgo.SeedBrokers(cluster.ListenAddrs()...))
	require.NoError(t, err)
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = kadm.NewClient(admin).CreateTopics(ctx, 1, 1, nil, testTopic)
	require.NoError(t, err)

	return cluster.ListenAddrs()
}

func produceRaw(t *testing.T, addrs []string, key string, value []byte) {
	t.Helper()

	client, err := kgo.NewClient(kgo.SeedBrokers(addrs...))
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result := client.ProduceSync(ctx, &kgo.Record{
		Topic: testTopic,
		Key:   []byte(key),
		Value: value,
	})
	require.NoError(t, result.FirstErr())
}

func newTestConsumer(t *testing.T, addrs []string) *Consumer {
	t.Helper()

	consumer, err := New(&config.KafkaConfig{
		BootstrapServers: addrs,
		Topic:            testTopic,
		ClientID:         "consumer-test",
		GroupID:          "strategy-injestor",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(consumer.Close)

	return consumer
}

func TestPollDecodesEvent(t *testing.T) {
	addrs := newTestCluster(t)

	prev := 0.45
	want := &types.ConvictionEvent{
		EventID:             "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		Timestamp:           time.Now().UTC().Truncate(time.Millisecond),
		MarketID:            "0xmarket",
		Question:            "Will X happen?",
		YesPrice:            0.60,
		NoPrice:             0.40,
		Source:              types.EventSource,
		ConvictionDirection: types.DirectionYes,
		ConvictionMagnitude: 0.15,
		PreviousYesPrice:    &prev,
	}

	payload, err := json.Marshal(want)
	require.NoError(t, err)
	produceRaw(t, addrs, want.MarketID, payload)

	consumer := newTestConsumer(t, addrs)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	got, err := consumer.Poll(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, want.EventID, got.EventID)
	assert.Equal(t, want.MarketID, got.MarketID)
	assert.Equal(t, want.YesPrice, got.YesPrice)
	assert.Equal(t, types.DirectionYes, got.ConvictionDirection)
	require.NotNil(t, got.PreviousYesPrice)
	assert.Equal(t, prev, *got.PreviousYesPrice)
}

func TestPollSkipsUndecodableRecords(t *testing.T) {
	addrs := newTestCluster(t)

	produceRaw(t, addrs, "bad", []byte("not json at all"))

	good := &types.ConvictionEvent{
		EventID:  "ffffffff-0000-1111-2222-333333333333",
		MarketID: "0xgood",
		YesPrice: 0.5,
		NoPrice:  0.5,
	}
	payload, err := json.Marshal(good)
	require.NoError(t, err)
	produceRaw(t, addrs, good.MarketID, payload)

	consumer := newTestConsumer(t, addrs)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	got, err := consumer.Poll(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, good.EventID, got.EventID)
	assert.Equal(t, "0xgood", got.MarketID)
}

func TestPollReturnsNilOnQuietTopic(t *testing.T) {
	addrs := newTestCluster(t)
	consumer := newTestConsumer(t, addrs)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	got, err := consumer.Poll(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}
