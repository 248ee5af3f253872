package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/sdk"
	"github.com/ajitpratap0/nebula-extract/pkg/cursor"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

const topic = "orders"

// mockBroker pairs the sarama consumer mock with fixed watermarks.
type mockBroker struct {
	*mocks.Consumer
	marks  map[int32][2]int64
	closed int
}

func (b *mockBroker) Watermarks(_ string, p int32) (int64, int64, error) {
	m := b.marks[p]
	return m[0], m[1], nil
}

// Close skips mocks.Consumer.Close, which closes every expected partition
// consumer again.
func (b *mockBroker) Close() error {
	b.closed++
	return nil
}

func newMockBroker(t *testing.T, counts ...int64) *mockBroker {
	consumer := mocks.NewConsumer(t, nil)
	partitions := make([]int32, len(counts))
	marks := make(map[int32][2]int64, len(counts))
	for i, n := range counts {
		p := int32(i)
		partitions[i] = p
		marks[p] = [2]int64{0, n}
	}
	consumer.SetTopicMetadata(map[string][]int32{topic: partitions})
	return &mockBroker{Consumer: consumer, marks: marks}
}

func yield(pc *mocks.PartitionConsumer, values ...string) {
	for _, v := range values {
		pc.YieldMessage(&sarama.ConsumerMessage{
			Key:       []byte("k-" + v),
			Value:     []byte(v),
			Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	}
}

func sourceWith(b *mockBroker) *KafkaSource {
	return NewKafkaSource().WithBrokerFactory(func(*config.SourceConfig, *sarama.Config) (Broker, error) {
		return b, nil
	})
}

func topicConfig(pageSize int) *config.SourceConfig {
	cfg := config.NewSourceConfig("kafka")
	cfg.Resource = topic
	cfg.Host = "localhost"
	cfg.PageSize = pageSize
	cfg.Options["poll_timeout"] = "50ms"
	return cfg
}

func TestKafkaSourceDrainsAllPartitions(t *testing.T) {
	broker := newMockBroker(t, 3, 2)
	yield(broker.ExpectConsumePartition(topic, 0, 0), `a`, `b`, `c`)
	yield(broker.ExpectConsumePartition(topic, 1, 0), `d`, `e`)

	pages := sdk.NewTestSuite(t).TestAdapter(sourceWith(broker), topicConfig(2))

	var sizes []int
	var values []interface{}
	for _, p := range pages {
		sizes = append(sizes, len(p))
		for _, r := range p {
			values = append(values, r["value"])
		}
	}
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, []interface{}{"a", "b", "c", "d", "e"}, values)
	assert.Equal(t, "k-d", pages[1][1]["key"])
	assert.Equal(t, int32(1), pages[1][1]["partition"])
	assert.Equal(t, 1, broker.closed)
}

func TestKafkaSourceEmptyTopic(t *testing.T) {
	broker := newMockBroker(t, 0)

	pages := sdk.NewTestSuite(t).TestAdapter(sourceWith(broker), topicConfig(10))

	require.Len(t, pages, 1)
	assert.Empty(t, pages[0])
}

func TestKafkaSourcePollTimeoutKeepsScanOpen(t *testing.T) {
	broker := newMockBroker(t, 3)
	pc := broker.ExpectConsumePartition(topic, 0, 0)

	src := sourceWith(broker)
	ctx := context.Background()
	require.NoError(t, src.Connect(ctx, topicConfig(10)))
	defer src.Disconnect(ctx) //nolint:errcheck

	page, err := src.FetchPage(ctx, src.Start())
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	require.False(t, page.Next.Exhausted())

	yield(pc, "x", "y", "z")
	page, err = src.FetchPage(ctx, page.Next)
	require.NoError(t, err)
	require.Len(t, page.Records, 3)
	assert.Equal(t, "x", page.Records[0]["value"])
	assert.Equal(t, "z", page.Records[2]["value"])
	assert.True(t, page.Next.Exhausted())
}

func TestKafkaSourceSkipsUndeliveredTail(t *testing.T) {
	// Partition 0 ends in a transaction marker at offset 2, which the
	// consumer never hands out.
	broker := newMockBroker(t, 3, 1)
	yield(broker.ExpectConsumePartition(topic, 0, 0), "a", "b")
	yield(broker.ExpectConsumePartition(topic, 1, 0), "c")

	pages := sdk.NewTestSuite(t).TestAdapter(sourceWith(broker), topicConfig(10))

	require.Len(t, pages, 1)
	var values []interface{}
	for _, r := range pages[0] {
		values = append(values, r["value"])
	}
	assert.Equal(t, []interface{}{"a", "b", "c"}, values)
}

func TestKafkaSourceIdlePartitionDoesNotBlockOthers(t *testing.T) {
	broker := newMockBroker(t, 1, 1)
	broker.ExpectConsumePartition(topic, 0, 0)
	yield(broker.ExpectConsumePartition(topic, 1, 0), "b")

	src := sourceWith(broker)
	ctx := context.Background()
	require.NoError(t, src.Connect(ctx, topicConfig(10)))
	defer src.Disconnect(ctx) //nolint:errcheck

	page, err := src.FetchPage(ctx, src.Start())
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "b", page.Records[0]["value"])
	require.False(t, page.Next.Exhausted())

	token, _ := page.Next.Token()
	positions, err := DecodePositions(token)
	require.NoError(t, err)
	assert.Equal(t, map[int32]int64{0: 0, 1: 1}, positions)
}

func TestKafkaSourceJSONValues(t *testing.T) {
	broker := newMockBroker(t, 1)
	yield(broker.ExpectConsumePartition(topic, 0, 0), `{"id":7}`)

	cfg := topicConfig(10)
	cfg.Options["value_format"] = "json"
	pages := sdk.NewTestSuite(t).TestAdapter(sourceWith(broker), cfg)

	require.Len(t, pages, 1)
	require.Len(t, pages[0], 1)
	assert.Equal(t, map[string]interface{}{"id": float64(7)}, pages[0][0]["value"])
}

func TestKafkaSourceEstimateTotal(t *testing.T) {
	broker := newMockBroker(t, 3, 4)
	src := sourceWith(broker)
	ctx := context.Background()

	_, ok, err := src.EstimateTotal(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, src.Connect(ctx, topicConfig(10)))
	defer src.Disconnect(ctx) //nolint:errcheck

	total, ok, err := src.EstimateTotal(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), total)
}

func TestPositionsToken(t *testing.T) {
	positions := map[int32]int64{0: 15, 3: 7}
	decoded, err := DecodePositions(EncodePositions(positions))
	require.NoError(t, err)
	assert.Equal(t, positions, decoded)

	_, err = DecodePositions("not json")
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypePagination))
	_, err = DecodePositions(`{"p1":3}`)
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypePagination))
}

func TestKafkaSourceRejectsBadCursors(t *testing.T) {
	broker := newMockBroker(t, 1)
	src := sourceWith(broker)
	ctx := context.Background()
	require.NoError(t, src.Connect(ctx, topicConfig(10)))
	defer src.Disconnect(ctx) //nolint:errcheck

	for name, c := range map[string]cursor.Cursor{
		"exhausted":         src.Start().Exhaust(),
		"unknown partition": cursor.Token(`{"9":0}`),
		"wrong kind":        cursor.Offset(0),
	} {
		t.Run(name, func(t *testing.T) {
			page, err := src.FetchPage(ctx, c)
			assert.Nil(t, page)
			assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypePagination))
		})
	}
}

func TestKafkaSourceRejectsConfig(t *testing.T) {
	suite := sdk.NewTestSuite(t)

	t.Run("missing topic", func(t *testing.T) {
		cfg := config.NewSourceConfig("kafka")
		cfg.Host = "localhost"
		suite.TestRejectsConfig(sourceWith(newMockBroker(t)), cfg)
	})

	t.Run("bad poll timeout", func(t *testing.T) {
		cfg := topicConfig(10)
		cfg.Options["poll_timeout"] = "soon"
		suite.TestRejectsConfig(sourceWith(newMockBroker(t)), cfg)
	})

	t.Run("bad value format", func(t *testing.T) {
		cfg := topicConfig(10)
		cfg.Options["value_format"] = "avro"
		suite.TestRejectsConfig(sourceWith(newMockBroker(t)), cfg)
	})
}
