// Package kafka provides a scan source that reads a topic from its oldest
// retained offsets up to the high-water marks seen at connect time.
package kafka

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-extract/pkg/clients"
	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/base"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/core"
	"github.com/ajitpratap0/nebula-extract/pkg/cursor"
	"github.com/ajitpratap0/nebula-extract/pkg/json"
	"github.com/ajitpratap0/nebula-extract/pkg/models"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

const defaultPollTimeout = time.Second

// Broker is the consumer plus the offset lookups the scan needs.
type Broker interface {
	sarama.Consumer
	// Watermarks returns the oldest retained offset and the high-water mark
	Watermarks(topic string, partition int32) (oldest, newest int64, err error)
}

// BrokerFactory connects to the cluster named by cfg.
type BrokerFactory func(cfg *config.SourceConfig, sc *sarama.Config) (Broker, error)

// KafkaSource drains each partition of a topic in partition order. The scan
// is bounded by the high-water marks snapshotted in Connect, so records
// produced during the run are left for the next one.
type KafkaSource struct {
	*base.BaseAdapter

	newBroker   BrokerFactory
	broker      Broker
	topic       string
	partitions  []int32
	start       map[int32]int64
	end         map[int32]int64
	limit       int
	pollTimeout time.Duration
	jsonValues  bool

	pc     sarama.PartitionConsumer
	pcPart int32
	pcNext int64
}

// NewKafkaSource creates an unconnected Kafka source.
func NewKafkaSource() *KafkaSource {
	return &KafkaSource{
		BaseAdapter: base.NewBaseAdapter("kafka", core.FamilyScan, "2.0.0"),
		newBroker:   newClusterBroker,
	}
}

// New adapts NewKafkaSource to the registry's factory signature.
func New() core.Adapter { return NewKafkaSource() }

// WithBrokerFactory replaces the cluster connection, typically with sarama mocks.
func (s *KafkaSource) WithBrokerFactory(f BrokerFactory) *KafkaSource {
	s.newBroker = f
	return s
}

// Connect validates cfg, connects and snapshots the partition watermarks.
func (s *KafkaSource) Connect(ctx context.Context, cfg *config.SourceConfig) error {
	if err := s.Begin(cfg, "resource", "options.brokers|host"); err != nil {
		return err
	}
	pollTimeout, err := cfg.OptionDuration("poll_timeout", defaultPollTimeout)
	if err != nil {
		return err
	}
	valueFormat := cfg.Option("value_format", "string")
	if valueFormat != "string" && valueFormat != "json" {
		return nebulaerrors.Newf(nebulaerrors.ErrorTypeConfig, "kafka source: unknown value_format %q", valueFormat)
	}

	sc, err := clients.NewSaramaConfig(clients.KafkaOptions{
		Version:       cfg.Option("version", ""),
		DialTimeout:   cfg.Timeouts.Connect,
		TLS:           cfg.Option("tls", "") == "true",
		SASLMechanism: cfg.Option("sasl_mechanism", ""),
		Username:      cfg.Credentials.Username,
		Password:      cfg.Credentials.Password,
	})
	if err != nil {
		return err
	}
	sc.Consumer.MaxWaitTime = 250 * time.Millisecond

	broker, err := s.newBroker(cfg, sc)
	if err != nil {
		return err
	}
	s.OnRelease(func(context.Context) error { return broker.Close() })

	partitions, err := broker.Partitions(cfg.Resource)
	if err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to read topic partitions").
			WithDetail("topic", cfg.Resource)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	start := make(map[int32]int64, len(partitions))
	end := make(map[int32]int64, len(partitions))
	for _, p := range partitions {
		oldest, newest, err := broker.Watermarks(cfg.Resource, p)
		if err != nil {
			return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to read partition offsets").
				WithDetail("topic", cfg.Resource).
				WithDetail("partition", p)
		}
		start[p], end[p] = oldest, newest
	}

	s.broker = broker
	s.topic = cfg.Resource
	s.partitions = partitions
	s.start = start
	s.end = end
	s.limit = cfg.PageLimit()
	s.pollTimeout = pollTimeout
	s.jsonValues = valueFormat == "json"

	s.GetLogger().Info("Connected to Kafka",
		zap.String("topic", s.topic),
		zap.Int("partitions", len(partitions)),
		zap.Int("page_size", s.limit))
	return s.MarkConnected()
}

// FetchPage reads up to a page of messages from the scan position encoded
// in the cursor. A partition that stays idle for the poll timeout is either
// drained, when the broker reports nothing past the snapshot, or left open
// while the scan moves on to the next partition. The page may end up empty
// with the scan still open.
func (s *KafkaSource) FetchPage(ctx context.Context, c cursor.Cursor) (*core.Page, error) {
	if err := s.Guard(ctx, c); err != nil {
		return nil, err
	}
	token, _ := c.Token()

	positions, err := s.positions(token)
	if err != nil {
		return nil, err
	}

	records := make([]models.Record, 0, s.limit)
	idle := time.NewTimer(s.pollTimeout)
	defer idle.Stop()

	for _, p := range s.partitions {
		if len(records) >= s.limit {
			break
		}
		idle.Reset(s.pollTimeout)

	drain:
		for positions[p] < s.end[p] && len(records) < s.limit {
			pc, err := s.consume(p, positions[p])
			if err != nil {
				return nil, err
			}

			select {
			case msg, ok := <-pc.Messages():
				if !ok {
					return nil, nebulaerrors.New(nebulaerrors.ErrorTypeQuery, "partition consumer closed").
						WithDetail("partition", p)
				}
				if msg.Offset >= s.end[p] {
					// the offsets left below the snapshot carried no records
					positions[p] = s.end[p]
					break drain
				}
				record, err := s.record(msg)
				if err != nil {
					return nil, err
				}
				records = append(records, record)
				positions[p] = msg.Offset + 1
				s.pcNext = positions[p]
				idle.Reset(s.pollTimeout)

			case cerr := <-pc.Errors():
				return nil, nebulaerrors.Wrap(cerr, nebulaerrors.ErrorTypeQuery, "failed to consume partition").
					WithDetail("partition", p).
					WithDetail("offset", positions[p])

			case <-idle.C:
				if drained(pc, s.end[p]) {
					s.GetLogger().Debug("partition drained below snapshot mark",
						zap.Int32("partition", p),
						zap.Int64("offset", positions[p]),
						zap.Int64("end", s.end[p]))
					positions[p] = s.end[p]
				} else {
					s.GetLogger().Debug("poll timeout",
						zap.Int32("partition", p),
						zap.Int64("offset", positions[p]))
				}
				break drain

			case <-ctx.Done():
				return nil, nebulaerrors.Wrap(ctx.Err(), nebulaerrors.ErrorTypeTimeout, "fetch interrupted")
			}
		}
	}

	next := cursor.Token(EncodePositions(positions))
	if s.done(positions) {
		s.closePartition()
		next = next.Exhaust()
	}
	return &core.Page{Records: records, Next: next}, nil
}

// drained reports whether an idle partition consumer has nothing more to
// deliver below end. Once a fetch has answered with a high-water mark at or
// under end, the offsets still missing are transaction control records or
// compacted away. A zero mark means no fetch has answered yet.
func drained(pc sarama.PartitionConsumer, end int64) bool {
	hwm := pc.HighWaterMarkOffset()
	return hwm > 0 && hwm <= end
}

// EstimateTotal returns the number of offsets between the snapshotted
// watermarks. Compaction and transaction markers make it an upper bound.
func (s *KafkaSource) EstimateTotal(context.Context) (int64, bool, error) {
	if s.end == nil {
		return 0, false, nil
	}
	var total int64
	for _, p := range s.partitions {
		total += s.end[p] - s.start[p]
	}
	return total, true, nil
}

// Disconnect closes the open partition consumer and the broker connection.
func (s *KafkaSource) Disconnect(ctx context.Context) error {
	s.closePartition()
	s.broker = nil
	return s.Release(ctx)
}

func (s *KafkaSource) positions(token string) (map[int32]int64, error) {
	positions := make(map[int32]int64, len(s.start))
	for p, off := range s.start {
		positions[p] = off
	}
	if token == "" {
		return positions, nil
	}

	decoded, err := DecodePositions(token)
	if err != nil {
		return nil, err
	}
	for p, off := range decoded {
		if _, ok := s.end[p]; !ok {
			return nil, nebulaerrors.Newf(nebulaerrors.ErrorTypePagination, "cursor names unknown partition %d", p)
		}
		positions[p] = off
	}
	return positions, nil
}

func (s *KafkaSource) done(positions map[int32]int64) bool {
	for _, p := range s.partitions {
		if positions[p] < s.end[p] {
			return false
		}
	}
	return true
}

// consume returns a partition consumer positioned at offset, reusing the
// open one when it is already there.
func (s *KafkaSource) consume(partition int32, offset int64) (sarama.PartitionConsumer, error) {
	if s.pc != nil && s.pcPart == partition && s.pcNext == offset {
		return s.pc, nil
	}
	s.closePartition()

	pc, err := s.broker.ConsumePartition(s.topic, partition, offset)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "failed to open partition").
			WithDetail("partition", partition).
			WithDetail("offset", offset)
	}
	s.pc, s.pcPart, s.pcNext = pc, partition, offset
	return pc, nil
}

func (s *KafkaSource) closePartition() {
	if s.pc == nil {
		return
	}
	if err := s.pc.Close(); err != nil {
		s.GetLogger().Warn("failed to close partition consumer",
			zap.Int32("partition", s.pcPart),
			zap.Error(err))
	}
	s.pc = nil
}

func (s *KafkaSource) record(msg *sarama.ConsumerMessage) (models.Record, error) {
	record := models.Record{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
		"key":       string(msg.Key),
		"timestamp": msg.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if len(msg.Headers) > 0 {
		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[string(h.Key)] = string(h.Value)
		}
		record["headers"] = headers
	}

	if !s.jsonValues {
		record["value"] = string(msg.Value)
		return record, nil
	}
	var value interface{}
	if err := json.Unmarshal(msg.Value, &value); err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "message value is not JSON").
			WithDetail("partition", msg.Partition).
			WithDetail("offset", msg.Offset)
	}
	record["value"] = value
	return record, nil
}

// EncodePositions renders per-partition next offsets as a cursor token.
func EncodePositions(positions map[int32]int64) string {
	keyed := make(map[string]int64, len(positions))
	for p, off := range positions {
		keyed[strconv.Itoa(int(p))] = off
	}
	b, _ := json.Marshal(keyed)
	return string(b)
}

// DecodePositions parses a token written by EncodePositions.
func DecodePositions(token string) (map[int32]int64, error) {
	var keyed map[string]int64
	if err := json.Unmarshal([]byte(token), &keyed); err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypePagination, "malformed scan cursor")
	}
	positions := make(map[int32]int64, len(keyed))
	for k, off := range keyed {
		p, err := strconv.ParseInt(k, 10, 32)
		if err != nil {
			return nil, nebulaerrors.Wrapf(err, nebulaerrors.ErrorTypePagination, "malformed partition %q in scan cursor", k)
		}
		positions[int32(p)] = off
	}
	return positions, nil
}

type clusterBroker struct {
	sarama.Consumer
	client sarama.Client
}

func newClusterBroker(cfg *config.SourceConfig, sc *sarama.Config) (Broker, error) {
	brokers := clients.ParseBrokers(cfg.Option("brokers", cfg.Host), cfg.Port)
	client, err := sarama.NewClient(brokers, sc)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to connect to Kafka").
			WithDetail("brokers", brokers)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to create consumer")
	}
	return &clusterBroker{Consumer: consumer, client: client}, nil
}

func (b *clusterBroker) Watermarks(topic string, partition int32) (int64, int64, error) {
	oldest, err := b.client.GetOffset(topic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, err
	}
	newest, err := b.client.GetOffset(topic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, err
	}
	return oldest, newest, nil
}

func (b *clusterBroker) Close() error {
	err := b.Consumer.Close()
	if cerr := b.client.Close(); err == nil {
		err = cerr
	}
	return err
}
