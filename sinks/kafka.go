package sinks

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"
	"github.com/tarungka/couchstream/stream"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// producer is the part of *kgo.Client the sink needs.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaSink publishes each change to a topic named after the routed
// collection, keyed by document id. Deletes are tombstones, so a compacted
// topic converges to the same state as the source.
type KafkaSink struct {
	client      producer
	topicPrefix string
	logger      zerolog.Logger
}

func NewKafkaSink(c KafkaConfig, logger zerolog.Logger) (*KafkaSink, error) {
	if len(c.Brokers) == 0 {
		return nil, stream.Errorf(stream.KindConfig, "kafka", "kafka.brokers is required")
	}

	logger.Trace().Msg("Connecting to kafka cluster as a sink...")
	client, err := kgo.NewClient(
		kgo.SeedBrokers(c.Brokers...),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		logger.Err(err).Msg("Error when creating a kafka producer!")
		return nil, stream.Wrap(stream.KindConfig, "kafka client", err)
	}
	return newKafkaSink(client, c.TopicPrefix, logger), nil
}

func newKafkaSink(client producer, topicPrefix string, logger zerolog.Logger) *KafkaSink {
	return &KafkaSink{
		client:      client,
		topicPrefix: topicPrefix,
		logger:      logger.With().Str("service", "kafka").Logger(),
	}
}

func (k *KafkaSink) Delete(ctx context.Context, collection, id string) error {
	return k.produce(ctx, "kafka delete", k.record(collection, id, stream.ActionDelete, nil))
}

// Upsert always reports created as false; a log cannot tell inserts from
// replacements.
func (k *KafkaSink) Upsert(ctx context.Context, collection, id string, doc map[string]interface{}) (bool, error) {
	value, err := json.Marshal(doc)
	if err != nil {
		return false, stream.Wrap(stream.KindStructural, "kafka encode document", err)
	}
	return false, k.produce(ctx, "kafka upsert", k.record(collection, id, stream.ActionUpsert, value))
}

func (k *KafkaSink) Close(_ context.Context) error {
	k.logger.Info().Msg("Disconnecting kafka sink")
	k.client.Close()
	return nil
}

func (k *KafkaSink) record(collection, id string, action stream.Action, value []byte) *kgo.Record {
	return &kgo.Record{
		Topic: k.topicPrefix + collection,
		Key:   []byte(id),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "op", Value: []byte(action.String())},
		},
	}
}

func (k *KafkaSink) produce(ctx context.Context, op string, r *kgo.Record) error {
	if err := k.client.ProduceSync(ctx, r).FirstErr(); err != nil {
		k.logger.Err(err).Str("topic", r.Topic).Str("key", string(r.Key)).Msg("record had a produce error")
		if kerr.IsRetriable(err) || errors.Is(err, kgo.ErrRecordTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return stream.Wrap(stream.KindConnection, op, err)
		}
		return stream.Wrap(stream.KindApply, op, err)
	}
	return nil
}
