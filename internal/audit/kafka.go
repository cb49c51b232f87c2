package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaStore publishes audit events to a Kafka topic, keyed by OPDS URL so
// one library's events stay ordered.
type KafkaStore struct {
	client *kgo.Client
	topic  string
}

// NewKafkaStore connects a producer to brokers.
func NewKafkaStore(brokers []string, topic string, opts ...kgo.Opt) (*KafkaStore, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	opts = append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}, opts...)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaStore{client: client, topic: topic}, nil
}

// EnsureTopic creates the audit topic if it does not exist yet.
func (k *KafkaStore) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(k.client)
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, k.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", k.topic, err)
	}
	for _, t := range resp {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", t.Topic, t.Err)
		}
	}
	return nil
}

// Append produces one record and waits for the broker to acknowledge it.
func (k *KafkaStore) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic:   k.topic,
		Key:     []byte(event.OPDSURL),
		Value:   payload,
		Headers: []kgo.RecordHeader{{Key: "event_type", Value: []byte(event.Type)}},
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Ping checks that at least one broker is reachable.
func (k *KafkaStore) Ping(ctx context.Context) error {
	return k.client.Ping(ctx)
}

func (k *KafkaStore) Close() {
	k.client.Close()
}
