package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"ehs/internal/enforcement/models"
)

// KafkaPublisher writes events to one topic per workflow, keyed by record
// key so every change to a record lands on the same partition.
type KafkaPublisher struct {
	client *kgo.Client
	prefix string
}

// NewKafkaClient opens a franz-go client against brokers.
func NewKafkaClient(brokers []string, opts ...kgo.Opt) (*kgo.Client, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ClientID("ehs"),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

func NewKafkaPublisher(client *kgo.Client, topicPrefix string) *KafkaPublisher {
	return &KafkaPublisher{client: client, prefix: topicPrefix}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	rec := &kgo.Record{
		Topic: Topic(p.prefix, event.Workflow),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "outcome", Value: []byte(event.Outcome)},
			{Key: "event_id", Value: []byte(event.ID.String())},
		},
	}
	if event.Record != nil {
		rec.Key = []byte(event.Record.Key.String())
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", rec.Topic, err)
	}
	return nil
}

// EnsureTopics creates the outcome topic of every workflow. Existing topics
// are left as they are.
func EnsureTopics(ctx context.Context, client *kgo.Client, prefix string, partitions int32, replication int16, logger *slog.Logger) error {
	topics := make([]string, 0, len(models.Workflows()))
	for _, w := range models.Workflows() {
		topics = append(topics, Topic(prefix, w))
	}

	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, r := range resp.Sorted() {
		switch {
		case r.Err == nil:
			logger.InfoContext(ctx, "created topic", "topic", r.Topic, "partitions", partitions)
		case errors.Is(r.Err, kerr.TopicAlreadyExists):
		default:
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}
