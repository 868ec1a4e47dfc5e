package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"busybeaver/pkg/platform/sentinel"
)

// minKafkaPoll bounds non-blocking polls; a fetch needs a round trip.
const minKafkaPoll = 250 * time.Millisecond

// KafkaConfig describes where the Kafka broker produces and consumes.
type KafkaConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
}

// KafkaBroker carries whole job records as Kafka messages keyed by job id.
// Kafka has no cheap queue length, so Len and Purge are unsupported.
type KafkaBroker struct {
	client *kgo.Client
	topic  string
}

// NewKafkaBroker connects to the cluster and makes sure the topic exists.
func NewKafkaBroker(ctx context.Context, cfg KafkaConfig) (*KafkaBroker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka broker: no seed brokers")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka broker: topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	if err := ensureTopic(ctx, client, cfg.Topic); err != nil {
		client.Close()
		return nil, err
	}
	return &KafkaBroker{client: client, topic: cfg.Topic}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func (b *KafkaBroker) Push(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	record := &kgo.Record{
		Topic: b.topic,
		Key:   []byte(job.ID),
		Value: raw,
	}
	if err := b.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce job %s: %w", job.ID, err)
	}
	return nil
}

func (b *KafkaBroker) Pop(ctx context.Context, wait time.Duration) (*Job, error) {
	if wait < minKafkaPoll {
		wait = minKafkaPoll
	}
	pollCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	fetches := b.client.PollRecords(pollCtx, 1)
	if fetches.IsClientClosed() {
		return nil, ErrClosed
	}
	for _, fe := range fetches.Errors() {
		if errors.Is(fe.Err, context.DeadlineExceeded) || errors.Is(fe.Err, context.Canceled) {
			continue
		}
		return nil, fmt.Errorf("poll %s/%d: %w", fe.Topic, fe.Partition, fe.Err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := fetches.Records()
	if len(records) == 0 {
		return nil, nil
	}
	return decodeJob(records[0].Value)
}

func (b *KafkaBroker) Len(context.Context) (int, error) {
	return 0, fmt.Errorf("kafka queue length: %w", sentinel.ErrUnsupported)
}

func (b *KafkaBroker) Purge(context.Context) error {
	return fmt.Errorf("kafka queue purge: %w", sentinel.ErrUnsupported)
}

func (b *KafkaBroker) Close() error {
	b.client.Close()
	return nil
}
