// Package kafka publishes and consumes registration events on a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"ncc/internal/events"
)

const typeHeader = "event-type"

// Publisher produces events synchronously so callers see broker failures.
type Publisher struct {
	client *kgo.Client
	topic  string
}

func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &Publisher{client: client, topic: topic}, nil
}

func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	value, err := events.Encode(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	record := &kgo.Record{
		Topic:   p.topic,
		Key:     event.Key(),
		Value:   value,
		Headers: []kgo.RecordHeader{{Key: typeHeader, Value: []byte(event.Type)}},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.client.Close()
	return nil
}

// EnsureTopic creates the topic when it does not exist yet.
func EnsureTopic(ctx context.Context, brokers []string, topic string, partitions int32, replicas int16) error {
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return fmt.Errorf("create kafka admin client: %w", err)
	}
	defer client.Close()

	resp, err := kadm.NewClient(client).CreateTopic(ctx, partitions, replicas, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}

// Consumer reads events in a consumer group and hands them to a handler.
// Offsets are committed after each poll; handler failures are logged and
// the event is not redelivered.
type Consumer struct {
	client  *kgo.Client
	handler events.Handler
	logger  *slog.Logger
}

func NewConsumer(brokers []string, topic, group string, handler events.Handler, logger *slog.Logger) (*Consumer, error) {
	if handler == nil {
		return nil, errors.New("event handler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &Consumer{client: client, handler: handler, logger: logger}, nil
}

// Run polls until ctx is cancelled or the consumer is closed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.WarnContext(ctx, "kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})
		fetches.EachRecord(func(record *kgo.Record) {
			c.handle(ctx, record)
		})
		if err := c.client.CommitUncommittedOffsets(ctx); err != nil && ctx.Err() == nil {
			c.logger.WarnContext(ctx, "failed to commit offsets", "error", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, record *kgo.Record) {
	event, err := events.Decode(record.Value)
	if err != nil {
		c.logger.WarnContext(ctx, "skipping malformed event",
			"topic", record.Topic,
			"offset", record.Offset,
			"error", err,
		)
		return
	}
	if err := c.handler.Handle(ctx, event); err != nil {
		c.logger.ErrorContext(ctx, "event handler failed",
			"event_id", event.ID,
			"type", event.Type,
			"registration_id", event.RegistrationID,
			"error", err,
		)
	}
}

func (c *Consumer) Close() {
	c.client.Close()
}
