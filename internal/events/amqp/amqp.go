// Package amqp publishes and consumes registration events on a durable
// RabbitMQ queue.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ncc/internal/events"
)

// Publisher keeps one connection and channel open and redials when the
// broker closed them.
type Publisher struct {
	url   string
	queue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(url, queue string) *Publisher {
	return &Publisher{url: url, queue: queue}
}

func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return nil, fmt.Errorf("dial broker: %w", err)
		}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := declare(ch, p.queue); err != nil {
		_ = ch.Close()
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	body, err := events.Encode(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Type:         string(event.Type),
		Timestamp:    event.OccurredAt.UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil && !p.conn.IsClosed() {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

func declare(ch *amqp.Channel, queue string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return q, nil
}

// Consumer reads the queue, redialing with backoff until ctx is cancelled.
type Consumer struct {
	url      string
	queue    string
	handler  events.Handler
	logger   *slog.Logger
	prefetch int
}

func NewConsumer(url, queue string, handler events.Handler, logger *slog.Logger) (*Consumer, error) {
	if handler == nil {
		return nil, errors.New("event handler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{url: url, queue: queue, handler: handler, logger: logger, prefetch: 20}, nil
}

func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err == nil {
			backoff = time.Second
			err = c.consume(ctx, conn)
			_ = conn.Close()
		}
		if ctx.Err() != nil {
			return nil
		}
		c.logger.WarnContext(ctx, "event consumer disconnected",
			"error", err,
			"retry_in", backoff,
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	if _, err := declare(ch, c.queue); err != nil {
		return err
	}
	deliveries, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	for d := range deliveries {
		c.handle(ctx, d)
	}
	return errors.New("deliveries channel closed")
}

// handle acks processed and malformed deliveries. Handler failures are
// rejected without requeue so a bad event cannot loop.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	event, err := events.Decode(d.Body)
	if err != nil {
		c.logger.WarnContext(ctx, "skipping malformed event",
			"message_id", d.MessageId,
			"error", err,
		)
		_ = d.Ack(false)
		return
	}
	if err := c.handler.Handle(ctx, event); err != nil {
		c.logger.ErrorContext(ctx, "event handler failed",
			"event_id", event.ID,
			"type", event.Type,
			"registration_id", event.RegistrationID,
			"error", err,
		)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}
