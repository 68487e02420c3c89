package events

import (
	"context"
	"errors"
	"log/slog"

	"ncc/pkg/platform/circuit"
)

// FallbackPublisher publishes to a broker and diverts events to a fallback
// publisher while the broker's circuit is open.
type FallbackPublisher struct {
	primary  Publisher
	fallback Publisher
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewFallbackPublisher(primary, fallback Publisher, breaker *circuit.Breaker, logger *slog.Logger) *FallbackPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackPublisher{primary: primary, fallback: fallback, breaker: breaker, logger: logger}
}

// Publish returns nil when the fallback accepted the event.
func (p *FallbackPublisher) Publish(ctx context.Context, event Event) error {
	err := p.primary.Publish(ctx, event)
	if err == nil {
		if _, change := p.breaker.RecordSuccess(); change.Closed {
			p.logger.InfoContext(ctx, "event broker recovered", "breaker", p.breaker.Name())
		}
		return nil
	}

	useFallback, change := p.breaker.RecordFailure()
	if change.Opened {
		p.logger.WarnContext(ctx, "event broker circuit opened",
			"breaker", p.breaker.Name(),
			"error", err,
		)
	}
	if !useFallback {
		return err
	}
	if fbErr := p.fallback.Publish(ctx, event); fbErr != nil {
		return errors.Join(err, fbErr)
	}
	return nil
}

func (p *FallbackPublisher) Close() error {
	return errors.Join(p.primary.Close(), p.fallback.Close())
}
