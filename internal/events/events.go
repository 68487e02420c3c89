// Package events carries registration decisions from the verification
// service to asynchronous consumers such as the notifier.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	id "ncc/pkg/domain"
)

type Type string

const (
	// TypeStatusDecided is published when a registration enters approved or rejected.
	TypeStatusDecided Type = "registration.status_decided"
	// TypePaymentDecided is published when a payment enters approved or rejected.
	TypePaymentDecided Type = "registration.payment_decided"
)

// Event is a decision on one axis of a registration.
type Event struct {
	ID             string            `json:"id"`
	Type           Type              `json:"type"`
	RegistrationID id.RegistrationID `json:"registrationId"`
	UserID         id.UserID         `json:"userId"`
	Email          string            `json:"email"`
	Name           string            `json:"name"`
	From           string            `json:"from"`
	To             string            `json:"to"`
	ActorID        string            `json:"actorId,omitempty"`
	OccurredAt     time.Time         `json:"occurredAt"`
}

// New stamps an event with an id and time.
func New(t Type, now time.Time) Event {
	return Event{ID: uuid.NewString(), Type: t, OccurredAt: now}
}

// Key partitions events so one registration's decisions stay ordered.
func (e Event) Key() []byte {
	return []byte(e.RegistrationID)
}

func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.Type == "" || e.RegistrationID.IsNil() {
		return Event{}, fmt.Errorf("decode event: missing type or registration id")
	}
	return e, nil
}

// Publisher sends events to a transport.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Handler processes consumed events. A returned error means the event
// should be retried or dead-lettered by the transport.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// LogPublisher writes events to the log. It is used when no broker is
// configured and as the fallback when the broker is unavailable.
type LogPublisher struct {
	logger  *slog.Logger
	handler Handler
}

// NewLogPublisher logs every event. A non-nil handler is also invoked inline,
// so notifications still go out without a broker.
func NewLogPublisher(logger *slog.Logger, handler Handler) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger, handler: handler}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.InfoContext(ctx, "registration event",
		"event_id", event.ID,
		"type", event.Type,
		"registration_id", event.RegistrationID,
		"user_id", event.UserID,
		"from", event.From,
		"to", event.To,
	)
	if p.handler == nil {
		return nil
	}
	return p.handler.Handle(ctx, event)
}

func (p *LogPublisher) Close() error {
	return nil
}
