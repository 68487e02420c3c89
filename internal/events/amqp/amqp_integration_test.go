//go:build integration

package amqp_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ncc/internal/events"
	"ncc/internal/events/amqp"
	"ncc/pkg/testutil/containers"
)

type AMQPSuite struct {
	suite.Suite
	url string
}

func TestAMQPSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AMQPSuite))
}

func (s *AMQPSuite) SetupSuite() {
	s.url = containers.GetManager().GetRabbitMQ(s.T()).URL
}

type recorder struct {
	mu    sync.Mutex
	seen  []events.Event
	fails map[string]bool
}

func (r *recorder) Handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, e)
	if r.fails[e.ID] {
		return errors.New("smtp down")
	}
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func decision(t events.Type, to string) events.Event {
	e := events.New(t, time.Now().UTC())
	e.RegistrationID = "NCC-1-AAAAAAAAA"
	e.UserID = "user-1"
	e.To = to
	return e
}

func (s *AMQPSuite) TestPublishAndConsume() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	queue := "ncc.decisions.test"

	pub := amqp.NewPublisher(s.url, queue)
	defer pub.Close()

	failing := decision(events.TypePaymentDecided, "rejected")
	approved := decision(events.TypeStatusDecided, "approved")
	s.Require().NoError(pub.Publish(ctx, failing))
	s.Require().NoError(pub.Publish(ctx, approved))

	rec := &recorder{fails: map[string]bool{failing.ID: true}}
	consumer, err := amqp.NewConsumer(s.url, queue, rec, slog.Default())
	s.Require().NoError(err)

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(runCtx) }()

	s.Eventually(func() bool { return rec.count() == 2 }, 30*time.Second, 100*time.Millisecond)
	// A failed delivery is dropped rather than redelivered.
	s.Never(func() bool { return rec.count() > 2 }, time.Second, 100*time.Millisecond)

	stop()
	s.NoError(<-done)
}
