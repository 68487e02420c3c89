//go:build integration

package kafka_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ncc/internal/events"
	"ncc/internal/events/kafka"
	"ncc/pkg/testutil/containers"
)

type KafkaSuite struct {
	suite.Suite
	brokers []string
}

func TestKafkaSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSuite))
}

func (s *KafkaSuite) SetupSuite() {
	s.brokers = containers.GetManager().GetRedpanda(s.T()).Brokers
}

type recorder struct {
	mu   sync.Mutex
	seen []events.Event
}

func (r *recorder) Handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, e)
	return nil
}

func (r *recorder) events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.seen...)
}

func (s *KafkaSuite) TestPublishAndConsume() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	topic := "ncc.decisions.test"

	s.Require().NoError(kafka.EnsureTopic(ctx, s.brokers, topic, 1, 1))
	s.Require().NoError(kafka.EnsureTopic(ctx, s.brokers, topic, 1, 1), "existing topic is not an error")

	pub, err := kafka.NewPublisher(s.brokers, topic)
	s.Require().NoError(err)
	defer pub.Close()

	approved := events.New(events.TypeStatusDecided, time.Now().UTC())
	approved.RegistrationID = "NCC-1-AAAAAAAAA"
	approved.UserID = "user-1"
	approved.From = "pending_verification"
	approved.To = "approved"
	s.Require().NoError(pub.Publish(ctx, approved))

	paid := events.New(events.TypePaymentDecided, time.Now().UTC())
	paid.RegistrationID = "NCC-1-AAAAAAAAA"
	paid.To = "approved"
	s.Require().NoError(pub.Publish(ctx, paid))

	rec := &recorder{}
	consumer, err := kafka.NewConsumer(s.brokers, topic, "ncc-test", rec, slog.Default())
	s.Require().NoError(err)
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(runCtx) }()

	s.Eventually(func() bool { return len(rec.events()) == 2 }, 30*time.Second, 200*time.Millisecond)
	got := rec.events()
	s.Equal(approved.ID, got[0].ID, "same registration key keeps order")
	s.Equal(events.TypePaymentDecided, got[1].Type)

	stop()
	s.NoError(<-done)
	consumer.Close()
}
