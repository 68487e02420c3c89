package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncc/pkg/platform/circuit"
)

func decided() Event {
	e := New(TypeStatusDecided, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	e.RegistrationID = "NCC-1772445600000-ABCDEFGHJ"
	e.UserID = "user-1"
	e.Email = "alice@example.com"
	e.From = "pending_verification"
	e.To = "approved"
	return e
}

func TestEncodeDecode(t *testing.T) {
	in := decided()
	data, err := Encode(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"registration.status_decided"`)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, []byte("NCC-1772445600000-ABCDEFGHJ"), out.Key())

	_, err = Decode([]byte(`{"type":"registration.status_decided"}`))
	assert.Error(t, err, "registration id is required")
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

type fakePublisher struct {
	err       error
	published []Event
	closed    bool
}

func (p *fakePublisher) Publish(_ context.Context, e Event) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, e)
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

func TestLogPublisherRunsHandlerInline(t *testing.T) {
	var handled []Event
	pub := NewLogPublisher(slog.New(slog.NewTextHandler(io.Discard, nil)), HandlerFunc(func(_ context.Context, e Event) error {
		handled = append(handled, e)
		return nil
	}))
	require.NoError(t, pub.Publish(context.Background(), decided()))
	assert.Len(t, handled, 1)

	assert.NoError(t, NewLogPublisher(nil, nil).Publish(context.Background(), decided()))
}

func TestFallbackPublisher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("healthy broker is used", func(t *testing.T) {
		primary, fallback := &fakePublisher{}, &fakePublisher{}
		pub := NewFallbackPublisher(primary, fallback, circuit.New("kafka"), logger)
		require.NoError(t, pub.Publish(ctx, decided()))
		assert.Len(t, primary.published, 1)
		assert.Empty(t, fallback.published)
	})

	t.Run("failures divert to fallback once the circuit opens", func(t *testing.T) {
		primary, fallback := &fakePublisher{err: errors.New("broker down")}, &fakePublisher{}
		breaker := circuit.New("kafka", circuit.WithFailureThreshold(2))
		pub := NewFallbackPublisher(primary, fallback, breaker, logger)

		assert.Error(t, pub.Publish(ctx, decided()), "below threshold the failure surfaces")
		assert.NoError(t, pub.Publish(ctx, decided()))
		assert.True(t, breaker.IsOpen())
		assert.Len(t, fallback.published, 1)

		primary.err = nil
		require.NoError(t, pub.Publish(ctx, decided()))
		require.NoError(t, pub.Publish(ctx, decided()))
		assert.False(t, breaker.IsOpen())
	})

	t.Run("close closes both", func(t *testing.T) {
		primary, fallback := &fakePublisher{}, &fakePublisher{}
		require.NoError(t, NewFallbackPublisher(primary, fallback, circuit.New("kafka"), logger).Close())
		assert.True(t, primary.closed)
		assert.True(t, fallback.closed)
	})
}
