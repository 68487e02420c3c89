package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_StartsClosed(t *testing.T) {
	b := New("broker")
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "closed", b.State().String())
	assert.Equal(t, "broker", b.Name())
}

func TestBreaker_Opening(t *testing.T) {
	b := New("broker", WithFailureThreshold(3))

	for range 2 {
		useFallback, change := b.RecordFailure()
		assert.False(t, useFallback)
		assert.False(t, change.Opened)
	}

	useFallback, change := b.RecordFailure()
	assert.True(t, useFallback)
	assert.True(t, change.Opened)
	assert.True(t, b.IsOpen())

	useFallback, change = b.RecordFailure()
	assert.True(t, useFallback, "open circuit keeps using the fallback")
	assert.False(t, change.Opened, "already open")
}

func TestBreaker_Closing(t *testing.T) {
	b := New("broker", WithFailureThreshold(1), WithSuccessThreshold(2))
	b.RecordFailure()
	assert.True(t, b.IsOpen())

	usePrimary, change := b.RecordSuccess()
	assert.False(t, usePrimary)
	assert.False(t, change.Closed)

	usePrimary, change = b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)
	assert.False(t, b.IsOpen())
}

func TestBreaker_CountersReset(t *testing.T) {
	t.Run("success clears failures while closed", func(t *testing.T) {
		b := New("broker", WithFailureThreshold(3))
		b.RecordFailure()
		b.RecordFailure()
		b.RecordSuccess()
		b.RecordFailure()
		b.RecordFailure()
		assert.False(t, b.IsOpen())
		b.RecordFailure()
		assert.True(t, b.IsOpen())
	})

	t.Run("failure clears successes while open", func(t *testing.T) {
		b := New("broker", WithFailureThreshold(1), WithSuccessThreshold(3))
		b.RecordFailure()
		b.RecordSuccess()
		b.RecordSuccess()
		b.RecordFailure()
		b.RecordSuccess()
		b.RecordSuccess()
		assert.True(t, b.IsOpen())
		b.RecordSuccess()
		assert.False(t, b.IsOpen())
	})

	t.Run("reset closes", func(t *testing.T) {
		b := New("broker", WithFailureThreshold(1))
		b.RecordFailure()
		b.Reset()
		assert.Equal(t, StateClosed, b.State())
	})
}
