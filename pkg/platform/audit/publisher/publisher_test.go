package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "ncc/pkg/domain"
	audit "ncc/pkg/platform/audit"
	"ncc/pkg/platform/audit/store/memory"
	"ncc/pkg/requestcontext"
)

func newUserID() id.UserID {
	return id.UserID(uuid.NewString())
}

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	userID := newUserID()
	err := pub.Emit(context.Background(), audit.Event{
		UserID: userID,
		Action: string(audit.EventAccountCreated),
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventAccountCreated), events[0].Action)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.NotEmpty(t, events[0].ID)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	userID := newUserID()
	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{
			UserID: userID,
			Action: string(audit.EventDocumentUploaded),
		}))
	}

	pub.Close()

	events, err := store.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_CloseIsIdempotent(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	pub.Close()
	pub.Close()
}

func TestPublisher_BufferFull(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	userID := newUserID()
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pub.Emit(context.Background(), audit.Event{UserID: userID, Action: string(audit.EventLoginSucceeded)}); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.True(t, errors.Is(err, ErrBufferFull))
	}
}

func TestPublisher_CancelledContextInAsyncMode(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(4))
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pub.Emit(ctx, audit.Event{UserID: newUserID(), Action: string(audit.EventLoggedOut)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPublisher_Stamping(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	t.Run("uses request time and request id", func(t *testing.T) {
		userID := newUserID()
		at := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
		ctx := requestcontext.WithTime(context.Background(), at)
		ctx = requestcontext.WithRequestID(ctx, "req-42")
		ctx = requestcontext.WithDevice(ctx, "Firefox on Linux")

		require.NoError(t, pub.Emit(ctx, audit.Event{UserID: userID, Action: string(audit.EventAgreementAccepted)}))

		events, err := pub.List(context.Background(), userID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, at, events[0].Timestamp)
		assert.Equal(t, "req-42", events[0].RequestID)
		assert.Equal(t, "Firefox on Linux", events[0].Device)
	})

	t.Run("preserves explicit timestamp and category", func(t *testing.T) {
		userID := newUserID()
		custom := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, pub.Emit(context.Background(), audit.Event{
			UserID:    userID,
			Action:    "custom_action",
			Timestamp: custom,
			Category:  audit.CategorySecurity,
		}))

		events, err := pub.List(context.Background(), userID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, custom, events[0].Timestamp)
		assert.Equal(t, audit.CategorySecurity, events[0].Category)
	})
}

func TestAuditEventCategory(t *testing.T) {
	assert.Equal(t, audit.CategorySecurity, audit.EventRegistrationDivergence.Category())
	assert.Equal(t, audit.CategoryCompliance, audit.EventRegistrationStatusChanged.Category())
	assert.Equal(t, audit.CategoryOperations, audit.AuditEvent("unknown").Category())
	assert.True(t, audit.EventPaymentStatusChanged.IsTransition())
	assert.False(t, audit.EventDocumentUploaded.IsTransition())
}
