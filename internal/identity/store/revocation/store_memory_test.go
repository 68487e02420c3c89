package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncc/pkg/platform/sentinel"
)

func TestInMemoryTRL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	trl := NewInMemoryTRL(WithClock(func() time.Time { return now }))

	revoked, err := trl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, trl.RevokeToken(ctx, "jti-1", time.Minute))
	revoked, err = trl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	now = now.Add(2 * time.Minute)
	revoked, err = trl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked, "entry expires with the token")

	assert.ErrorIs(t, trl.RevokeToken(ctx, "jti-2", 0), sentinel.ErrInvalidState)
	assert.NoError(t, trl.RevokeToken(ctx, "", time.Minute))
}
