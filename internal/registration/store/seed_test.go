package store

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ncc/internal/docstore"
	"ncc/internal/docstore/memory"
	identityservice "ncc/internal/identity/service"
	"ncc/internal/identity/store/account"
	"ncc/internal/identity/store/revocation"
	"ncc/internal/identity/token"
	"ncc/internal/registration/models"
)

func TestSeedAdmin(t *testing.T) {
	ctx := context.Background()
	svc, err := identityservice.New(account.NewInMemory(), revocation.NewInMemoryTRL(),
		token.New("seed-key", "ncc-test", time.Hour),
		identityservice.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		identityservice.WithBcryptCost(bcrypt.MinCost),
	)
	require.NoError(t, err)
	profiles := NewProfiles(memory.New[models.Profile]())

	first, err := SeedAdmin(ctx, svc, profiles, "Staff@NCC.test", "secret1", "Staff")
	require.NoError(t, err)
	ok, err := profiles.IsAdmin(ctx, first)
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("rerun recovers the same account", func(t *testing.T) {
		require.NoError(t, profiles.Update(ctx, first, docstore.Fields{models.FieldRole: models.RoleUser}))
		again, err := SeedAdmin(ctx, svc, profiles, "staff@ncc.test", "secret1", "Staff")
		require.NoError(t, err)
		assert.Equal(t, first, again)
		ok, err := profiles.IsAdmin(ctx, again)
		require.NoError(t, err)
		assert.True(t, ok, "role is restored")
	})

	t.Run("wrong password for existing account", func(t *testing.T) {
		_, err := SeedAdmin(ctx, svc, profiles, "staff@ncc.test", "other-password", "Staff")
		assert.Error(t, err)
	})
}
