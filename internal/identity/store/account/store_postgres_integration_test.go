//go:build integration

package account_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ncc/internal/identity/models"
	"ncc/internal/identity/store/account"
	id "ncc/pkg/domain"
	"ncc/pkg/platform/sentinel"
	"ncc/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *account.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = account.NewPostgres(s.postgres.Pool)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "accounts"))
}

func newAccount(email string) *models.Account {
	return &models.Account{
		ID:           id.NewUserID(),
		Email:        email,
		Name:         "Integration",
		PasswordHash: "$2a$04$hash",
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	acc := newAccount("round.trip@example.com")
	s.Require().NoError(s.store.Create(ctx, acc))

	byID, err := s.store.FindByID(ctx, acc.ID)
	s.Require().NoError(err)
	s.Equal(acc.Email, byID.Email)
	s.True(acc.CreatedAt.Equal(byID.CreatedAt))

	byEmail, err := s.store.FindByEmail(ctx, "ROUND.TRIP@example.com")
	s.Require().NoError(err)
	s.Equal(acc.ID, byEmail.ID)

	_, err = s.store.FindByID(ctx, id.NewUserID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentSignup verifies exactly one account wins a racing email.
func (s *PostgresStoreSuite) TestConcurrentSignup() {
	ctx := context.Background()
	const goroutines = 20
	var wg sync.WaitGroup
	var ok, conflict atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Create(ctx, newAccount("race@example.com"))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflict.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), ok.Load())
	s.Equal(int32(goroutines-1), conflict.Load())
}
