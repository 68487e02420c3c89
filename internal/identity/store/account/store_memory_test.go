package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ncc/internal/identity/models"
	id "ncc/pkg/domain"
	"ncc/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func newAccount(email string) *models.Account {
	return &models.Account{
		ID:           id.NewUserID(),
		Email:        email,
		Name:         "Test",
		PasswordHash: "hash",
		CreatedAt:    time.Now(),
	}
}

func (s *InMemoryStoreSuite) TestLookup() {
	account := newAccount("alice@example.com")
	s.Require().NoError(s.store.Create(s.ctx, account))

	s.Run("by id", func() {
		found, err := s.store.FindByID(s.ctx, account.ID)
		s.Require().NoError(err)
		s.Equal(account.Email, found.Email)
	})

	s.Run("by email ignores case", func() {
		found, err := s.store.FindByEmail(s.ctx, "Alice@Example.com")
		s.Require().NoError(err)
		s.Equal(account.ID, found.ID)
	})

	s.Run("missing returns ErrNotFound", func() {
		_, err := s.store.FindByID(s.ctx, id.NewUserID())
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.store.FindByEmail(s.ctx, "nobody@example.com")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returned accounts are copies", func() {
		found, err := s.store.FindByID(s.ctx, account.ID)
		s.Require().NoError(err)
		found.Name = "changed"
		again, _ := s.store.FindByID(s.ctx, account.ID)
		s.Equal("Test", again.Name)
	})
}

func (s *InMemoryStoreSuite) TestEmailUnique() {
	s.Require().NoError(s.store.Create(s.ctx, newAccount("bob@example.com")))
	err := s.store.Create(s.ctx, newAccount("BOB@example.com"))
	s.ErrorIs(err, sentinel.ErrConflict)
}
