// Package account stores local identity accounts.
package account

import (
	"context"
	"strings"
	"sync"

	"ncc/internal/identity/models"
	id "ncc/pkg/domain"
	"ncc/pkg/platform/sentinel"
)

// InMemoryStore keeps accounts in a map keyed by id, with a lowercase email index.
type InMemoryStore struct {
	mu      sync.RWMutex
	byID    map[id.UserID]*models.Account
	byEmail map[string]id.UserID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[id.UserID]*models.Account),
		byEmail: make(map[string]id.UserID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, account *models.Account) error {
	key := strings.ToLower(account.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[account.ID]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.byEmail[key]; ok {
		return sentinel.ErrConflict
	}
	stored := *account
	s.byID[account.ID] = &stored
	s.byEmail[key] = account.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, userID id.UserID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.byID[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	found := *account
	return &found, nil
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	found := *s.byID[userID]
	return &found, nil
}
