// Package session stores the transient wizard state between requests.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"ncc/internal/registration/models"
	id "ncc/pkg/domain"
	"ncc/pkg/platform/sentinel"
)

const keyPrefix = "ncc:wizard:"

// InMemory keeps sessions in a map with lazy expiry.
type InMemory struct {
	mu       sync.Mutex
	sessions map[id.UserID]entry
	ttl      time.Duration
	now      func() time.Time
}

type entry struct {
	data      []byte
	expiresAt time.Time
}

func NewInMemory(ttl time.Duration) *InMemory {
	return &InMemory{sessions: make(map[id.UserID]entry), ttl: ttl, now: time.Now}
}

// Get returns sentinel.ErrNotFound when no live session exists.
func (s *InMemory) Get(_ context.Context, userID id.UserID) (*models.WizardSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if s.ttl > 0 && s.now().After(e.expiresAt) {
		delete(s.sessions, userID)
		return nil, sentinel.ErrNotFound
	}
	return decode(e.data)
}

// Save replaces the session and refreshes its lifetime. Sessions are
// serialized so callers never share mutable state.
func (s *InMemory) Save(_ context.Context, sess *models.WizardSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode wizard session: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.UserID] = entry{data: data, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *InMemory) Delete(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

// Redis keeps sessions as JSON strings with a TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (s *Redis) Get(ctx context.Context, userID id.UserID) (*models.WizardSession, error) {
	data, err := s.client.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get wizard session: %w", err)
	}
	return decode(data)
}

func (s *Redis) Save(ctx context.Context, sess *models.WizardSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode wizard session: %w", err)
	}
	if err := s.client.Set(ctx, key(sess.UserID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save wizard session: %w", err)
	}
	return nil
}

func (s *Redis) Delete(ctx context.Context, userID id.UserID) error {
	if err := s.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("delete wizard session: %w", err)
	}
	return nil
}

func key(userID id.UserID) string {
	return keyPrefix + string(userID)
}

func decode(data []byte) (*models.WizardSession, error) {
	var sess models.WizardSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode wizard session: %w", err)
	}
	if sess.Documents == nil {
		sess.Documents = map[models.DocumentKind]models.SessionDocument{}
	}
	return &sess, nil
}
