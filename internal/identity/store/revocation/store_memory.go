// Package revocation tracks logged-out access tokens by jti until they expire.
package revocation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ncc/pkg/platform/sentinel"
)

type Clock func() time.Time

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %w", sentinel.ErrInvalidState)
	}
	return nil
}

// InMemoryTRL is a single-process token revocation list.
type InMemoryTRL struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	clock   Clock
}

type InMemoryOption func(*InMemoryTRL)

func WithClock(clock Clock) InMemoryOption {
	return func(t *InMemoryTRL) {
		if clock != nil {
			t.clock = clock
		}
	}
}

func NewInMemoryTRL(opts ...InMemoryOption) *InMemoryTRL {
	t := &InMemoryTRL{revoked: make(map[string]time.Time), clock: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *InMemoryTRL) RevokeToken(_ context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return nil
	}
	if err := validateTTL(ttl); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.revoked[jti] = t.clock().Add(ttl)
	return nil
}

func (t *InMemoryTRL) IsRevoked(_ context.Context, jti string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	expiresAt, ok := t.revoked[jti]
	if !ok {
		return false, nil
	}
	if t.clock().After(expiresAt) {
		delete(t.revoked, jti)
		return false, nil
	}
	return true, nil
}
