package memory

import (
	"context"
	"sort"
	"sync"

	id "ncc/pkg/domain"
	audit "ncc/pkg/platform/audit"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListByUser returns a user's events in insertion order.
func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListByRegistration returns a registration's transition history, oldest first.
func (s *InMemoryStore) ListByRegistration(_ context.Context, registrationID id.RegistrationID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.RegistrationID == registrationID && audit.AuditEvent(e.Action).IsTransition() {
			out = append(out, e)
		}
	}
	sortOldestFirst(out)
	return out, nil
}

func (s *InMemoryStore) ListByRegistrations(_ context.Context, registrationIDs []id.RegistrationID) (map[id.RegistrationID][]audit.Event, error) {
	want := make(map[id.RegistrationID]struct{}, len(registrationIDs))
	for _, regID := range registrationIDs {
		want[regID] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.RegistrationID][]audit.Event, len(registrationIDs))
	for _, e := range s.events {
		if _, ok := want[e.RegistrationID]; ok && audit.AuditEvent(e.Action).IsTransition() {
			out[e.RegistrationID] = append(out[e.RegistrationID], e)
		}
	}
	for regID := range out {
		sortOldestFirst(out[regID])
	}
	return out, nil
}

// ListRecent returns the most recent N events, newest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	all := append([]audit.Event{}, s.events...)
	s.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func sortOldestFirst(events []audit.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}
