package audit

import (
	"context"
	"sync"
)

// MemoryStore keeps events in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// List returns all events in the order they were appended.
func (s *MemoryStore) List(_ context.Context) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events...), nil
}

// ListByLibrary returns the events recorded for one OPDS URL.
func (s *MemoryStore) ListByLibrary(_ context.Context, opdsURL string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.OPDSURL == opdsURL {
			out = append(out, e)
		}
	}
	return out, nil
}
