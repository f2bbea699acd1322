package memory

import (
	"context"
	"sync"

	audit "notary/pkg/platform/audit"
)

// InMemoryStore keeps events in append order. It backs the in-memory deployment and tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
	// failNext makes the next Append fail; tests use it to exercise fail-closed paths.
	failNext error
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// FailNextAppend makes the next Append return err without persisting anything.
func (s *InMemoryStore) FailNextAppend(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *InMemoryStore) Append(_ context.Context, events ...audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	s.events = append(s.events, events...)
	return nil
}

// Savepoint records the current log length and returns a function that discards
// anything appended after it. The in-memory document transaction calls it to undo the
// emissions of a rolled-back operation.
func (s *InMemoryStore) Savepoint() (rollback func()) {
	s.mu.RLock()
	n := len(s.events)
	s.mu.RUnlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if n < len(s.events) {
			s.events = s.events[:n]
		}
	}
}

// Len returns the number of persisted events.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func (s *InMemoryStore) ListByAggregate(_ context.Context, aggregateID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListRecent returns the most recent N events, oldest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.events) - limit
	if start < 0 || limit <= 0 {
		start = 0
	}
	return append([]audit.Event{}, s.events[start:]...), nil
}
