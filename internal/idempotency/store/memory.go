package store

import (
	"context"
	"sync"
	"time"

	"notary/internal/idempotency"
)

type entry struct {
	rec       idempotency.Record
	expiresAt time.Time
}

// InMemory keeps idempotency records in process. Expired entries are dropped lazily.
type InMemory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[string]entry), now: time.Now}
}

func (s *InMemory) Reserve(_ context.Context, key, digest string, ttl time.Duration) (*idempotency.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		rec := e.rec
		return &rec, false, nil
	}
	s.entries[key] = entry{
		rec:       idempotency.Record{Digest: digest, Pending: true},
		expiresAt: now.Add(ttl),
	}
	return nil, true, nil
}

func (s *InMemory) Complete(_ context.Context, key string, rec idempotency.Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Pending = false
	rec.Body = append([]byte(nil), rec.Body...)
	s.entries[key] = entry{rec: rec, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *InMemory) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
