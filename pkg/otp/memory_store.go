package otp

import (
	"context"
	"sync"
	"time"
)

// MemoryCodeStore keeps pending codes in process memory. Suitable for
// single-instance deployments and tests; use the Redis store when the
// server runs as multiple replicas.
type MemoryCodeStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	code     string
	expires  time.Time
	attempts int
}

var _ CodeStore = &MemoryCodeStore{}

func NewMemoryCodeStore() *MemoryCodeStore {
	return &MemoryCodeStore{entries: map[string]*memoryEntry{}}
}

func (s *MemoryCodeStore) SetCode(_ context.Context, phone, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[phone] = &memoryEntry{code: code, expires: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryCodeStore) GetCode(_ context.Context, phone string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[phone]
	if e == nil || time.Now().After(e.expires) {
		return "", nil
	}
	return e.code, nil
}

func (s *MemoryCodeStore) BumpAttempts(_ context.Context, phone string, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[phone]
	if e == nil {
		e = &memoryEntry{expires: time.Now().Add(ttl)}
		s.entries[phone] = e
	}
	e.attempts++
	return e.attempts, nil
}

func (s *MemoryCodeStore) Clear(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, phone)
	return nil
}
