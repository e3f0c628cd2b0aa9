package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in process. It backs tests and single-instance local runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]entry)}
}

func (s *MemoryStore) Claim(_ context.Context, key, fingerprint string, now, expiresAt time.Time) (Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && !e.expired(now) {
		return claimExisting(e, fingerprint)
	}
	s.entries[key] = entry{Fingerprint: fingerprint, ExpiresAt: expiresAt.UTC()}
	return Claim{State: ClaimAcquired}, nil
}

func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, resp StoredResponse, _, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && e.Fingerprint != fingerprint {
		return ErrKeyReused
	}
	s.entries[key] = completedEntry(fingerprint, resp, expiresAt)
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if limit > 0 && removed >= limit {
			break
		}
		if e.expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}
