package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps submission keys in process.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Claim implements Store.
func (s *MemoryStore) Claim(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error) {
	now = now.UTC()
	id := documentID(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok || entry.expired(now) {
		entry = pendingEntry(key, fingerprint, now, ttlOrDefault(ttl))
		s.entries[id] = entry
		return Claim{Outcome: OutcomeFresh, Entry: entry}, nil
	}
	return claimFor(entry, fingerprint)
}

// Complete implements Store.
func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	id := documentID(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if ok && entry.Fingerprint != fingerprint {
		return ErrKeyReused
	}
	if !ok {
		entry = Entry{Key: key, Fingerprint: fingerprint, CreatedAt: now}
	}
	entry.State = StateDone
	entry.Status = resp.Status
	entry.Header = storedHeader(resp.Header)
	entry.Body = append([]byte(nil), resp.Body...)
	entry.ExpiresAt = now.Add(ttlOrDefault(ttl))
	s.entries[id] = entry
	return nil
}

// Abandon implements Store.
func (s *MemoryStore) Abandon(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, documentID(key))
	s.mu.Unlock()
	return nil
}

// Purge implements Store. A non-positive limit removes every expired entry.
func (s *MemoryStore) Purge(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if limit > 0 && removed >= limit {
			break
		}
		if entry.expired(now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of remembered keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
