package storage

import (
	"bytes"
	"context"
	"sync"
	"time"
)

var _ MessageStore = (*MemoryStore)(nil)

// MemoryStore is a process-local MessageStore. It mirrors the Redis list
// semantics (key-level TTL, remove-by-value) and backs tests and single-node
// deployments.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]*memoryKey
	now  func() time.Time
}

type memoryKey struct {
	items     [][]byte
	expiresAt time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys: make(map[string]*memoryKey),
		now:  time.Now,
	}
}

func (s *MemoryStore) Push(_ context.Context, key string, item []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := s.live(key)
	if k == nil {
		k = &memoryKey{}
		s.keys[key] = k
	}
	k.items = append(k.items, append([]byte(nil), item...))
	if ttl > 0 {
		k.expiresAt = s.now().Add(ttl)
	}
	return nil
}

func (s *MemoryStore) ReadAll(_ context.Context, key string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := s.live(key)
	if k == nil {
		return nil, nil
	}
	items := make([][]byte, len(k.items))
	for i, item := range k.items {
		items[i] = append([]byte(nil), item...)
	}
	return items, nil
}

func (s *MemoryStore) RemoveOne(_ context.Context, key string, item []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := s.live(key)
	if k == nil {
		return nil
	}
	for i, existing := range k.items {
		if bytes.Equal(existing, item) {
			k.items = append(k.items[:i], k.items[i+1:]...)
			break
		}
	}
	if len(k.items) == 0 {
		delete(s.keys, key)
	}
	return nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if k := s.live(key); k != nil && ttl > 0 {
		k.expiresAt = s.now().Add(ttl)
	}
	return nil
}

// live returns the entry for key, dropping it first if its TTL elapsed.
// Callers hold the mutex.
func (s *MemoryStore) live(key string) *memoryKey {
	k, ok := s.keys[key]
	if !ok {
		return nil
	}
	if !k.expiresAt.IsZero() && !s.now().Before(k.expiresAt) {
		delete(s.keys, key)
		return nil
	}
	return k
}
