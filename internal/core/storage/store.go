// Package storage defines the persistence port for offline message queues
// and its implementations. The registry treats the store as best-effort: a
// failing or absent store degrades retention to memory only, never the
// registry itself.
package storage

import (
	"context"
	"time"
)

// MessageStore is the narrow contract the registry needs from an external
// key-value store. Keys follow a one-key-per-user convention; items are
// opaque encoded messages.
type MessageStore interface {
	// Push appends item under key and refreshes the key's TTL.
	Push(ctx context.Context, key string, item []byte, ttl time.Duration) error

	// ReadAll returns every item under key, oldest first.
	ReadAll(ctx context.Context, key string) ([][]byte, error)

	// RemoveOne removes a single occurrence of item from key.
	RemoveOne(ctx context.Context, key string, item []byte) error

	// Expire refreshes the key's TTL.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

var _ MessageStore = (*NoopStore)(nil)

// NoopStore satisfies MessageStore without retaining anything. It is the
// store used when no external persistence is configured; the registry's
// in-memory queues remain the only retention.
type NoopStore struct{}

// NewNoopStore creates a NoopStore.
func NewNoopStore() *NoopStore {
	return &NoopStore{}
}

func (s *NoopStore) Push(context.Context, string, []byte, time.Duration) error { return nil }

func (s *NoopStore) ReadAll(context.Context, string) ([][]byte, error) { return nil, nil }

func (s *NoopStore) RemoveOne(context.Context, string, []byte) error { return nil }

func (s *NoopStore) Expire(context.Context, string, time.Duration) error { return nil }
