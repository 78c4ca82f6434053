package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Push(ctx, "k", []byte("a"), time.Hour))
	require.NoError(t, store.Push(ctx, "k", []byte("b"), time.Hour))
	require.NoError(t, store.Push(ctx, "k", []byte("a"), time.Hour))

	items, err := store.ReadAll(ctx, "k")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "a", string(items[0]), "items come back oldest first")

	require.NoError(t, store.RemoveOne(ctx, "k", []byte("a")))
	items, err = store.ReadAll(ctx, "k")
	require.NoError(t, err)
	require.Len(t, items, 2, "remove-by-value takes a single occurrence")
	assert.Equal(t, "b", string(items[0]))
	assert.Equal(t, "a", string(items[1]))
}

func TestMemoryStoreUnknownKey(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	items, err := store.ReadAll(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.NoError(t, store.RemoveOne(ctx, "missing", []byte("x")))
	assert.NoError(t, store.Expire(ctx, "missing", time.Minute))
}

func TestMemoryStoreKeyExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Push(ctx, "k", []byte("a"), time.Minute))

	now = now.Add(30 * time.Second)
	items, err := store.ReadAll(ctx, "k")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	now = now.Add(time.Minute)
	items, err = store.ReadAll(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, items, "the whole key expires with its TTL")
}

func TestMemoryStoreExpireRefreshesTTL(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Push(ctx, "k", []byte("a"), time.Minute))
	now = now.Add(50 * time.Second)
	require.NoError(t, store.Expire(ctx, "k", time.Minute))

	now = now.Add(30 * time.Second)
	items, err := store.ReadAll(ctx, "k")
	require.NoError(t, err)
	assert.Len(t, items, 1, "refreshed TTL keeps the key alive")
}

func TestNoopStore(t *testing.T) {
	store := NewNoopStore()
	ctx := context.Background()

	require.NoError(t, store.Push(ctx, "k", []byte("a"), time.Hour))
	items, err := store.ReadAll(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, items, "the no-op store retains nothing")
}
