package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ MessageStore = (*RedisStore)(nil)

// RedisStore implements MessageStore on a Redis list per key. The contract
// maps directly onto list commands: Push is RPUSH plus EXPIRE, ReadAll is
// LRANGE, RemoveOne is LREM with count 1.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store backed by client. The caller owns the
// client's lifecycle.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Push(ctx context.Context, key string, item []byte, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, item)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis push")
	}
	return nil
}

func (s *RedisStore) ReadAll(ctx context.Context, key string) ([][]byte, error) {
	values, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis read")
	}
	items := make([][]byte, len(values))
	for i, v := range values {
		items[i] = []byte(v)
	}
	return items, nil
}

func (s *RedisStore) RemoveOne(ctx context.Context, key string, item []byte) error {
	if err := s.client.LRem(ctx, key, 1, item).Err(); err != nil {
		return errors.Wrap(err, "redis remove")
	}
	return nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return errors.Wrap(err, "redis expire")
	}
	return nil
}
