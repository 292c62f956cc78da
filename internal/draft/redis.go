package draft

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares drafts between server instances.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, sid, key string) ([]byte, error) {
	raw, err := s.client.Get(ctx, entryKey(sid, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *RedisStore) Save(ctx context.Context, sid, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	return s.client.Set(ctx, entryKey(sid, key), value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, sid string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = entryKey(sid, k)
	}
	return s.client.Del(ctx, full...).Err()
}
