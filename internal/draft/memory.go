package draft

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps drafts in process memory. Suitable for a single instance.
type MemoryStore struct {
	entries *cache.Cache
	ttl     time.Duration
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: cache.New(ttl, 2*ttl),
		ttl:     ttl,
	}
}

func (s *MemoryStore) Load(_ context.Context, sid, key string) ([]byte, error) {
	v, ok := s.entries.Get(entryKey(sid, key))
	if !ok {
		return nil, ErrNotFound
	}
	stored := v.([]byte)
	out := make([]byte, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, sid, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	s.entries.Set(entryKey(sid, key), stored, ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sid string, keys ...string) error {
	for _, k := range keys {
		s.entries.Delete(entryKey(sid, k))
	}
	return nil
}
