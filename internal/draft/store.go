// Package draft holds the intermediate signup data of a session across steps.
package draft

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"onboarding_backend/internal/config"
	platformredis "onboarding_backend/internal/platform/redis"
)

// ErrNotFound is returned by Store.Load when the entry does not exist or has expired.
var ErrNotFound = errors.New("draft: entry not found")

// Store is the raw session-scoped key/value storage. Every write sets the
// entry's expiry; a ttl of zero means the store's draft TTL.
type Store interface {
	Load(ctx context.Context, sid, key string) ([]byte, error)
	Save(ctx context.Context, sid, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, sid string, keys ...string) error
}

func entryKey(sid, key string) string {
	return fmt.Sprintf("draft:%s:%s", sid, key)
}

// NewStore builds the backend selected by DRAFT_STORE.
func NewStore(cfg *config.Config, logger *zap.Logger) (Store, func(), error) {
	ttl := cfg.DraftTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	if cfg.DraftStore == config.DraftStoreRedis {
		client, err := platformredis.NewClient(cfg.RedisURL, cfg.RedisPassword, logger)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close redis client", zap.Error(err))
			}
		}
		logger.Info("Draft store backed by redis", zap.Duration("ttl", ttl))
		return NewRedisStore(client, ttl), cleanup, nil
	}

	logger.Info("Draft store backed by process memory", zap.Duration("ttl", ttl))
	return NewMemoryStore(ttl), func() {}, nil
}
