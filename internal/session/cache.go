package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

const (
	DefaultCacheSize = 4096
	DefaultCacheTTL  = 5 * time.Minute
	redisKeyPrefix   = "session:"
)

// Cache stores verified identities keyed by token hash.
type Cache interface {
	Get(ctx context.Context, key string) (Identity, bool)
	Set(ctx context.Context, key string, id Identity, ttl time.Duration)
}

// TieredCache checks a process-local LRU first and an optional Redis tier second.
// Redis failures degrade to a miss.
type TieredCache struct {
	local  *expirable.LRU[string, Identity]
	redis  *redis.Client
	ttl    time.Duration
	now    func() time.Time
	logger *logging.Logger
}

type CacheOption func(*TieredCache)

// WithRedis adds a shared tier so replicas reuse each other's verifications.
func WithRedis(client *redis.Client) CacheOption {
	return func(c *TieredCache) { c.redis = client }
}

func NewTieredCache(size int, ttl time.Duration, logger *logging.Logger, opts ...CacheOption) *TieredCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &TieredCache{
		local:  expirable.NewLRU[string, Identity](size, nil, ttl),
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TieredCache) Get(ctx context.Context, key string) (Identity, bool) {
	if id, ok := c.local.Get(key); ok {
		if c.live(id) {
			return id, true
		}
		c.local.Remove(key)
	}
	if c.redis == nil {
		return Identity{}, false
	}

	data, err := c.redis.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("session cache read failed", "error", err)
		}
		return Identity{}, false
	}
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil || !c.live(id) {
		return Identity{}, false
	}
	c.local.Add(key, id)
	return id, true
}

// Set never keeps an entry past the token's own expiry.
func (c *TieredCache) Set(ctx context.Context, key string, id Identity, ttl time.Duration) {
	if ttl <= 0 || ttl > c.ttl {
		ttl = c.ttl
	}
	if !id.ExpiresAt.IsZero() {
		if remaining := id.ExpiresAt.Sub(c.now()); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return
	}

	c.local.Add(key, id)
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(id)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, redisKeyPrefix+key, data, ttl).Err(); err != nil {
		c.logger.Warn("session cache write failed", "error", fmt.Errorf("session: redis set: %w", err))
	}
}

func (c *TieredCache) live(id Identity) bool {
	return id.ExpiresAt.IsZero() || c.now().Before(id.ExpiresAt)
}
