package resolver

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"lumenpay/internal/identity/models"
)

// RedisCache is a Redis-backed resolution cache. Cache failures degrade to
// registry lookups; they are logged and never surfaced to the caller.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

type cachedResolution struct {
	Address string `json:"address"`
	Handle  string `json:"handle"`
	OwnerID string `json:"owner_id"`
}

func (c *RedisCache) key(handle string) string {
	return "resolve:" + handle
}

func (c *RedisCache) Get(ctx context.Context, handle string) (Resolution, bool) {
	raw, err := c.client.Get(ctx, c.key(handle)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("resolver cache get failed", "handle", handle, "error", err)
		}
		return Resolution{}, false
	}
	var cached cachedResolution
	if err := json.Unmarshal(raw, &cached); err != nil {
		return Resolution{}, false
	}
	return Resolution{
		Address: cached.Address,
		Handle:  models.Handle(cached.Handle),
		OwnerID: cached.OwnerID,
	}, true
}

func (c *RedisCache) Set(ctx context.Context, handle string, res Resolution) {
	raw, err := json.Marshal(cachedResolution{
		Address: res.Address,
		Handle:  string(res.Handle),
		OwnerID: res.OwnerID,
	})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(handle), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("resolver cache set failed", "handle", handle, "error", err)
	}
}
