package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const backgroundKeyPrefix = "outreach:company:"

// RedisBackgroundCache stores company backgrounds by domain.
type RedisBackgroundCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisBackgroundCache(client *redis.Client, ttl time.Duration) *RedisBackgroundCache {
	if client == nil {
		panic("enrich: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisBackgroundCache{client: client, ttl: ttl}
}

func (c *RedisBackgroundCache) Get(ctx context.Context, domain string) (string, bool, error) {
	val, err := c.client.Get(ctx, backgroundKey(domain)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("enrich: cache get: %w", err)
	}
	return val, true, nil
}

func (c *RedisBackgroundCache) Set(ctx context.Context, domain, background string) error {
	if err := c.client.Set(ctx, backgroundKey(domain), background, c.ttl).Err(); err != nil {
		return fmt.Errorf("enrich: cache set: %w", err)
	}
	return nil
}

func backgroundKey(domain string) string {
	return backgroundKeyPrefix + strings.ToLower(strings.TrimSpace(domain))
}
