package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amica-legal/amica/internal/domain"
)

// RedisCache is a TierCache backed by Redis, shared across instances so a
// webhook applied on one instance invalidates reads everywhere.
type RedisCache struct {
	client *redis.Client
	prefix string
}

var _ TierCache = (*RedisCache)(nil)

// NewRedisCache creates a cache on an existing Redis client. Keys are
// namespaced under "entitlement:".
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: "entitlement:",
	}
}

func (c *RedisCache) key(userID string) string {
	return c.prefix + userID
}

func (c *RedisCache) Get(ctx context.Context, userID string) (*domain.EntitlementRecord, bool, error) {
	data, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var rec domain.EntitlementRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		// A corrupt entry is a miss, not a failure. The resolver will
		// overwrite it from the store.
		return nil, false, nil
	}
	return &rec, true, nil
}

func (c *RedisCache) Set(ctx context.Context, userID string, rec *domain.EntitlementRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal entitlement: %w", err)
	}
	if err := c.client.Set(ctx, c.key(userID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
