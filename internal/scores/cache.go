package scores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/mindcure-agent/internal/domain"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Cache holds recently read scores per user.
type Cache interface {
	Get(ctx context.Context, userID string) (domain.Scores, bool)
	Set(ctx context.Context, userID string, sc domain.Scores)
	Invalidate(ctx context.Context, userID string)
}

// LRUCache is an in-process cache with per-entry expiry.
type LRUCache struct {
	lru *expirable.LRU[string, domain.Scores]
}

// NewLRUCache creates a cache holding at most size users for ttl.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	return &LRUCache{lru: expirable.NewLRU[string, domain.Scores](size, nil, ttl)}
}

// Get implements Cache.
func (c *LRUCache) Get(_ context.Context, userID string) (domain.Scores, bool) {
	return c.lru.Get(userID)
}

// Set implements Cache.
func (c *LRUCache) Set(_ context.Context, userID string, sc domain.Scores) {
	c.lru.Add(userID, sc)
}

// Invalidate implements Cache.
func (c *LRUCache) Invalidate(_ context.Context, userID string) {
	c.lru.Remove(userID)
}

// RedisCache shares cached scores between agent processes.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache connects to the Redis server at url.
func NewRedisCache(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCache{client: client, ttl: ttl, prefix: "mindcure:scores:"}, nil
}

// Get implements Cache. Misses and errors both report false.
func (c *RedisCache) Get(ctx context.Context, userID string) (domain.Scores, bool) {
	raw, err := c.client.Get(ctx, c.prefix+userID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("redis score cache read failed", "user_id", userID, "error", err)
		}
		return domain.Scores{}, false
	}
	var sc domain.Scores
	if err := json.Unmarshal(raw, &sc); err != nil {
		return domain.Scores{}, false
	}
	return sc, true
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, userID string, sc domain.Scores) {
	raw, err := json.Marshal(sc)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+userID, raw, c.ttl).Err(); err != nil {
		slog.Warn("redis score cache write failed", "user_id", userID, "error", err)
	}
}

// Invalidate implements Cache.
func (c *RedisCache) Invalidate(ctx context.Context, userID string) {
	if err := c.client.Del(ctx, c.prefix+userID).Err(); err != nil {
		slog.Warn("redis score cache invalidate failed", "user_id", userID, "error", err)
	}
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
