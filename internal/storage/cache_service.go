package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CacheService stores JSON-encoded query results in Redis. Leaderboard keys
// embed a per-community generation counter, so bumping the counter makes
// every cached page of that community unreachable at once.
type CacheService struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewCacheService creates a new cache service
func NewCacheService(redis *RedisCache, ttl time.Duration) *CacheService {
	return &CacheService{
		redis: redis,
		ttl:   ttl,
	}
}

// CacheKeyType represents different types of cache keys
type CacheKeyType string

const (
	// CacheKeyLeaderboard is for leaderboard pages
	CacheKeyLeaderboard CacheKeyType = "leaderboard"
	// CacheKeyRank is for single player ranks
	CacheKeyRank CacheKeyType = "rank"
	// CacheKeyGeneration is for per-community generation counters
	CacheKeyGeneration CacheKeyType = "lbgen"
)

// GenerateCacheKey generates a cache key for a given type and parameters
// Format: <type>:<param1>:<param2>:...
func (c *CacheService) GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	parts := append([]string{string(keyType)}, params...)
	return strings.Join(parts, ":")
}

// Generation returns the community's current cache generation (0 if unset)
func (c *CacheService) Generation(ctx context.Context, communityID string) (int64, error) {
	value, err := c.redis.Get(ctx, c.GenerateCacheKey(CacheKeyGeneration, communityID))
	if errors.Is(err, ErrCacheMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}

	gen, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cache generation %q: %w", value, err)
	}
	return gen, nil
}

// BumpGeneration invalidates every cached result of the community
func (c *CacheService) BumpGeneration(ctx context.Context, communityID string) error {
	if _, err := c.redis.Incr(ctx, c.GenerateCacheKey(CacheKeyGeneration, communityID)); err != nil {
		return fmt.Errorf("failed to bump cache generation: %w", err)
	}
	return nil
}

// Set stores a value in cache with the configured TTL
func (c *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.redis.Set(ctx, key, data, c.ttl)
}

// Get loads a cached value into dest. Reports false on a miss.
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, key)
	if errors.Is(err, ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get from cache: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return true, nil
}
