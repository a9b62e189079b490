package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/apssouza22/keyfetch/internal/core/domain"
)

const defaultTTL = 24 * time.Hour

// Config holds Redis cache configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	TTL      string `yaml:"ttl"` // e.g. "24h", 0 keys forever
}

// RedisCache stores fetched keys in Redis with a TTL.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis creates a Redis-backed key cache.
func NewRedis(cfg Config) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	ttl := defaultTTL
	if cfg.TTL != "" {
		ttl, err = time.ParseDuration(cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("invalid cache ttl %q: %w", cfg.TTL, err)
		}
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{rdb: rdb, ttl: ttl}, nil
}

func cacheKey(fp domain.Fingerprint) string {
	return fmt.Sprintf("pgp_key:%s", fp)
}

// Get returns the cached key, or nil on a miss.
func (c *RedisCache) Get(ctx context.Context, fp domain.Fingerprint) (*domain.PublicKey, error) {
	data, err := c.rdb.Get(ctx, cacheKey(fp)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var key domain.PublicKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("invalid cached key: %w", err)
	}
	return &key, nil
}

// Put stores a fetched key with the configured TTL.
func (c *RedisCache) Put(ctx context.Context, key *domain.PublicKey) error {
	data, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}
	if err := c.rdb.Set(ctx, cacheKey(key.Fingerprint), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
