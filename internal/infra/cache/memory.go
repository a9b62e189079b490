package cache

import (
	"context"
	"sync"

	"github.com/apssouza22/keyfetch/internal/core/domain"
)

// MemoryCache is a process-local key cache. Used when Redis is not
// configured, and in tests.
type MemoryCache struct {
	mu   sync.RWMutex
	keys map[domain.Fingerprint]*domain.PublicKey
}

// NewMemory creates an in-memory key cache.
func NewMemory() *MemoryCache {
	return &MemoryCache{keys: make(map[domain.Fingerprint]*domain.PublicKey)}
}

// Get returns the cached key, or nil on a miss.
func (c *MemoryCache) Get(_ context.Context, fp domain.Fingerprint) (*domain.PublicKey, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keys[fp], nil
}

// Put stores a fetched key.
func (c *MemoryCache) Put(_ context.Context, key *domain.PublicKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[key.Fingerprint] = key
	return nil
}

// Close is a no-op for the in-memory cache.
func (c *MemoryCache) Close() error {
	return nil
}
