// Package cache provides the fetched-key cache backing the lookup service.
//
// Two implementations exist: a Redis-backed cache for deployments and an
// in-memory cache used when Redis is not configured.
package cache

import (
	"context"

	"github.com/apssouza22/keyfetch/internal/core/domain"
)

// KeyCache caches fetched public keys by fingerprint.
type KeyCache interface {
	// Get returns the cached key, or nil on a miss.
	Get(ctx context.Context, fp domain.Fingerprint) (*domain.PublicKey, error)

	// Put stores a fetched key.
	Put(ctx context.Context, key *domain.PublicKey) error

	// Close releases cache resources.
	Close() error
}
