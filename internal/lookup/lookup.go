// Package lookup coordinates cache, keyserver retry scheduling, and durable
// storage into one key lookup path.
package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/apssouza22/keyfetch/internal/core/domain"
	"github.com/apssouza22/keyfetch/internal/infra/cache"
	"github.com/apssouza22/keyfetch/internal/infra/keyserver"
	"github.com/apssouza22/keyfetch/internal/metrics"
	"github.com/apssouza22/keyfetch/internal/retry"
)

// KeyStore is the durable key repository. Nil when no database is configured.
type KeyStore interface {
	Save(ctx context.Context, key *domain.PublicKey) error
	Get(ctx context.Context, fp domain.Fingerprint) (*domain.PublicKey, error)
}

// Service performs resilient key lookups: cache first, then the durable
// store, then the keyserver pool through the retry scheduler.
type Service struct {
	sched  *retry.Retry
	client *keyserver.Client
	cache  cache.KeyCache
	store  KeyStore
	log    *slog.Logger
}

// NewService creates a lookup service. store may be nil.
func NewService(sched *retry.Retry, client *keyserver.Client, keyCache cache.KeyCache, store KeyStore, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		sched:  sched,
		client: client,
		cache:  keyCache,
		store:  store,
		log:    log,
	}
}

// LookupKey returns the public key for fp. It returns domain.ErrKeyNotFound
// when the keyserver pool confirmed absence, and a *retry.BudgetExhaustedError
// when the retry budget ran out without an answer either way.
func (s *Service) LookupKey(ctx context.Context, fp domain.Fingerprint) (*domain.PublicKey, error) {
	log := s.log.With("request_id", uuid.New().String(), "fingerprint", fp)

	if key := s.cached(ctx, log, fp); key != nil {
		metrics.CacheHits.Inc()
		return key, nil
	}
	metrics.CacheMisses.Inc()

	start := time.Now()
	result, err := s.sched.Invoke(ctx, fmt.Sprintf("pgp key %s", fp),
		func(ctx context.Context, att *retry.Attempt) (any, error) {
			return s.client.Fetch(ctx, att, fp)
		})
	if err != nil {
		metrics.LookupsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.LookupLatency.Observe(time.Since(start).Seconds())

	if result == nil {
		metrics.LookupsTotal.WithLabelValues("not_found").Inc()
		return nil, domain.ErrKeyNotFound
	}
	key := result.(*domain.PublicKey)
	metrics.LookupsTotal.WithLabelValues("found").Inc()
	log.Info("key fetched", "source", key.Source)

	if err := s.cache.Put(ctx, key); err != nil {
		log.Warn("key cache write failed", "error", err)
	}
	if s.store != nil {
		if err := s.store.Save(ctx, key); err != nil {
			log.Warn("key store write failed", "error", err)
		}
	}
	return key, nil
}

// cached checks the cache and, on a miss, the durable store. A store hit
// refreshes the cache. Read failures degrade to a network lookup.
func (s *Service) cached(ctx context.Context, log *slog.Logger, fp domain.Fingerprint) *domain.PublicKey {
	key, err := s.cache.Get(ctx, fp)
	if err != nil {
		log.Warn("key cache read failed", "error", err)
	}
	if key != nil {
		return key
	}
	if s.store == nil {
		return nil
	}
	key, err = s.store.Get(ctx, fp)
	if err != nil {
		log.Warn("key store read failed", "error", err)
		return nil
	}
	if key != nil {
		if err := s.cache.Put(ctx, key); err != nil {
			log.Warn("key cache write failed", "error", err)
		}
	}
	return key
}
