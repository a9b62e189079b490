// Package control wires configuration into the running keyfetch application.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pressly/goose/v3"

	"github.com/apssouza22/keyfetch/internal/api"
	"github.com/apssouza22/keyfetch/internal/core/config"
	"github.com/apssouza22/keyfetch/internal/core/domain"
	"github.com/apssouza22/keyfetch/internal/infra/cache"
	"github.com/apssouza22/keyfetch/internal/infra/keyserver"
	"github.com/apssouza22/keyfetch/internal/infra/storage/postgres"
	"github.com/apssouza22/keyfetch/internal/lookup"
	"github.com/apssouza22/keyfetch/internal/retry"
)

// App owns the assembled application: scheduler, lookup service, cache,
// optional database, and the HTTP API.
type App struct {
	api      *api.Server
	lookup   *lookup.Service
	keyCache cache.KeyCache
	db       *postgres.DB
	log      *slog.Logger
}

// New creates an App with all dependencies initialized.
func New(cfg *config.AppConfig, log *slog.Logger) (*App, error) {
	retryCfg, err := cfg.Keyservers.RetryConfig()
	if err != nil {
		return nil, err
	}
	sched, err := retry.New(retryCfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init retry scheduler: %w", err)
	}

	var keyCache cache.KeyCache
	if cfg.Cache.URL != "" {
		keyCache, err = cache.NewRedis(cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis cache: %w", err)
		}
		log.Info("using Redis key cache")
	} else {
		keyCache = cache.NewMemory()
		log.Info("using in-memory key cache")
	}

	var store lookup.KeyStore
	var db *postgres.DB
	if cfg.Database.URL != "" {
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations. Goose needs the *sql.DB that sqlx.DB wraps.
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		store = postgres.NewKeyRepo(db)
		log.Info("using PostgreSQL key store")
	}

	svc := lookup.NewService(sched, keyserver.NewClient(log), keyCache, store, log)

	return &App{
		api:      api.NewServer(svc, cfg.Server.Port, log),
		lookup:   svc,
		keyCache: keyCache,
		db:       db,
		log:      log,
	}, nil
}

// Start launches the HTTP API in the background.
func (a *App) Start(_ context.Context) error {
	go func() {
		if err := a.api.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("API server stopped", "error", err)
		}
	}()
	a.log.Info("keyfetch started")
	return nil
}

// Stop shuts the application down gracefully.
func (a *App) Stop(ctx context.Context) error {
	if err := a.api.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop API server: %w", err)
	}
	if err := a.keyCache.Close(); err != nil {
		a.log.Warn("failed to close key cache", "error", err)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("failed to close database", "error", err)
		}
	}
	return nil
}

// Lookup performs a single key lookup, used by the one-shot CLI mode.
func (a *App) Lookup(ctx context.Context, fp domain.Fingerprint) (*domain.PublicKey, error) {
	return a.lookup.LookupKey(ctx, fp)
}
