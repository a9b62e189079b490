package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/apssouza22/keyfetch/internal/core/domain"
)

// KeyRepo persists fetched public keys in PostgreSQL.
type KeyRepo struct {
	db *DB
}

// NewKeyRepo creates a new PostgreSQL key repository.
func NewKeyRepo(db *DB) *KeyRepo {
	return &KeyRepo{db: db}
}

// Save upserts a key by fingerprint.
func (r *KeyRepo) Save(ctx context.Context, key *domain.PublicKey) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO keys (fingerprint, key_id, armored, source, fetched_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (fingerprint) DO UPDATE
		SET armored = EXCLUDED.armored,
		    source = EXCLUDED.source,
		    fetched_at = EXCLUDED.fetched_at`,
		key.Fingerprint, key.KeyID, key.Armored, key.Source, key.FetchedAt)
	if err != nil {
		return fmt.Errorf("failed to save key: %w", err)
	}
	return nil
}

// Get retrieves a key by fingerprint, or nil when absent.
func (r *KeyRepo) Get(ctx context.Context, fp domain.Fingerprint) (*domain.PublicKey, error) {
	var key domain.PublicKey
	err := r.db.GetContext(ctx, &key, `
		SELECT fingerprint, key_id, armored, source, fetched_at
		FROM keys WHERE fingerprint = $1`, fp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return &key, nil
}
