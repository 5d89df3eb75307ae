// Package userkeys provides the PostgreSQL-backed key registry: per-user
// asymmetric key material with a single current key per user. Private keys
// are stored wrapped; the server never sees them in cleartext.
package userkeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vpetrenko/vaultd/internal/common"
	"github.com/vpetrenko/vaultd/internal/dbx"
	"github.com/vpetrenko/vaultd/internal/server/models"
)

// PostgresRepository implements key storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetCurrent returns the user's current key, or common.ErrorNotFound when the
// user has none.
func (r *PostgresRepository) GetCurrent(ctx context.Context, userID string) (*models.UserKey, error) {
	query := `
		SELECT id, user_id, uuid, public, private, salt, iv, iterations, version, current
		FROM user_keys
		WHERE user_id = $1 AND current
	`
	k := &models.UserKey{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&k.ID, &k.UserID, &k.UUID, &k.Public, &k.Private, &k.Salt, &k.IV,
		&k.Iterations, &k.Version, &k.Current,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return k, nil
}

// Insert stores a new current key row and returns its id. The uuid comes
// from the client, which correlates key records across devices by it.
func (r *PostgresRepository) Insert(ctx context.Context, key *models.UserKey) (string, error) {
	key.ID = uuid.NewString()
	key.Current = true
	query := `
		INSERT INTO user_keys (id, user_id, uuid, public, private, salt, iv, iterations, version, current)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true)
	`
	if _, err := r.db.ExecContext(ctx, query,
		key.ID, key.UserID, key.UUID, key.Public, key.Private, key.Salt, key.IV,
		key.Iterations, key.Version); err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	return key.ID, nil
}

// DemoteCurrent clears the current flag on the user's active key, if any.
func (r *PostgresRepository) DemoteCurrent(ctx context.Context, userID string) error {
	query := `
		UPDATE user_keys SET current = false
		WHERE user_id = $1 AND current
	`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetPublicKey returns the public half of the user's current key, or
// common.ErrorNotFound when the user has no key.
func (r *PostgresRepository) GetPublicKey(ctx context.Context, userID string) (string, error) {
	query := `
		SELECT public FROM user_keys
		WHERE user_id = $1 AND current
	`
	var public string
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&public); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return public, nil
}
