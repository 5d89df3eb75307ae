// Package rights provides the PostgreSQL-backed repository for per-(vault,
// user) access grants carrying the wrapped master key copy.
package rights

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

// PostgresRepository implements right storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const rightColumns = `id, vault_id, user_id, key, perm_create, perm_write, perm_share, perm_delete`

// Create inserts a right row. One row per (vault, user) is enforced by a
// unique constraint; a duplicate yields common.ErrorAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, right *models.Right) (*models.Right, error) {
	right.ID = uuid.NewString()
	query := `
		INSERT INTO vault_rights (id, vault_id, user_id, key, perm_create, perm_write, perm_share, perm_delete)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (vault_id, user_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		right.ID, right.VaultID, right.UserID, right.Key,
		right.PermCreate, right.PermWrite, right.PermShare, right.PermDelete)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return nil, common.ErrorAlreadyExists
	}
	return right, nil
}

// GetByID returns the right with the given id, or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Right, error) {
	query := `SELECT ` + rightColumns + ` FROM vault_rights WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// FindByVaultAndUser returns the user's right on the vault, or
// common.ErrorNotFound. This is the lookup behind every access-flag
// computation.
func (r *PostgresRepository) FindByVaultAndUser(ctx context.Context, vaultID, userID string) (*models.Right, error) {
	query := `SELECT ` + rightColumns + ` FROM vault_rights WHERE vault_id = $1 AND user_id = $2`
	return r.scanOne(r.db.QueryRowContext(ctx, query, vaultID, userID))
}

// ListByVault returns all rights granted on the vault.
func (r *PostgresRepository) ListByVault(ctx context.Context, vaultID string) ([]*models.Right, error) {
	query := `SELECT ` + rightColumns + ` FROM vault_rights WHERE vault_id = $1`
	return r.scanMany(ctx, query, vaultID)
}

// ListByUser returns the user's rights across all vaults, i.e. every wrapped
// master key copy addressed to them.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Right, error) {
	query := `SELECT ` + rightColumns + ` FROM vault_rights WHERE user_id = $1`
	return r.scanMany(ctx, query, userID)
}

// Update rewrites the permission bits and wrapped key of an existing right.
func (r *PostgresRepository) Update(ctx context.Context, right *models.Right) error {
	query := `
		UPDATE vault_rights
		SET key = $2, perm_create = $3, perm_write = $4, perm_share = $5, perm_delete = $6
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query,
		right.ID, right.Key, right.PermCreate, right.PermWrite, right.PermShare, right.PermDelete); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UpdateKey replaces the wrapped master key during a rotation and returns
// the number of rows touched.
func (r *PostgresRepository) UpdateKey(ctx context.Context, id, key string) (int64, error) {
	query := `
		UPDATE vault_rights SET key = $2
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, key)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

// Delete removes a right row. The vault's master key is NOT rotated here;
// see the rights service for the documented revocation gap.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `
		DELETE FROM vault_rights
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// CountByVault returns the number of rights granted on the vault.
func (r *PostgresRepository) CountByVault(ctx context.Context, vaultID string) (int64, error) {
	query := `SELECT COUNT(*) FROM vault_rights WHERE vault_id = $1`
	var n int64
	if err := r.db.QueryRowContext(ctx, query, vaultID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Right, error) {
	right := &models.Right{}
	err := row.Scan(&right.ID, &right.VaultID, &right.UserID, &right.Key,
		&right.PermCreate, &right.PermWrite, &right.PermShare, &right.PermDelete)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return right, nil
}

func (r *PostgresRepository) scanMany(ctx context.Context, query string, args ...any) ([]*models.Right, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Right
	for rows.Next() {
		right := &models.Right{}
		if err := rows.Scan(&right.ID, &right.VaultID, &right.UserID, &right.Key,
			&right.PermCreate, &right.PermWrite, &right.PermShare, &right.PermDelete); err != nil {
			return nil, err
		}
		result = append(result, right)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
