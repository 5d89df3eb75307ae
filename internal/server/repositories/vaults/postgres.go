// Package vaults provides the PostgreSQL-backed repository for vault
// containers. Deleting a vault cascades to its entries, fields, files,
// rights and logs through foreign keys.
package vaults

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

// PostgresRepository implements vault storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a vault with a fresh id and uuid.
func (r *PostgresRepository) Create(ctx context.Context, vault *models.Vault) (*models.Vault, error) {
	vault.ID = uuid.NewString()
	if vault.UUID == "" {
		vault.UUID = uuid.NewString()
	}
	query := `
		INSERT INTO vaults (id, uuid, owner_id, name, note)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query,
		vault.ID, vault.UUID, vault.OwnerID, vault.Name, vault.Note); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return vault, nil
}

// GetByID returns the vault with the given id, or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Vault, error) {
	query := `
		SELECT id, uuid, owner_id, name, note, reencrypt_required, created_at
		FROM vaults
		WHERE id = $1
	`
	v := &models.Vault{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&v.ID, &v.UUID, &v.OwnerID, &v.Name, &v.Note, &v.ReencryptRequired, &v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

// Update changes the vault's name and note.
func (r *PostgresRepository) Update(ctx context.Context, id, name, note string) error {
	query := `
		UPDATE vaults SET name = $2, note = $3
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, name, note); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Delete removes the vault; children go with it via ON DELETE CASCADE.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `
		DELETE FROM vaults
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SetReencryptRequired toggles the rotation-pending flag.
func (r *PostgresRepository) SetReencryptRequired(ctx context.Context, id string, required bool) error {
	query := `
		UPDATE vaults SET reencrypt_required = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, required); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// MarkReencryptRequiredForUser flags every vault on which the user holds a
// right. Called when the user's key pair changes, since their wrapped master
// keys are no longer decryptable with the new private key.
func (r *PostgresRepository) MarkReencryptRequiredForUser(ctx context.Context, userID string) (int64, error) {
	query := `
		UPDATE vaults SET reencrypt_required = true
		WHERE id IN (SELECT vault_id FROM vault_rights WHERE user_id = $1)
	`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

// ListByOwner returns all vaults owned by ownerID.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Vault, error) {
	query := `
		SELECT id, uuid, owner_id, name, note, reencrypt_required, created_at
		FROM vaults
		WHERE owner_id = $1
		ORDER BY name
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Vault
	for rows.Next() {
		v := &models.Vault{}
		if err := rows.Scan(&v.ID, &v.UUID, &v.OwnerID, &v.Name, &v.Note, &v.ReencryptRequired, &v.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
