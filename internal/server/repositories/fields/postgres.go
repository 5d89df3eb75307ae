// Package fields provides the PostgreSQL-backed repository for encrypted
// entry fields. Values and IVs are opaque client-produced ciphertext.
package fields

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vpetrenko/vaultd/internal/dbx"
	"github.com/vpetrenko/vaultd/internal/server/models"
)

// PostgresRepository implements field storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert creates the field or, when a field of the same name already exists
// on the entry, overwrites its value and iv. Import merges rely on this
// (entry_id, name) identity.
func (r *PostgresRepository) Upsert(ctx context.Context, field *models.Field) error {
	if field.ID == "" {
		field.ID = uuid.NewString()
	}
	query := `
		INSERT INTO vault_fields (id, entry_id, name, iv, value)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entry_id, name)
		DO UPDATE SET value = EXCLUDED.value, iv = EXCLUDED.iv
	`
	if _, err := r.db.ExecContext(ctx, query,
		field.ID, field.EntryID, field.Name, field.IV, field.Value); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListByEntry returns all fields of the entry.
func (r *PostgresRepository) ListByEntry(ctx context.Context, entryID string) ([]*models.Field, error) {
	query := `
		SELECT id, entry_id, name, iv, value FROM vault_fields
		WHERE entry_id = $1
		ORDER BY name
	`
	rows, err := r.db.QueryContext(ctx, query, entryID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Field
	for rows.Next() {
		f := &models.Field{}
		if err := rows.Scan(&f.ID, &f.EntryID, &f.Name, &f.IV, &f.Value); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateCiphertext replaces the field's ciphertext during a master key
// rotation and returns the number of rows touched so the caller can verify
// the batch covered an existing row. The update is scoped to the vault so
// a batch id can never address another vault's row.
func (r *PostgresRepository) UpdateCiphertext(ctx context.Context, vaultID, id, value, iv string) (int64, error) {
	query := `
		UPDATE vault_fields f SET value = $3, iv = $4
		FROM vault_entries e
		WHERE f.id = $2 AND e.id = f.entry_id AND e.vault_id = $1
	`
	res, err := r.db.ExecContext(ctx, query, vaultID, id, value, iv)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

// CountByVault returns the number of fields stored across the vault's
// entries. Used to verify a rotation batch is complete.
func (r *PostgresRepository) CountByVault(ctx context.Context, vaultID string) (int64, error) {
	query := `
		SELECT COUNT(*) FROM vault_fields f
		JOIN vault_entries e ON e.id = f.entry_id
		WHERE e.vault_id = $1
	`
	var n int64
	if err := r.db.QueryRowContext(ctx, query, vaultID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// Delete removes a field.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `
		DELETE FROM vault_fields
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
