// Package files provides the PostgreSQL-backed repository for encrypted
// binary attachments on entries.
package files

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vpetrenko/vaultd/internal/dbx"
	"github.com/vpetrenko/vaultd/internal/server/models"
)

// PostgresRepository implements file storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert creates the file or overwrites the payload of an existing file of
// the same name on the entry.
func (r *PostgresRepository) Upsert(ctx context.Context, file *models.File) error {
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	query := `
		INSERT INTO vault_files (id, entry_id, name, iv, content)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entry_id, name)
		DO UPDATE SET content = EXCLUDED.content, iv = EXCLUDED.iv
	`
	if _, err := r.db.ExecContext(ctx, query,
		file.ID, file.EntryID, file.Name, file.IV, file.Content); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListByEntry returns all files of the entry.
func (r *PostgresRepository) ListByEntry(ctx context.Context, entryID string) ([]*models.File, error) {
	query := `
		SELECT id, entry_id, name, iv, content FROM vault_files
		WHERE entry_id = $1
		ORDER BY name
	`
	rows, err := r.db.QueryContext(ctx, query, entryID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		f := &models.File{}
		if err := rows.Scan(&f.ID, &f.EntryID, &f.Name, &f.IV, &f.Content); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateCiphertext replaces the file payload during a master key rotation
// and returns the number of rows touched. Scoped to the vault like the
// field variant.
func (r *PostgresRepository) UpdateCiphertext(ctx context.Context, vaultID, id string, content []byte, iv string) (int64, error) {
	query := `
		UPDATE vault_files f SET content = $3, iv = $4
		FROM vault_entries e
		WHERE f.id = $2 AND e.id = f.entry_id AND e.vault_id = $1
	`
	res, err := r.db.ExecContext(ctx, query, vaultID, id, content, iv)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

// CountByVault returns the number of files stored across the vault's entries.
func (r *PostgresRepository) CountByVault(ctx context.Context, vaultID string) (int64, error) {
	query := `
		SELECT COUNT(*) FROM vault_files f
		JOIN vault_entries e ON e.id = f.entry_id
		WHERE e.vault_id = $1
	`
	var n int64
	if err := r.db.QueryRowContext(ctx, query, vaultID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// Delete removes a file.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `
		DELETE FROM vault_files
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
