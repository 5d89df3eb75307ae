// Package entries provides the PostgreSQL-backed repository for the
// hierarchical entry tree inside a vault.
package entries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vpetrenko/vaultd/internal/common"
	"github.com/vpetrenko/vaultd/internal/dbx"
	"github.com/vpetrenko/vaultd/internal/server/models"
)

// PostgresRepository implements entry storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const entryColumns = `id, uuid, vault_id, parent_id, name, url, note, tags, expire_date, complete_name`

// Create inserts an entry. A fresh uuid is generated unless the caller
// supplies one (imports carry their own).
func (r *PostgresRepository) Create(ctx context.Context, entry *models.Entry) (*models.Entry, error) {
	entry.ID = uuid.NewString()
	if entry.UUID == "" {
		entry.UUID = uuid.NewString()
	}
	query := `
		INSERT INTO vault_entries (id, uuid, vault_id, parent_id, name, url, note, tags, expire_date, complete_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.UUID, entry.VaultID, entry.ParentID, entry.Name,
		entry.URL, entry.Note, entry.Tags, entry.ExpireDate, entry.CompleteName); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return entry, nil
}

// GetByID returns the entry with the given id, or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM vault_entries WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByUUID returns the entry identified by (vaultID, uuid), or
// common.ErrorNotFound. Import merges resolve nodes through this lookup.
func (r *PostgresRepository) GetByUUID(ctx context.Context, vaultID, entryUUID string) (*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM vault_entries WHERE vault_id = $1 AND uuid = $2`
	return r.scanOne(r.db.QueryRowContext(ctx, query, vaultID, entryUUID))
}

// Update rewrites the entry's mutable scalar fields. Parent and complete
// name moves go through UpdateParent/UpdateCompleteName so the tree
// invariants stay in one place.
func (r *PostgresRepository) Update(ctx context.Context, entry *models.Entry) error {
	query := `
		UPDATE vault_entries
		SET name = $2, url = $3, note = $4, tags = $5, expire_date = $6
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.Name, entry.URL, entry.Note, entry.Tags, entry.ExpireDate); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UpdateParent moves the entry under a new parent (nil for root).
func (r *PostgresRepository) UpdateParent(ctx context.Context, id string, parentID *string) error {
	query := `
		UPDATE vault_entries SET parent_id = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, parentID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UpdateCompleteName stores the recomputed derived display path.
func (r *PostgresRepository) UpdateCompleteName(ctx context.Context, id, completeName string) error {
	query := `
		UPDATE vault_entries SET complete_name = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, completeName); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListChildren returns the direct children of parentID.
func (r *PostgresRepository) ListChildren(ctx context.Context, parentID string) ([]*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM vault_entries WHERE parent_id = $1 ORDER BY name`
	return r.scanMany(ctx, query, parentID)
}

// ListRoots returns the vault's root-level entries.
func (r *PostgresRepository) ListRoots(ctx context.Context, vaultID string) ([]*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM vault_entries WHERE vault_id = $1 AND parent_id IS NULL ORDER BY name`
	return r.scanMany(ctx, query, vaultID)
}

// Delete removes the entry; descendants, fields and files cascade.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `
		DELETE FROM vault_entries
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Search returns entries of the vault matching the filter.
//
// "expired = true" translates to "expire_date is set and in the past";
// "expired = false" to "expire_date is unset OR not yet reached" — an OR of
// two conditions, because unset dates count as not-expired.
func (r *PostgresRepository) Search(ctx context.Context, vaultID string, filter SearchFilter) ([]*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM vault_entries WHERE vault_id = $1`
	args := []any{vaultID}

	if filter.Name != "" {
		args = append(args, "%"+filter.Name+"%")
		query += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}
	if filter.Tag != "" {
		args = append(args, "%"+filter.Tag+"%")
		query += fmt.Sprintf(" AND tags ILIKE $%d", len(args))
	}
	if filter.Expired != nil {
		args = append(args, time.Now())
		if *filter.Expired {
			query += fmt.Sprintf(" AND expire_date IS NOT NULL AND expire_date < $%d", len(args))
		} else {
			query += fmt.Sprintf(" AND (expire_date IS NULL OR expire_date >= $%d)", len(args))
		}
	}
	query += " ORDER BY complete_name"

	return r.scanMany(ctx, query, args...)
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Entry, error) {
	e := &models.Entry{}
	err := row.Scan(&e.ID, &e.UUID, &e.VaultID, &e.ParentID, &e.Name,
		&e.URL, &e.Note, &e.Tags, &e.ExpireDate, &e.CompleteName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) scanMany(ctx context.Context, query string, args ...any) ([]*models.Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Entry
	for rows.Next() {
		e := &models.Entry{}
		if err := rows.Scan(&e.ID, &e.UUID, &e.VaultID, &e.ParentID, &e.Name,
			&e.URL, &e.Note, &e.Tags, &e.ExpireDate, &e.CompleteName); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
