// Package logs provides the PostgreSQL-backed append-only audit log
// repositories. Rows are inserted in the same transaction as the mutation
// they record; there is deliberately no update or single-row delete.
package logs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vpetrenko/vaultd/internal/dbx"
	"github.com/vpetrenko/vaultd/internal/server/models"
)

// PostgresRepository implements audit log storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// AddVaultLog appends an audit row to a vault.
func (r *PostgresRepository) AddVaultLog(ctx context.Context, log *models.VaultLog) error {
	log.ID = uuid.NewString()
	query := `
		INSERT INTO vault_logs (id, vault_id, entry_id, user_id, actor, message)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, query,
		log.ID, log.VaultID, log.EntryID, log.UserID, log.Actor, log.Message); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// AddInboxLog appends an audit row to an inbox.
func (r *PostgresRepository) AddInboxLog(ctx context.Context, log *models.InboxLog) error {
	log.ID = uuid.NewString()
	query := `
		INSERT INTO inbox_logs (id, inbox_id, actor, ip, message)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query,
		log.ID, log.InboxID, log.Actor, log.IP, log.Message); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// AddShareLog appends an audit row to a share.
func (r *PostgresRepository) AddShareLog(ctx context.Context, log *models.ShareLog) error {
	log.ID = uuid.NewString()
	query := `
		INSERT INTO share_logs (id, share_id, ip, message)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query,
		log.ID, log.ShareID, log.IP, log.Message); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListByVault returns the vault's audit rows, newest first.
func (r *PostgresRepository) ListByVault(ctx context.Context, vaultID string) ([]*models.VaultLog, error) {
	query := `
		SELECT id, vault_id, entry_id, user_id, actor, message, created_at
		FROM vault_logs
		WHERE vault_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, vaultID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.VaultLog
	for rows.Next() {
		l := &models.VaultLog{}
		if err := rows.Scan(&l.ID, &l.VaultID, &l.EntryID, &l.UserID, &l.Actor, &l.Message, &l.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
