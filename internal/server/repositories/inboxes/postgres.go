// Package inboxes provides the PostgreSQL-backed repository for anonymous
// inbox deposits. The write-permit decrement is a single atomic
// read-modify-write so concurrent submissions cannot race the counter below
// zero.
package inboxes

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

// PostgresRepository implements inbox storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const inboxColumns = `id, token, user_id, name, COALESCE(secret, ''), secret_file, key, iv, accesses, expiration`

// Create inserts an inbox row.
func (r *PostgresRepository) Create(ctx context.Context, inbox *models.Inbox) (*models.Inbox, error) {
	inbox.ID = uuid.NewString()
	query := `
		INSERT INTO vault_inboxes (id, token, user_id, name, secret, secret_file, key, iv, accesses, expiration)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := r.db.ExecContext(ctx, query,
		inbox.ID, inbox.Token, inbox.UserID, inbox.Name,
		nullIfEmpty(inbox.Secret), inbox.SecretFile, inbox.Key, inbox.IV,
		inbox.Accesses, inbox.Expiration); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return inbox, nil
}

// FindByToken returns the inbox addressed by token, or common.ErrorNotFound.
func (r *PostgresRepository) FindByToken(ctx context.Context, token string) (*models.Inbox, error) {
	query := `SELECT ` + inboxColumns + ` FROM vault_inboxes WHERE token = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, token))
}

// FindByUser returns the user's inbox row, or common.ErrorNotFound when no
// submission was ever made against their token.
func (r *PostgresRepository) FindByUser(ctx context.Context, userID string) (*models.Inbox, error) {
	query := `SELECT ` + inboxColumns + ` FROM vault_inboxes WHERE user_id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID))
}

// ConsumeWrite atomically overwrites the stored ciphertext and decrements the
// write permit counter, but only while the inbox is open (accesses > 0 and
// not expired). It returns the inbox id, or common.ErrorGone when the row
// exists but is locked or expired.
func (r *PostgresRepository) ConsumeWrite(ctx context.Context, token string, secret string, secretFile []byte, key, iv string, now time.Time) (string, error) {
	query := `
		UPDATE vault_inboxes
		SET secret = $2, secret_file = $3, key = $4, iv = $5, accesses = accesses - 1
		WHERE token = $1 AND accesses > 0 AND expiration > $6
		RETURNING id
	`
	var id string
	err := r.db.QueryRowContext(ctx, query, token,
		nullIfEmpty(secret), secretFile, key, iv, now).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrorGone
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

// Extend lets the owner grant further anonymous writes and push out the
// expiration.
func (r *PostgresRepository) Extend(ctx context.Context, id string, accesses int, expiration time.Time) error {
	query := `
		UPDATE vault_inboxes SET accesses = $2, expiration = $3
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, accesses, expiration); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UpdateToken re-addresses the inbox after the owner rotates their token.
func (r *PostgresRepository) UpdateToken(ctx context.Context, id, token string) error {
	query := `UPDATE vault_inboxes SET token = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, token); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Inbox, error) {
	in := &models.Inbox{}
	err := row.Scan(&in.ID, &in.Token, &in.UserID, &in.Name, &in.Secret,
		&in.SecretFile, &in.Key, &in.IV, &in.Accesses, &in.Expiration)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return in, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
