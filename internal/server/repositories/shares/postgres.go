// Package shares provides the PostgreSQL-backed repository for outbound
// anonymous share links. Retrieval decrements the read-permit counter in a
// single atomic statement, so two concurrent reads of a one-read share
// cannot both succeed.
package shares

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

// PostgresRepository implements share storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const shareColumns = `id, token, user_id, name, COALESCE(secret, ''), secret_file, salt, iv, pin, accesses, expiration`

// Create inserts a share row. The database enforces that at least one of
// secret/secret_file is present.
func (r *PostgresRepository) Create(ctx context.Context, share *models.Share) (*models.Share, error) {
	share.ID = uuid.NewString()
	query := `
		INSERT INTO vault_shares (id, token, user_id, name, secret, secret_file, salt, iv, pin, accesses, expiration)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if _, err := r.db.ExecContext(ctx, query,
		share.ID, share.Token, share.UserID, share.Name,
		nullIfEmpty(share.Secret), share.SecretFile, share.Salt, share.IV, share.Pin,
		share.Accesses, share.Expiration); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return share, nil
}

// FindByToken returns the share addressed by token without mutating it, or
// common.ErrorNotFound.
func (r *PostgresRepository) FindByToken(ctx context.Context, token string) (*models.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM vault_shares WHERE token = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, token))
}

// ListByUser returns the user's shares.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM vault_shares WHERE user_id = $1 ORDER BY expiration`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Share
	for rows.Next() {
		s := &models.Share{}
		if err := rows.Scan(&s.ID, &s.Token, &s.UserID, &s.Name, &s.Secret, &s.SecretFile,
			&s.Salt, &s.IV, &s.Pin, &s.Accesses, &s.Expiration); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Consume atomically decrements the read-permit counter and returns the
// share payload, but only while the share is alive (accesses > 0 and not
// expired). It returns common.ErrorGone when the row is exhausted or expired.
func (r *PostgresRepository) Consume(ctx context.Context, token string, now time.Time) (*models.Share, error) {
	query := `
		UPDATE vault_shares SET accesses = accesses - 1
		WHERE token = $1 AND accesses > 0 AND expiration > $2
		RETURNING ` + shareColumns
	share, err := r.scanOne(r.db.QueryRowContext(ctx, query, token, now))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorGone
		}
		return nil, err
	}
	return share, nil
}

// Delete removes a share row.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `
		DELETE FROM vault_shares
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteExpiredBefore removes every share whose expiration lies before the
// cutoff (the caller subtracts the configured grace offset from now) and
// returns the number of rows removed. The accesses counter is irrelevant
// here: exhausted-but-unexpired shares stay inspectable.
func (r *PostgresRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM vault_shares
		WHERE expiration <= $1
	`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Share, error) {
	s := &models.Share{}
	err := row.Scan(&s.ID, &s.Token, &s.UserID, &s.Name, &s.Secret, &s.SecretFile,
		&s.Salt, &s.IV, &s.Pin, &s.Accesses, &s.Expiration)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
