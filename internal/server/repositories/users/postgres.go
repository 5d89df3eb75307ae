// Package users provides the PostgreSQL-backed account repository. Accounts
// exist as the seam through which the host identity system supplies the
// authenticated principal; the vault core itself never reads passwords.
package users

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

// PostgresRepository implements user storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user with a freshly generated id and inbox token.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.NewString()
	user.InboxToken = uuid.NewString()
	query := `
		INSERT INTO users (id, login, salt, verifier, inbox_token)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query,
		user.ID, user.Login, user.Salt, user.Verifier, user.InboxToken); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// GetByLogin returns the user with the given login, or common.ErrorNotFound.
func (r *PostgresRepository) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	query := `
		SELECT id, login, salt, verifier, inbox_token FROM users
		WHERE login = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, login))
}

// GetByID returns the user with the given id, or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, login, salt, verifier, inbox_token FROM users
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByInboxToken resolves an anonymous inbox token to its owning user, or
// common.ErrorNotFound.
func (r *PostgresRepository) GetByInboxToken(ctx context.Context, token string) (*models.User, error) {
	query := `
		SELECT id, login, salt, verifier, inbox_token FROM users
		WHERE inbox_token = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, token))
}

// SetInboxToken replaces the user's inbox token, invalidating the previous
// anonymous submission link.
func (r *PostgresRepository) SetInboxToken(ctx context.Context, userID, token string) error {
	query := `
		UPDATE users SET inbox_token = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, userID, token); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Login, &user.Salt, &user.Verifier, &user.InboxToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}
