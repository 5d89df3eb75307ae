package fields

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func TestUpdateCiphertext_ScopedToVault(t *testing.T) {
	repo, mock := newMock(t)

	query := regexp.QuoteMeta(`
		UPDATE vault_fields f SET value = $3, iv = $4
		FROM vault_entries e
		WHERE f.id = $2 AND e.id = f.entry_id AND e.vault_id = $1
	`)
	mock.ExpectExec(query).
		WithArgs("v1", "f1", "ct", "iv").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.UpdateCiphertext(context.Background(), "v1", "f1", "ct", "iv")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCiphertext_ForeignVaultTouchesNothing(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE vault_fields")).
		WithArgs("v1", "foreign-field", "ct", "iv").
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := repo.UpdateCiphertext(context.Background(), "v1", "foreign-field", "ct", "iv")
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}
