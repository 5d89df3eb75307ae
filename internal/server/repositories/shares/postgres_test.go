package shares

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/vpetrenko/vaultd/internal/common"
	"github.com/vpetrenko/vaultd/internal/server/models"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func shareRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "token", "user_id", "name", "secret", "secret_file",
		"salt", "iv", "pin", "accesses", "expiration",
	})
}

func TestConsume_DecrementsAtomically(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresRepository(db)

	now := time.Now()
	exp := now.Add(time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE vault_shares SET accesses = accesses - 1")).
		WithArgs("tok", now).
		WillReturnRows(shareRows().
			AddRow("s1", "tok", "u1", "n", "ct", nil, "salt", "iv", "pin", 1, exp))

	share, err := repo.Consume(context.Background(), "tok", now)
	require.NoError(t, err)
	require.Equal(t, "s1", share.ID)
	require.Equal(t, 1, share.Accesses)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConsume_NoLiveRowIsGone(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE vault_shares SET accesses = accesses - 1")).
		WithArgs("tok", now).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Consume(context.Background(), "tok", now)
	require.ErrorIs(t, err, common.ErrorGone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByToken_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM vault_shares WHERE token = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByToken(context.Background(), "missing")
	require.ErrorIs(t, err, common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExpiredBefore_ReturnsCount(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresRepository(db)

	cutoff := time.Now().Add(-24 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM vault_shares")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteExpiredBefore(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_EmptySecretStoredAsNull(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresRepository(db)

	exp := time.Now().Add(time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO vault_shares")).
		WithArgs(sqlmock.AnyArg(), "tok", "u1", "n", nil, []byte("blob"),
			"salt", "iv", "pin", 2, exp).
		WillReturnResult(sqlmock.NewResult(1, 1))

	share, err := repo.Create(context.Background(), &models.Share{
		Token: "tok", UserID: "u1", Name: "n",
		SecretFile: []byte("blob"), Salt: "salt", IV: "iv", Pin: "pin",
		Accesses: 2, Expiration: exp,
	})
	require.NoError(t, err)
	require.NotEmpty(t, share.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
