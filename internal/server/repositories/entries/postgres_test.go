package entries

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/vpetrenko/vaultd/internal/common"
	"github.com/vpetrenko/vaultd/internal/server/models"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func entryRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "uuid", "vault_id", "parent_id", "name", "url", "note", "tags",
		"expire_date", "complete_name",
	})
}

func TestGetByUUID_ScopedToVault(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE vault_id = $1 AND uuid = $2")).
		WithArgs("v1", "u-1").
		WillReturnRows(entryRows().
			AddRow("e1", "u-1", "v1", nil, "name", "", "", "", nil, "name"))

	e, err := repo.GetByUUID(context.Background(), "v1", "u-1")
	require.NoError(t, err)
	require.Equal(t, "e1", e.ID)
	require.Nil(t, e.ParentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM vault_entries WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearch_ExpiredTrueRequiresSetPastDate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresRepository(db)

	expired := true
	mock.ExpectQuery(regexp.QuoteMeta("AND expire_date IS NOT NULL AND expire_date < $2")).
		WithArgs("v1", sqlmock.AnyArg()).
		WillReturnRows(entryRows())

	_, err := repo.Search(context.Background(), "v1", SearchFilter{Expired: &expired})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearch_ExpiredFalseAcceptsUnsetDate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresRepository(db)

	expired := false
	mock.ExpectQuery(regexp.QuoteMeta("AND (expire_date IS NULL OR expire_date >= $2)")).
		WithArgs("v1", sqlmock.AnyArg()).
		WillReturnRows(entryRows())

	_, err := repo.Search(context.Background(), "v1", SearchFilter{Expired: &expired})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearch_CombinesNameAndTag(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("AND name ILIKE $2 AND tags ILIKE $3")).
		WithArgs("v1", "%bank%", "%money%").
		WillReturnRows(entryRows().
			AddRow("e1", "u-1", "v1", nil, "bank", "", "", "money", nil, "bank"))

	found, err := repo.Search(context.Background(), "v1", SearchFilter{Name: "bank", Tag: "money"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_KeepsCallerUUID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresRepository(db)

	mock.ExpectExec("INSERT INTO vault_entries").
		WithArgs(sqlmock.AnyArg(), "import-uuid", "v1", nil, "n", "", "", "", nil, "n").
		WillReturnResult(sqlmock.NewResult(1, 1))

	e, err := repo.Create(context.Background(), &models.Entry{
		UUID: "import-uuid", VaultID: "v1", Name: "n", CompleteName: "n",
	})
	require.NoError(t, err)
	require.Equal(t, "import-uuid", e.UUID)
	require.NoError(t, mock.ExpectationsWereMet())
}
