package repomanager

import (
	"context"
	"database/sql"

	"github.com/vpetrenko/vaultd/internal/dbx"
	"github.com/vpetrenko/vaultd/internal/server/repositories/entries"
	"github.com/vpetrenko/vaultd/internal/server/repositories/fields"
	"github.com/vpetrenko/vaultd/internal/server/repositories/files"
	"github.com/vpetrenko/vaultd/internal/server/repositories/inboxes"
	"github.com/vpetrenko/vaultd/internal/server/repositories/logs"
	"github.com/vpetrenko/vaultd/internal/server/repositories/refreshtokens"
	"github.com/vpetrenko/vaultd/internal/server/repositories/rights"
	"github.com/vpetrenko/vaultd/internal/server/repositories/shares"
	"github.com/vpetrenko/vaultd/internal/server/repositories/userkeys"
	"github.com/vpetrenko/vaultd/internal/server/repositories/users"
	"github.com/vpetrenko/vaultd/internal/server/repositories/vaults"
)

// RepositoryManager vends repository implementations bound to a DBTX, so
// services can run the same repository code against the pooled connection or
// against an open transaction.
type RepositoryManager interface {
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	UserKeys(db dbx.DBTX) userkeys.Repository
	Vaults(db dbx.DBTX) vaults.Repository
	Entries(db dbx.DBTX) entries.Repository
	Fields(db dbx.DBTX) fields.Repository
	Files(db dbx.DBTX) files.Repository
	Rights(db dbx.DBTX) rights.Repository
	Inboxes(db dbx.DBTX) inboxes.Repository
	Shares(db dbx.DBTX) shares.Repository
	Logs(db dbx.DBTX) logs.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
