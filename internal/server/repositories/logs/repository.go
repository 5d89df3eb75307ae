package logs

import (
	"context"

	"github.com/vpetrenko/vaultd/internal/server/models"
)

type Repository interface {
	AddVaultLog(ctx context.Context, log *models.VaultLog) error
	AddInboxLog(ctx context.Context, log *models.InboxLog) error
	AddShareLog(ctx context.Context, log *models.ShareLog) error
	ListByVault(ctx context.Context, vaultID string) ([]*models.VaultLog, error)
}
