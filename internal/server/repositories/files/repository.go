package files

import (
	"context"

	"github.com/vpetrenko/vaultd/internal/server/models"
)

type Repository interface {
	Upsert(ctx context.Context, file *models.File) error
	ListByEntry(ctx context.Context, entryID string) ([]*models.File, error)
	UpdateCiphertext(ctx context.Context, vaultID, id string, content []byte, iv string) (int64, error)
	CountByVault(ctx context.Context, vaultID string) (int64, error)
	Delete(ctx context.Context, id string) error
}
