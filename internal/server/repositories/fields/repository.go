package fields

import (
	"context"

	"github.com/vpetrenko/vaultd/internal/server/models"
)

type Repository interface {
	Upsert(ctx context.Context, field *models.Field) error
	ListByEntry(ctx context.Context, entryID string) ([]*models.Field, error)
	UpdateCiphertext(ctx context.Context, vaultID, id, value, iv string) (int64, error)
	CountByVault(ctx context.Context, vaultID string) (int64, error)
	Delete(ctx context.Context, id string) error
}
