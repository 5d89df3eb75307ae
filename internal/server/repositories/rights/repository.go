package rights

import (
	"context"

	"github.com/vpetrenko/vaultd/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, right *models.Right) (*models.Right, error)
	GetByID(ctx context.Context, id string) (*models.Right, error)
	FindByVaultAndUser(ctx context.Context, vaultID, userID string) (*models.Right, error)
	ListByVault(ctx context.Context, vaultID string) ([]*models.Right, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Right, error)
	Update(ctx context.Context, right *models.Right) error
	UpdateKey(ctx context.Context, id, key string) (int64, error)
	Delete(ctx context.Context, id string) error
	CountByVault(ctx context.Context, vaultID string) (int64, error)
}
