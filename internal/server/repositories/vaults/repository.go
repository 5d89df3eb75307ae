package vaults

import (
	"context"

	"github.com/vpetrenko/vaultd/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, vault *models.Vault) (*models.Vault, error)
	GetByID(ctx context.Context, id string) (*models.Vault, error)
	Update(ctx context.Context, id, name, note string) error
	Delete(ctx context.Context, id string) error
	SetReencryptRequired(ctx context.Context, id string, required bool) error
	MarkReencryptRequiredForUser(ctx context.Context, userID string) (int64, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Vault, error)
}
