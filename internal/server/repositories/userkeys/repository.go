package userkeys

import (
	"context"

	"github.com/vpetrenko/vaultd/internal/server/models"
)

type Repository interface {
	GetCurrent(ctx context.Context, userID string) (*models.UserKey, error)
	Insert(ctx context.Context, key *models.UserKey) (string, error)
	DemoteCurrent(ctx context.Context, userID string) error
	GetPublicKey(ctx context.Context, userID string) (string, error)
}
