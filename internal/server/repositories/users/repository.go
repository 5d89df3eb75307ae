package users

import (
	"context"

	"github.com/vpetrenko/vaultd/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByLogin(ctx context.Context, login string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByInboxToken(ctx context.Context, token string) (*models.User, error)
	SetInboxToken(ctx context.Context, userID, token string) error
}
