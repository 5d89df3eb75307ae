package shares

import (
	"context"
	"time"

	"github.com/vpetrenko/vaultd/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, share *models.Share) (*models.Share, error)
	FindByToken(ctx context.Context, token string) (*models.Share, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Share, error)
	Consume(ctx context.Context, token string, now time.Time) (*models.Share, error)
	Delete(ctx context.Context, id string) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
