package inboxes

import (
	"context"
	"time"

	"github.com/vpetrenko/vaultd/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, inbox *models.Inbox) (*models.Inbox, error)
	FindByToken(ctx context.Context, token string) (*models.Inbox, error)
	FindByUser(ctx context.Context, userID string) (*models.Inbox, error)
	ConsumeWrite(ctx context.Context, token string, secret string, secretFile []byte, key, iv string, now time.Time) (string, error)
	Extend(ctx context.Context, id string, accesses int, expiration time.Time) error
	UpdateToken(ctx context.Context, id, token string) error
}
