package entries

import (
	"context"

	"github.com/vpetrenko/vaultd/internal/server/models"
)

// SearchFilter narrows an entry search. Expired is a derived predicate: it
// is translated into expire_date conditions by the repository because no
// expired column exists.
type SearchFilter struct {
	Name    string
	Tag     string
	Expired *bool
}

type Repository interface {
	Create(ctx context.Context, entry *models.Entry) (*models.Entry, error)
	GetByID(ctx context.Context, id string) (*models.Entry, error)
	GetByUUID(ctx context.Context, vaultID, uuid string) (*models.Entry, error)
	Update(ctx context.Context, entry *models.Entry) error
	UpdateParent(ctx context.Context, id string, parentID *string) error
	UpdateCompleteName(ctx context.Context, id, completeName string) error
	ListChildren(ctx context.Context, parentID string) ([]*models.Entry, error)
	ListRoots(ctx context.Context, vaultID string) ([]*models.Entry, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, vaultID string, filter SearchFilter) ([]*models.Entry, error)
}
