package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vpetrenko/vaultd/internal/common"
	"github.com/vpetrenko/vaultd/internal/dbx"
	"github.com/vpetrenko/vaultd/internal/server/access"
	"github.com/vpetrenko/vaultd/internal/server/models"
	"github.com/vpetrenko/vaultd/internal/server/repositories/repomanager"
)

// RightsService manages the Right rows that delegate vault access, and the
// atomic key rotation that follows a revocation.
type RightsService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewRightsService(db *sql.DB, m repomanager.RepositoryManager) *RightsService {
	return &RightsService{db: db, repomanager: m}
}

// RightGrant is the caller-supplied part of a new or updated Right row.
// Key carries the vault master key wrapped under the grantee's public key.
type RightGrant struct {
	UserID     string
	Key        string
	PermCreate bool
	PermWrite  bool
	PermShare  bool
	PermDelete bool
}

// ReplaceItem pairs a row id with its re-encrypted payload.
type ReplaceItem struct {
	ID      string
	Value   string
	Content []byte
	IV      string
	Key     string
}

// ReplaceBatch carries one complete re-encryption of a vault: every field,
// every file and every right, re-wrapped under a fresh master key client-side.
type ReplaceBatch struct {
	Fields []ReplaceItem
	Files  []ReplaceItem
	Rights []ReplaceItem
}

func (s *RightsService) authorizer(p access.Principal, db dbx.DBTX) *access.Authorizer {
	return access.NewAuthorizer(p, s.repomanager.Vaults(db), s.repomanager.Rights(db))
}

// Share grants another user access to the vault. Mutating rights is gated by
// the share permission alone.
func (s *RightsService) Share(ctx context.Context, p access.Principal, vaultID string, grant RightGrant) (*models.Right, error) {
	if grant.UserID == "" || grant.Key == "" {
		return nil, common.ErrorValidation
	}

	var right *models.Right
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.authorizer(p, tx).Require(ctx, vaultID, access.CapShare); err != nil {
			return err
		}
		r, err := s.repomanager.Rights(tx).Create(ctx, &models.Right{
			VaultID:    vaultID,
			UserID:     grant.UserID,
			Key:        grant.Key,
			PermCreate: grant.PermCreate,
			PermWrite:  grant.PermWrite,
			PermShare:  grant.PermShare,
			PermDelete: grant.PermDelete,
		})
		if err != nil {
			return err
		}
		right = r
		return s.logRight(ctx, tx, vaultID, p, fmt.Sprintf("Shared the vault with user %s", grant.UserID))
	})
	if err != nil {
		return nil, err
	}
	return right, nil
}

// UpdateRight changes the permission bits of an existing grant. The wrapped
// key is left untouched.
func (s *RightsService) UpdateRight(ctx context.Context, p access.Principal, rightID string, grant RightGrant) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Rights(tx)
		right, err := repo.GetByID(ctx, rightID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorAccessDenied
			}
			return err
		}
		if err := s.authorizer(p, tx).Require(ctx, right.VaultID, access.CapShare); err != nil {
			return err
		}
		right.PermCreate = grant.PermCreate
		right.PermWrite = grant.PermWrite
		right.PermShare = grant.PermShare
		right.PermDelete = grant.PermDelete
		if err := repo.Update(ctx, right); err != nil {
			return err
		}
		return s.logRight(ctx, tx, right.VaultID, p, fmt.Sprintf("Updated the rights of user %s", right.UserID))
	})
}

// Revoke removes a grant. The master key is not rotated here: the revoked
// user may have copied it already, so the vault is flagged reencrypt_required
// and the owner is expected to follow up with Replace.
func (s *RightsService) Revoke(ctx context.Context, p access.Principal, rightID string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Rights(tx)
		right, err := repo.GetByID(ctx, rightID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorAccessDenied
			}
			return err
		}
		if err := s.authorizer(p, tx).Require(ctx, right.VaultID, access.CapShare); err != nil {
			return err
		}

		vault, err := s.repomanager.Vaults(tx).GetByID(ctx, right.VaultID)
		if err != nil {
			return err
		}
		if right.UserID == vault.OwnerID {
			return common.ErrorValidation
		}

		if err := repo.Delete(ctx, rightID); err != nil {
			return err
		}
		if err := s.repomanager.Vaults(tx).SetReencryptRequired(ctx, right.VaultID, true); err != nil {
			return err
		}
		return s.logRight(ctx, tx, right.VaultID, p, fmt.Sprintf("Revoked the rights of user %s", right.UserID))
	})
}

// ListOwn returns every Right row held by the principal.
func (s *RightsService) ListOwn(ctx context.Context, p access.Principal) ([]*models.Right, error) {
	if p.UserID == "" {
		return nil, common.ErrorUnauthorized
	}
	return s.repomanager.Rights(s.db).ListByUser(ctx, p.UserID)
}

// ListVaultRights returns all grants on the vault, for the sharing UI.
func (s *RightsService) ListVaultRights(ctx context.Context, p access.Principal, vaultID string) ([]*models.Right, error) {
	if err := s.authorizer(p, s.db).Require(ctx, vaultID, access.CapShare); err != nil {
		return nil, err
	}
	return s.repomanager.Rights(s.db).ListByVault(ctx, vaultID)
}

// UpdateOwnKeys re-wraps the master key copies the principal holds after a
// user key rotation. Each item targets one of the principal's own Right rows.
func (s *RightsService) UpdateOwnKeys(ctx context.Context, p access.Principal, items []ReplaceItem) error {
	if p.UserID == "" {
		return common.ErrorUnauthorized
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Rights(tx)
		for _, item := range items {
			right, err := repo.GetByID(ctx, item.ID)
			if err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					return common.ErrorAccessDenied
				}
				return err
			}
			if right.UserID != p.UserID {
				return common.ErrorAccessDenied
			}
			n, err := repo.UpdateKey(ctx, item.ID, item.Key)
			if err != nil {
				return err
			}
			if n != 1 {
				return common.ErrorValidation
			}
		}
		return nil
	})
}

// Replace atomically swaps the vault's master key. The batch must cover
// every field, file and right of the vault; a partial batch rolls back with
// a validation error so the vault never ends up half re-encrypted. On
// success reencrypt_required is cleared and a single audit row is written.
func (s *RightsService) Replace(ctx context.Context, p access.Principal, vaultID string, batch ReplaceBatch) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		authz := s.authorizer(p, tx)
		if err := authz.Require(ctx, vaultID, access.CapShare); err != nil {
			return err
		}
		if err := authz.Require(ctx, vaultID, access.CapWrite); err != nil {
			return err
		}

		fieldRepo := s.repomanager.Fields(tx)
		fileRepo := s.repomanager.Files(tx)
		rightRepo := s.repomanager.Rights(tx)

		fieldCount, err := fieldRepo.CountByVault(ctx, vaultID)
		if err != nil {
			return err
		}
		fileCount, err := fileRepo.CountByVault(ctx, vaultID)
		if err != nil {
			return err
		}
		rightCount, err := rightRepo.CountByVault(ctx, vaultID)
		if err != nil {
			return err
		}
		if int64(len(batch.Fields)) != fieldCount ||
			int64(len(batch.Files)) != fileCount ||
			int64(len(batch.Rights)) != rightCount {
			return common.ErrorValidation
		}

		// every update is scoped to the vault; an id pointing at another
		// vault's row touches nothing and fails the batch
		for _, item := range batch.Fields {
			n, err := fieldRepo.UpdateCiphertext(ctx, vaultID, item.ID, item.Value, item.IV)
			if err != nil {
				return err
			}
			if n != 1 {
				return common.ErrorValidation
			}
		}
		for _, item := range batch.Files {
			n, err := fileRepo.UpdateCiphertext(ctx, vaultID, item.ID, item.Content, item.IV)
			if err != nil {
				return err
			}
			if n != 1 {
				return common.ErrorValidation
			}
		}
		for _, item := range batch.Rights {
			right, err := rightRepo.GetByID(ctx, item.ID)
			if err != nil {
				return err
			}
			if right.VaultID != vaultID {
				return common.ErrorValidation
			}
			n, err := rightRepo.UpdateKey(ctx, item.ID, item.Key)
			if err != nil {
				return err
			}
			if n != 1 {
				return common.ErrorValidation
			}
		}

		if err := s.repomanager.Vaults(tx).SetReencryptRequired(ctx, vaultID, false); err != nil {
			return err
		}
		return s.logRight(ctx, tx, vaultID, p, "Replaced the keys")
	})
	if err != nil {
		return err
	}
	return nil
}

func (s *RightsService) logRight(ctx context.Context, tx dbx.DBTX, vaultID string, p access.Principal, message string) error {
	var userID *string
	actor := "system"
	if !p.System {
		userID = &p.UserID
		actor = p.UserID
	}
	return s.repomanager.Logs(tx).AddVaultLog(ctx, &models.VaultLog{
		VaultID: vaultID,
		UserID:  userID,
		Actor:   actor,
		Message: message,
	})
}
