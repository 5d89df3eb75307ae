package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vpetrenko/vaultd/internal/common"
	"github.com/vpetrenko/vaultd/internal/dbx"
	"github.com/vpetrenko/vaultd/internal/server/access"
	"github.com/vpetrenko/vaultd/internal/server/models"
	"github.com/vpetrenko/vaultd/internal/server/repositories/repomanager"
)

// KeyService manages per-user asymmetric key records. The server only ever
// sees the public key in the clear; private material arrives wrapped under a
// client-side KDF of the passphrase.
type KeyService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewKeyService(db *sql.DB, m repomanager.RepositoryManager) *KeyService {
	return &KeyService{db: db, repomanager: m}
}

// validateKey rejects key records with missing material or a weakened KDF.
func validateKey(key *models.UserKey) error {
	if key.UUID == "" || key.Public == "" || key.Private == "" || key.Salt == "" || key.IV == "" {
		return common.ErrorValidation
	}
	if key.Iterations < models.MinKDFIterations {
		return common.ErrorValidation
	}
	if key.Version < 1 {
		return common.ErrorValidation
	}
	return nil
}

// Store saves a new current key for the principal. Re-submitting the current
// key with byte-identical private material is a no-op returning (nil, nil),
// so a retrying client can tell nothing was stored. Otherwise the previous
// key is demoted and every vault the user can reach through a right is
// flagged for re-encryption.
func (s *KeyService) Store(ctx context.Context, p access.Principal, key *models.UserKey) (*models.UserKey, error) {
	if p.UserID == "" {
		return nil, common.ErrorUnauthorized
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	current, err := s.repomanager.UserKeys(s.db).GetCurrent(ctx, p.UserID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}
	if current != nil && subtle.ConstantTimeCompare([]byte(current.Private), []byte(key.Private)) == 1 {
		return nil, nil
	}

	key.UserID = p.UserID
	key.Current = true

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.UserKeys(tx)
		if current != nil {
			if err := repo.DemoteCurrent(ctx, p.UserID); err != nil {
				return err
			}
		}
		id, err := repo.Insert(ctx, key)
		if err != nil {
			return err
		}
		key.ID = id
		_, err = s.repomanager.Vaults(tx).MarkReencryptRequiredForUser(ctx, p.UserID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error storing key: %w", err)
	}
	return key, nil
}

// GetOwn returns the principal's current key record, wrapped private
// material included.
func (s *KeyService) GetOwn(ctx context.Context, p access.Principal) (*models.UserKey, error) {
	if p.UserID == "" {
		return nil, common.ErrorUnauthorized
	}
	return s.repomanager.UserKeys(s.db).GetCurrent(ctx, p.UserID)
}

// PublicKey returns the current public key of any user, so that vault owners
// can wrap master keys for new grantees.
func (s *KeyService) PublicKey(ctx context.Context, userID string) (string, error) {
	return s.repomanager.UserKeys(s.db).GetPublicKey(ctx, userID)
}
