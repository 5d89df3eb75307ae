package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vpetrenko/vaultd/internal/common"
	"github.com/vpetrenko/vaultd/internal/dbx"
	"github.com/vpetrenko/vaultd/internal/server/access"
	"github.com/vpetrenko/vaultd/internal/server/models"
	"github.com/vpetrenko/vaultd/internal/server/repositories/entries"
	"github.com/vpetrenko/vaultd/internal/server/repositories/repomanager"
)

// VaultService manages vault containers and their entry trees. Every
// operation re-derives the capability flags for the requesting principal
// before touching a record.
type VaultService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

// NewVaultService constructs a VaultService.
func NewVaultService(db *sql.DB, m repomanager.RepositoryManager) *VaultService {
	return &VaultService{db: db, repomanager: m}
}

// EntryUpdate describes a partial entry mutation. SetParent distinguishes
// "move to root" (true, ParentID nil) from "leave the parent alone" (false).
type EntryUpdate struct {
	Name       string
	URL        string
	Note       string
	Tags       string
	ExpireDate *time.Time
	ParentID   *string
	SetParent  bool
}

func (s *VaultService) authorizer(p access.Principal, db dbx.DBTX) *access.Authorizer {
	return access.NewAuthorizer(p, s.repomanager.Vaults(db), s.repomanager.Rights(db))
}

// CreateVault creates a vault owned by p, grants the owner a full-bit Right
// row carrying their wrapped master key copy, and writes the audit row, all
// in one transaction.
func (s *VaultService) CreateVault(ctx context.Context, p access.Principal, name, note, wrappedKey string) (*models.Vault, error) {
	if p.UserID == "" {
		return nil, common.ErrorUnauthorized
	}
	if name == "" || wrappedKey == "" {
		return nil, common.ErrorValidation
	}

	var vault *models.Vault
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		v, err := s.repomanager.Vaults(tx).Create(ctx, &models.Vault{OwnerID: p.UserID, Name: name, Note: note})
		if err != nil {
			return err
		}
		if _, err := s.repomanager.Rights(tx).Create(ctx, &models.Right{
			VaultID:    v.ID,
			UserID:     p.UserID,
			Key:        wrappedKey,
			PermCreate: true,
			PermWrite:  true,
			PermShare:  true,
			PermDelete: true,
		}); err != nil {
			return err
		}
		vault = v
		return s.logVault(ctx, tx, v.ID, nil, p, "Created the vault")
	})
	if err != nil {
		return nil, fmt.Errorf("error creating vault: %w", err)
	}
	return vault, nil
}

// GetVault returns the vault if p may read it.
func (s *VaultService) GetVault(ctx context.Context, p access.Principal, vaultID string) (*models.Vault, error) {
	if err := s.authorizer(p, s.db).Require(ctx, vaultID, access.CapRead); err != nil {
		return nil, err
	}
	return s.repomanager.Vaults(s.db).GetByID(ctx, vaultID)
}

// UpdateVault renames the vault and updates its note.
func (s *VaultService) UpdateVault(ctx context.Context, p access.Principal, vaultID, name, note string) error {
	if name == "" {
		return common.ErrorValidation
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.authorizer(p, tx).Require(ctx, vaultID, access.CapWrite); err != nil {
			return err
		}
		if err := s.repomanager.Vaults(tx).Update(ctx, vaultID, name, note); err != nil {
			return err
		}
		return s.logVault(ctx, tx, vaultID, nil, p, "Updated the vault")
	})
}

// DeleteVault removes the vault and, through the schema's cascades, every
// entry, field, file, right and log row it owns.
func (s *VaultService) DeleteVault(ctx context.Context, p access.Principal, vaultID string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.authorizer(p, tx).Require(ctx, vaultID, access.CapDelete); err != nil {
			return err
		}
		return s.repomanager.Vaults(tx).Delete(ctx, vaultID)
	})
}

// CreateEntry creates an entry in the vault, under the given parent when
// set. The parent must belong to the same vault.
func (s *VaultService) CreateEntry(ctx context.Context, p access.Principal, entry *models.Entry) (*models.Entry, error) {
	if entry.Name == "" || entry.VaultID == "" {
		return nil, common.ErrorValidation
	}

	var created *models.Entry
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.authorizer(p, tx).Require(ctx, entry.VaultID, access.CapCreate); err != nil {
			return err
		}
		repo := s.repomanager.Entries(tx)

		var parent *models.Entry
		if entry.ParentID != nil {
			var err error
			parent, err = repo.GetByID(ctx, *entry.ParentID)
			if err != nil {
				return common.ErrorValidation
			}
			if parent.VaultID != entry.VaultID {
				return common.ErrorValidation
			}
		}
		entry.CompleteName = completeName(parent, entry.Name)

		e, err := repo.Create(ctx, entry)
		if err != nil {
			return err
		}
		created = e
		return s.logVault(ctx, tx, entry.VaultID, &e.ID, p, fmt.Sprintf("Created the entry %q", e.Name))
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetEntry returns an entry if p may read its vault. A nonexistent id yields
// the same access-denied failure as a forbidden one.
func (s *VaultService) GetEntry(ctx context.Context, p access.Principal, entryID string) (*models.Entry, error) {
	entry, err := s.repomanager.Entries(s.db).GetByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorAccessDenied
		}
		return nil, err
	}
	if err := s.authorizer(p, s.db).Require(ctx, entry.VaultID, access.CapRead); err != nil {
		return nil, err
	}
	return entry, nil
}

// UpdateEntry applies a partial mutation. A parent change is validated
// against the tree before anything is written: walking the proposed
// ancestor chain must never reach the entry itself. The derived
// complete_name is recomputed for the entry and its whole subtree.
func (s *VaultService) UpdateEntry(ctx context.Context, p access.Principal, entryID string, upd EntryUpdate) error {
	if upd.Name == "" {
		return common.ErrorValidation
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Entries(tx)
		entry, err := repo.GetByID(ctx, entryID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorAccessDenied
			}
			return err
		}
		if err := s.authorizer(p, tx).Require(ctx, entry.VaultID, access.CapWrite); err != nil {
			return err
		}

		parentID := entry.ParentID
		if upd.SetParent {
			parentID = upd.ParentID
		}

		var parent *models.Entry
		if parentID != nil {
			parent, err = repo.GetByID(ctx, *parentID)
			if err != nil {
				return common.ErrorValidation
			}
			if parent.VaultID != entry.VaultID {
				return common.ErrorValidation
			}
			if err := ensureAcyclic(ctx, repo, entryID, parent); err != nil {
				return err
			}
		}

		entry.Name = upd.Name
		entry.URL = upd.URL
		entry.Note = upd.Note
		entry.Tags = upd.Tags
		entry.ExpireDate = upd.ExpireDate
		if err := repo.Update(ctx, entry); err != nil {
			return err
		}
		if upd.SetParent {
			if err := repo.UpdateParent(ctx, entryID, parentID); err != nil {
				return err
			}
		}

		entry.CompleteName = completeName(parent, entry.Name)
		if err := repo.UpdateCompleteName(ctx, entryID, entry.CompleteName); err != nil {
			return err
		}
		if err := refreshSubtreeNames(ctx, repo, entry); err != nil {
			return err
		}
		return s.logVault(ctx, tx, entry.VaultID, &entry.ID, p, fmt.Sprintf("Updated the entry %q", entry.Name))
	})
}

// DeleteEntry removes the entry and its subtree.
func (s *VaultService) DeleteEntry(ctx context.Context, p access.Principal, entryID string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Entries(tx)
		entry, err := repo.GetByID(ctx, entryID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorAccessDenied
			}
			return err
		}
		if err := s.authorizer(p, tx).Require(ctx, entry.VaultID, access.CapDelete); err != nil {
			return err
		}
		if err := repo.Delete(ctx, entryID); err != nil {
			return err
		}
		return s.logVault(ctx, tx, entry.VaultID, nil, p, fmt.Sprintf("Deleted the entry %q", entry.CompleteName))
	})
}

// SetField stores or overwrites an encrypted field on an entry.
func (s *VaultService) SetField(ctx context.Context, p access.Principal, entryID, name, iv, value string) error {
	if name == "" {
		return common.ErrorValidation
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		entry, err := s.guardedEntry(ctx, tx, p, entryID, access.CapWrite)
		if err != nil {
			return err
		}
		if err := s.repomanager.Fields(tx).Upsert(ctx, &models.Field{
			EntryID: entryID, Name: name, IV: iv, Value: value,
		}); err != nil {
			return err
		}
		return s.logVault(ctx, tx, entry.VaultID, &entry.ID, p, fmt.Sprintf("Changed the field %q", name))
	})
}

// SetFile stores or overwrites an encrypted file attachment on an entry.
func (s *VaultService) SetFile(ctx context.Context, p access.Principal, entryID, name, iv string, content []byte) error {
	if name == "" || len(content) == 0 {
		return common.ErrorValidation
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		entry, err := s.guardedEntry(ctx, tx, p, entryID, access.CapWrite)
		if err != nil {
			return err
		}
		if err := s.repomanager.Files(tx).Upsert(ctx, &models.File{
			EntryID: entryID, Name: name, IV: iv, Content: content,
		}); err != nil {
			return err
		}
		return s.logVault(ctx, tx, entry.VaultID, &entry.ID, p, fmt.Sprintf("Changed the file %q", name))
	})
}

// ListFields returns the entry's fields if p may read the vault.
func (s *VaultService) ListFields(ctx context.Context, p access.Principal, entryID string) ([]*models.Field, error) {
	if _, err := s.guardedEntry(ctx, s.db, p, entryID, access.CapRead); err != nil {
		return nil, err
	}
	return s.repomanager.Fields(s.db).ListByEntry(ctx, entryID)
}

// ListFiles returns the entry's file attachments if p may read the vault.
func (s *VaultService) ListFiles(ctx context.Context, p access.Principal, entryID string) ([]*models.File, error) {
	if _, err := s.guardedEntry(ctx, s.db, p, entryID, access.CapRead); err != nil {
		return nil, err
	}
	return s.repomanager.Files(s.db).ListByEntry(ctx, entryID)
}

// SearchEntries filters the vault's entries. The derived "expired"
// predicate is translated into expire_date conditions by the repository.
func (s *VaultService) SearchEntries(ctx context.Context, p access.Principal, vaultID string, filter entries.SearchFilter) ([]*models.Entry, error) {
	if err := s.authorizer(p, s.db).Require(ctx, vaultID, access.CapRead); err != nil {
		return nil, err
	}
	return s.repomanager.Entries(s.db).Search(ctx, vaultID, filter)
}

// ListLogs returns the vault's audit rows, newest first.
func (s *VaultService) ListLogs(ctx context.Context, p access.Principal, vaultID string) ([]*models.VaultLog, error) {
	if err := s.authorizer(p, s.db).Require(ctx, vaultID, access.CapRead); err != nil {
		return nil, err
	}
	return s.repomanager.Logs(s.db).ListByVault(ctx, vaultID)
}

// guardedEntry loads an entry and enforces the capability on its vault.
func (s *VaultService) guardedEntry(ctx context.Context, db dbx.DBTX, p access.Principal, entryID string, c access.Capability) (*models.Entry, error) {
	entry, err := s.repomanager.Entries(db).GetByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorAccessDenied
		}
		return nil, err
	}
	if err := s.authorizer(p, db).Require(ctx, entry.VaultID, c); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *VaultService) logVault(ctx context.Context, tx dbx.DBTX, vaultID string, entryID *string, p access.Principal, message string) error {
	var userID *string
	actor := "system"
	if !p.System {
		userID = &p.UserID
		actor = p.UserID
	}
	return s.repomanager.Logs(tx).AddVaultLog(ctx, &models.VaultLog{
		VaultID: vaultID,
		EntryID: entryID,
		UserID:  userID,
		Actor:   actor,
		Message: message,
	})
}

// completeName derives the display path: root entries carry their own name,
// children prepend the parent's path.
func completeName(parent *models.Entry, name string) string {
	if parent == nil {
		return name
	}
	return parent.CompleteName + " / " + name
}

// ensureAcyclic walks the proposed ancestor chain from newParent upward and
// fails with common.ErrorCycle if it reaches the entry being moved.
func ensureAcyclic(ctx context.Context, repo entries.Repository, entryID string, newParent *models.Entry) error {
	cur := newParent
	for cur != nil {
		if cur.ID == entryID {
			return common.ErrorCycle
		}
		if cur.ParentID == nil {
			return nil
		}
		next, err := repo.GetByID(ctx, *cur.ParentID)
		if err != nil {
			return err
		}
		cur = next
	}
	return nil
}

// refreshSubtreeNames recomputes complete_name for every descendant of the
// entry, depth-first.
func refreshSubtreeNames(ctx context.Context, repo entries.Repository, entry *models.Entry) error {
	children, err := repo.ListChildren(ctx, entry.ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		child.CompleteName = entry.CompleteName + " / " + child.Name
		if err := repo.UpdateCompleteName(ctx, child.ID, child.CompleteName); err != nil {
			return err
		}
		if err := refreshSubtreeNames(ctx, repo, child); err != nil {
			return err
		}
	}
	return nil
}
