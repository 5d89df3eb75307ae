package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vpetrenko/vaultd/internal/common"
	"github.com/vpetrenko/vaultd/internal/dbx"
	"github.com/vpetrenko/vaultd/internal/server/access"
	"github.com/vpetrenko/vaultd/internal/server/models"
	"github.com/vpetrenko/vaultd/internal/server/repositories/repomanager"
)

// ImportExportService serializes a vault's entry tree to a portable node
// document and merges such documents back in. Entries are correlated across
// vaults by UUID, not by database id.
type ImportExportService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewImportExportService(db *sql.DB, m repomanager.RepositoryManager) *ImportExportService {
	return &ImportExportService{db: db, repomanager: m}
}

// Node is one entry in the portable document. Field values and file
// contents stay ciphertext; an export is only readable by holders of the
// vault master key.
type Node struct {
	UUID   string      `json:"uuid"`
	Name   string      `json:"name"`
	URL    string      `json:"url,omitempty"`
	Note   string      `json:"note,omitempty"`
	Tags   string      `json:"tags,omitempty"`
	Fields []NodeField `json:"fields,omitempty"`
	Files  []NodeFile  `json:"files,omitempty"`
	Childs []*Node     `json:"childs,omitempty"`
}

type NodeField struct {
	Name  string `json:"name"`
	IV    string `json:"iv"`
	Value string `json:"value"`
}

type NodeFile struct {
	Name    string `json:"name"`
	IV      string `json:"iv"`
	Content []byte `json:"content"`
}

// Export serializes the vault tree depth-first. A non-empty entryID narrows
// the export to that entry's subtree; the entry must belong to the vault.
// With includeChildren false only the addressed nodes themselves are
// serialized.
func (s *ImportExportService) Export(ctx context.Context, p access.Principal, vaultID, entryID string, includeChildren bool) ([]*Node, error) {
	authz := access.NewAuthorizer(p, s.repomanager.Vaults(s.db), s.repomanager.Rights(s.db))
	if err := authz.Require(ctx, vaultID, access.CapRead); err != nil {
		return nil, err
	}

	repo := s.repomanager.Entries(s.db)
	var roots []*models.Entry
	if entryID != "" {
		entry, err := repo.GetByID(ctx, entryID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil, common.ErrorAccessDenied
			}
			return nil, err
		}
		if entry.VaultID != vaultID {
			return nil, common.ErrorValidation
		}
		roots = []*models.Entry{entry}
	} else {
		var err error
		roots, err = repo.ListRoots(ctx, vaultID)
		if err != nil {
			return nil, err
		}
	}

	nodes := make([]*Node, 0, len(roots))
	for _, root := range roots {
		node, err := s.exportNode(ctx, root, includeChildren)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (s *ImportExportService) exportNode(ctx context.Context, entry *models.Entry, includeChildren bool) (*Node, error) {
	node := &Node{
		UUID: entry.UUID,
		Name: entry.Name,
		URL:  entry.URL,
		Note: entry.Note,
		Tags: entry.Tags,
	}

	fields, err := s.repomanager.Fields(s.db).ListByEntry(ctx, entry.ID)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		node.Fields = append(node.Fields, NodeField{Name: f.Name, IV: f.IV, Value: f.Value})
	}

	files, err := s.repomanager.Files(s.db).ListByEntry(ctx, entry.ID)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		node.Files = append(node.Files, NodeFile{Name: f.Name, IV: f.IV, Content: f.Content})
	}

	if !includeChildren {
		return node, nil
	}

	children, err := s.repomanager.Entries(s.db).ListChildren(ctx, entry.ID)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		childNode, err := s.exportNode(ctx, child, includeChildren)
		if err != nil {
			return nil, err
		}
		node.Childs = append(node.Childs, childNode)
	}
	return node, nil
}

// Import merges a node document into the vault. Nodes are matched to
// existing entries by UUID: a match is updated and reparented in place, a
// miss is created. The walk is depth-first with each node settled before
// its children, so a parent always exists when its child is written. When a
// UUID appears more than once in the document, the occurrence processed
// last wins, reparenting included; earlier placements are not restored.
//
// A non-empty targetParentID attaches the document's top-level nodes under
// that entry instead of the vault root; the parent must belong to the vault.
//
// A non-empty pathFilter limits the merge to the subtree whose derived path
// matches the filter; ancestors on the way down are still materialized so
// the subtree has somewhere to attach.
//
// Every failure surfaces as a single generic import error with the cause
// chained, so partially invalid documents do not leak row-level detail.
func (s *ImportExportService) Import(ctx context.Context, p access.Principal, vaultID string, nodes []*Node, targetParentID, pathFilter string) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		authz := access.NewAuthorizer(p, s.repomanager.Vaults(tx), s.repomanager.Rights(tx))
		if err := authz.Require(ctx, vaultID, access.CapCreate); err != nil {
			return err
		}
		if err := authz.Require(ctx, vaultID, access.CapWrite); err != nil {
			return err
		}

		var parent *models.Entry
		parentPath := ""
		if targetParentID != "" {
			var err error
			parent, err = s.repomanager.Entries(tx).GetByID(ctx, targetParentID)
			if err != nil {
				return err
			}
			if parent.VaultID != vaultID {
				return common.ErrorValidation
			}
			parentPath = parent.CompleteName
		}

		for _, node := range nodes {
			if err := s.importNode(ctx, tx, vaultID, node, parent, parentPath, pathFilter); err != nil {
				return err
			}
		}

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
			Message: "Imported entries",
		})
	})
	if err != nil {
		if errors.Is(err, common.ErrorAccessDenied) || errors.Is(err, common.ErrorUnauthorized) {
			return err
		}
		return fmt.Errorf("%w: %w", common.ErrorImport, err)
	}
	return nil
}

func (s *ImportExportService) importNode(ctx context.Context, tx dbx.DBTX, vaultID string, node *Node, parent *models.Entry, parentPath, pathFilter string) error {
	if node.UUID == "" || node.Name == "" {
		return common.ErrorValidation
	}

	path := node.Name
	if parentPath != "" {
		path = parentPath + " / " + node.Name
	}
	if !pathMatches(path, pathFilter) {
		return nil
	}

	repo := s.repomanager.Entries(tx)
	var parentID *string
	if parent != nil {
		parentID = &parent.ID
	}

	entry, err := repo.GetByUUID(ctx, vaultID, node.UUID)
	switch {
	case err == nil:
		entry.Name = node.Name
		entry.URL = node.URL
		entry.Note = node.Note
		entry.Tags = node.Tags
		if err := repo.Update(ctx, entry); err != nil {
			return err
		}
		if err := repo.UpdateParent(ctx, entry.ID, parentID); err != nil {
			return err
		}
		entry.ParentID = parentID
	case errors.Is(err, common.ErrorNotFound):
		entry, err = repo.Create(ctx, &models.Entry{
			UUID:     node.UUID,
			VaultID:  vaultID,
			ParentID: parentID,
			Name:     node.Name,
			URL:      node.URL,
			Note:     node.Note,
			Tags:     node.Tags,
		})
		if err != nil {
			return err
		}
	default:
		return err
	}

	entry.CompleteName = completeName(parent, node.Name)
	if err := repo.UpdateCompleteName(ctx, entry.ID, entry.CompleteName); err != nil {
		return err
	}

	if strings.HasPrefix(path, pathFilter) || pathFilter == "" {
		for _, f := range node.Fields {
			if err := s.repomanager.Fields(tx).Upsert(ctx, &models.Field{
				EntryID: entry.ID, Name: f.Name, IV: f.IV, Value: f.Value,
			}); err != nil {
				return err
			}
		}
		for _, f := range node.Files {
			if err := s.repomanager.Files(tx).Upsert(ctx, &models.File{
				EntryID: entry.ID, Name: f.Name, IV: f.IV, Content: f.Content,
			}); err != nil {
				return err
			}
		}
	}

	for _, child := range node.Childs {
		if err := s.importNode(ctx, tx, vaultID, child, entry, path, pathFilter); err != nil {
			return err
		}
	}

	// a reparented subtree needs its descendants' paths refreshed too
	return refreshSubtreeNames(ctx, repo, entry)
}

// pathMatches keeps nodes inside the filtered subtree and the ancestors
// leading to it.
func pathMatches(path, filter string) bool {
	if filter == "" {
		return true
	}
	return strings.HasPrefix(path, filter) || strings.HasPrefix(filter, path)
}
