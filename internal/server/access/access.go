// Package access computes and enforces the per-(vault, principal) capability
// flags that guard every operation against vault records.
//
// The requesting principal is always an explicit parameter, never ambient
// state: which principal a set of flags was computed for is a type-checkable
// fact. Flags are cached per Authorizer only, and an Authorizer is bound to
// exactly one principal, so a cached flag can never leak across a principal
// switch.
package access

import (
	"context"
	"errors"

	"github.com/vpetrenko/vaultd/internal/common"
	"github.com/vpetrenko/vaultd/internal/server/models"
)

// Principal identifies the requesting user. System marks trusted execution
// (housekeeping, migrations) that bypasses all checks; it must never be set
// for a user-triggered request.
type Principal struct {
	UserID string
	System bool
}

// SystemPrincipal is the bypass context used by the host's own privileged
// code paths.
var SystemPrincipal = Principal{System: true}

// Capability is one of the closed set of guarded operations.
type Capability int

const (
	CapRead Capability = iota
	CapCreate
	CapWrite
	CapShare
	CapDelete
)

func (c Capability) String() string {
	switch c {
	case CapRead:
		return "read"
	case CapCreate:
		return "create"
	case CapWrite:
		return "write"
	case CapShare:
		return "share"
	case CapDelete:
		return "delete"
	}
	return "unknown"
}

// Flags holds the five capability bits computed for one (vault, principal)
// pair.
type Flags struct {
	Read   bool
	Create bool
	Write  bool
	Share  bool
	Delete bool
}

// Has reports whether the given capability is granted.
func (f Flags) Has(c Capability) bool {
	switch c {
	case CapRead:
		return f.Read
	case CapCreate:
		return f.Create
	case CapWrite:
		return f.Write
	case CapShare:
		return f.Share
	case CapDelete:
		return f.Delete
	}
	return false
}

// Compute derives the capability flags for principal p on a vault owned by
// ownerID, given p's Right row on that vault (nil when p holds none).
//
// The owner bypass is unconditional and independent of the owner's own
// Right row bit values. A principal with no Right row on a vault they do
// not own gets all flags false.
func Compute(p Principal, ownerID string, right *models.Right) Flags {
	if p.System || (p.UserID != "" && p.UserID == ownerID) {
		return Flags{Read: true, Create: true, Write: true, Share: true, Delete: true}
	}
	if right == nil || right.UserID != p.UserID {
		return Flags{}
	}
	return Flags{
		Read:   true, // implied by the row's existence
		Create: right.PermCreate,
		Write:  right.PermWrite,
		Share:  right.PermShare,
		Delete: right.PermDelete,
	}
}

// RightLookup loads the Right row for (vaultID, userID), returning
// common.ErrorNotFound when no row exists.
type RightLookup interface {
	FindByVaultAndUser(ctx context.Context, vaultID, userID string) (*models.Right, error)
}

// VaultLookup loads a vault by id.
type VaultLookup interface {
	GetByID(ctx context.Context, id string) (*models.Vault, error)
}

// Authorizer resolves and caches capability flags for a single principal
// within a single request. It must not outlive the request that created it.
type Authorizer struct {
	principal Principal
	vaults    VaultLookup
	rights    RightLookup
	cache     map[string]Flags
}

// NewAuthorizer binds an Authorizer to one principal and the repositories it
// reads from.
func NewAuthorizer(p Principal, vaults VaultLookup, rights RightLookup) *Authorizer {
	return &Authorizer{
		principal: p,
		vaults:    vaults,
		rights:    rights,
		cache:     make(map[string]Flags),
	}
}

// Principal returns the principal this Authorizer was built for.
func (a *Authorizer) Principal() Principal { return a.principal }

// Flags returns the capability flags of the bound principal on vaultID.
// An unknown vault yields all-false flags rather than an error, so callers
// cannot distinguish "vault doesn't exist" from "vault exists but is
// invisible".
func (a *Authorizer) Flags(ctx context.Context, vaultID string) (Flags, error) {
	if f, ok := a.cache[vaultID]; ok {
		return f, nil
	}
	if a.principal.System {
		f := Compute(a.principal, "", nil)
		a.cache[vaultID] = f
		return f, nil
	}

	vault, err := a.vaults.GetByID(ctx, vaultID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			f := Flags{}
			a.cache[vaultID] = f
			return f, nil
		}
		return Flags{}, err
	}

	var right *models.Right
	r, err := a.rights.FindByVaultAndUser(ctx, vaultID, a.principal.UserID)
	switch {
	case err == nil:
		right = r
	case errors.Is(err, common.ErrorNotFound):
		// no row: read stays implied for the owner only
	default:
		return Flags{}, err
	}

	f := Compute(a.principal, vault.OwnerID, right)
	a.cache[vaultID] = f
	return f, nil
}

// Require returns common.ErrorAccessDenied unless the bound principal holds
// the given capability on vaultID.
func (a *Authorizer) Require(ctx context.Context, vaultID string, c Capability) error {
	f, err := a.Flags(ctx, vaultID)
	if err != nil {
		return err
	}
	if !f.Has(c) {
		return common.ErrorAccessDenied
	}
	return nil
}
