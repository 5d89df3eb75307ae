// Package models declares the persistent entities of the vault core.
// All secret material (field values, file payloads, wrapped keys) is
// ciphertext produced by the client; the server never interprets it.
package models

import "time"

// Vault is a named container owned by one principal, holding an encrypted
// secret tree. Owner is immutable after creation.
type Vault struct {
	ID                string
	UUID              string
	OwnerID           string
	Name              string
	Note              string
	ReencryptRequired bool
	CreatedAt         time.Time
}

// Entry is a node in a vault's hierarchical tree. ParentID is nil for root
// entries and must reference an entry of the same vault otherwise. The parent
// chain is acyclic; CompleteName is derived and recomputed on every rename
// or reparent.
type Entry struct {
	ID           string
	UUID         string
	VaultID      string
	ParentID     *string
	Name         string
	URL          string
	Note         string
	Tags         string
	ExpireDate   *time.Time
	CompleteName string
}

// Expired reports whether the entry's expire date has passed. Unset dates
// count as not expired.
func (e *Entry) Expired(now time.Time) bool {
	return e.ExpireDate != nil && now.After(*e.ExpireDate)
}

// Field is an encrypted key/value pair attached to exactly one entry.
// Value is opaque ciphertext; IV carries the initialization vector used by
// the client.
type Field struct {
	ID      string
	EntryID string
	Name    string
	IV      string
	Value   string
}

// File is an encrypted binary payload attached to exactly one entry.
type File struct {
	ID      string
	EntryID string
	Name    string
	IV      string
	Content []byte
}
