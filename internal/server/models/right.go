package models

// Right grants one user access to one vault. Read access is implied by the
// row's existence; the four bits gate the remaining operations. Key holds a
// copy of the vault's master key wrapped under the user's current public key.
type Right struct {
	ID         string
	VaultID    string
	UserID     string
	Key        string
	PermCreate bool
	PermWrite  bool
	PermShare  bool
	PermDelete bool
}

// UserKey is a per-user asymmetric key record. Exactly one row per user has
// Current set; storing a new key demotes the previous one. The private key is
// wrapped client-side under a KDF of the user's passphrase.
type UserKey struct {
	ID         string
	UserID     string
	UUID       string
	Public     string
	Private    string
	Salt       string
	IV         string
	Iterations int
	Version    int
	Current    bool
}

// MinKDFIterations is the lowest accepted KDF work factor for UserKey rows.
const MinKDFIterations = 4000
