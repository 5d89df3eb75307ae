package models

import "time"

// User is the host-identity seam: enough of an account record to mint the
// authenticated principal the vault core requires. The verifier is derived
// client-side from the master passphrase; the server only compares it.
type User struct {
	ID         string
	Login      string
	Salt       []byte
	Verifier   []byte
	InboxToken string
}

// RefreshToken is a server-stored long-lived token used to rotate access
// tokens.
type RefreshToken struct {
	Token   string
	UserID  string
	Expires time.Time
}
