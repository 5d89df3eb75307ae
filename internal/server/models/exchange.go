package models

import "time"

// Inbox is a token-addressed deposit box through which anonymous parties
// submit a secret to its owner. Accesses counts the remaining anonymous
// write permits; the row is created locked (accesses 0) by the first write.
type Inbox struct {
	ID         string
	Token      string
	UserID     string
	Name       string
	Secret     string
	SecretFile []byte
	Key        string
	IV         string
	Accesses   int
	Expiration time.Time
}

// Share publishes one secret from its owner to anonymous recipients.
// Accesses counts the remaining reads; Pin is opaque to the server and is
// consumed by client-side decryption only. Exactly one of Secret/SecretFile
// is set.
type Share struct {
	ID         string
	Token      string
	UserID     string
	Name       string
	Secret     string
	SecretFile []byte
	Salt       string
	IV         string
	Pin        string
	Accesses   int
	Expiration time.Time
}
