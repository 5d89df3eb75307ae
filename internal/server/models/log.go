package models

import "time"

// VaultLog is an append-only audit row attached to a vault and optionally to
// one of its entries. Rows are written in the same transaction as the
// mutation they record and are immutable afterwards.
type VaultLog struct {
	ID        string
	VaultID   string
	EntryID   *string
	UserID    *string
	Actor     string
	Message   string
	CreatedAt time.Time
}

// InboxLog records an anonymous inbox submission. Actor and IP are
// best-effort metadata supplied by the unauthenticated caller.
type InboxLog struct {
	ID        string
	InboxID   string
	Actor     string
	IP        string
	Message   string
	CreatedAt time.Time
}

// ShareLog records an anonymous share retrieval.
type ShareLog struct {
	ID        string
	ShareID   string
	IP        string
	Message   string
	CreatedAt time.Time
}
