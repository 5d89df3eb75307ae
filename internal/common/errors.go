// Package common defines shared constants and sentinel errors used across
// the vault server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Access control: carries no detail beyond "not authorized" so that a
	// forbidden record is indistinguishable from a nonexistent one.
	ErrorAccessDenied = errors.New("access denied")

	// Validation errors.
	ErrorValidation = errors.New("validation error")
	ErrorCycle      = errors.New("cyclic parent assignment")

	// Exchange lifecycle: token exists but is exhausted or expired.
	// Distinct from ErrorNotFound; anonymous callers get different messages.
	ErrorGone = errors.New("gone")

	// Import/export: wraps the original cause of a failed document merge.
	ErrorImport = errors.New("import failed")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)
