// Package logging defines the structured logger the vault server components
// accept, so services and the HTTP layer stay independent of the concrete
// backend.
package logging

import "context"

// Logger is a context-aware structured logger. The variadic args are
// alternating key-value pairs, slog style:
//
//	log.Info(ctx, "server started", "addr", addr)
type Logger interface {
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger carrying the given key-value pairs on
	// every record.
	With(args ...any) Logger
}
