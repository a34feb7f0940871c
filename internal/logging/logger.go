// Package logging defines the structured-logging interface used across the
// project, with an slog-backed default implementation.
package logging

import "context"

// Logger is a context-aware, structured logger. The variadic args are
// key-value pairs, e.g.:
//
//	log.Info(ctx, "sweep finished", "entered", n, "deleted", m)
type Logger interface {
	// Debug logs fine-grained diagnostic detail.
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given pairs.
	With(args ...any) Logger
}
