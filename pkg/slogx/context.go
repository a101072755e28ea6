package slogx

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// WithContext stores a logger on the context for downstream callers.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the context's logger, or the process default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// WithUser tags the context logger with the acting user id.
func WithUser(ctx context.Context, userID string) context.Context {
	return WithContext(ctx, FromContext(ctx).With("user_id", userID))
}
