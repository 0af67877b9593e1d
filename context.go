package tabular

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	ctxKeyActor  contextKey = "tabular_actor"
	ctxKeyLogger contextKey = "tabular_logger"
)

// WithActor returns a context carrying the acting user's name. Tables with
// update logging enabled stamp this into the updated_by column on writes.
func WithActor(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxKeyActor, name)
}

// ActorFromContext extracts the actor name from context, or "" if unset.
func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyActor).(string); ok {
		return v
	}
	return ""
}

// WithLogger returns a context carrying a structured logger for operations
// to report through.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKeyLogger, logger)
}

// LoggerFromContext extracts the logger from context, falling back to
// slog.Default.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKeyLogger).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
