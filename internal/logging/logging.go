// Package logging builds the process logger and carries request scoped
// loggers through contexts so that every layer logs with the same request id
// and actor.
package logging

import (
	"context"
	"io"
	"log/slog"
)

type loggerKey struct{}

// New returns a JSON logger writing records at level and above to w.
func New(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// ContextWithLogger attaches logger to ctx. A nil logger leaves ctx unchanged.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger attached to ctx, or nil.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return nil
	}
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return nil
}

// FromContextOr prefers the request logger, then fallback, then slog.Default.
func FromContextOr(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	switch logger := FromContext(ctx); {
	case logger != nil:
		return logger
	case fallback != nil:
		return fallback
	default:
		return slog.Default()
	}
}

// With attaches args to the request logger in ctx. It is a no-op when ctx
// carries no logger.
func With(ctx context.Context, args ...any) context.Context {
	logger := FromContext(ctx)
	if logger == nil || len(args) == 0 {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger.With(args...))
}
