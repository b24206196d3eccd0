package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/lab-reservations/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// serviceLogger scopes the request logger, or base outside a request, to one
// service operation.
func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	pairs := make([]any, 0, 4+len(attrs))
	pairs = append(pairs, "service", serviceName)
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	return logging.FromContextOr(ctx, base).With(append(pairs, attrs...)...)
}

// errorKinds is checked in order; the first sentinel err wraps names it.
var errorKinds = []struct {
	target error
	kind   string
}{
	{ErrNotAuthenticated, "not_authenticated"},
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrSessionExpired, "session_expired"},
	{ErrSessionRevoked, "session_revoked"},
	{ErrUnauthorized, "unauthorized"},
	{ErrDuplicateIdentity, "duplicate_identity"},
	{ErrSlotUnavailable, "slot_unavailable"},
	{ErrConcurrentModification, "concurrent_modification"},
	{ErrNotFound, "not_found"},
	{ErrDataCorruption, "data_corruption"},
	{context.Canceled, "cancelled"},
	{context.DeadlineExceeded, "cancelled"},
}

// ErrorKind maps an error to the stable label logged as error_kind.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.kind
		}
	}
	if vErr := (*ValidationError)(nil); errors.As(err, &vErr) {
		return "validation"
	}
	return "unexpected"
}
