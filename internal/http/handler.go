package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/lab-reservations/internal/application"
	"github.com/example/lab-reservations/internal/logging"
)

// handler holds what every endpoint group shares: a name for log records, a
// responder and a fallback logger.
type handler struct {
	name      string
	responder responder
	logger    *slog.Logger
}

func newHandler(name string, logger *slog.Logger) handler {
	logger = defaultLogger(logger)
	return handler{name: name, responder: newResponder(logger), logger: logger}
}

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func (h handler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	pairs := []any{"handler", h.name}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	return logging.FromContextOr(ctx, h.logger).With(append(pairs, attrs...)...)
}

// fail logs err at a level matching its kind and writes the mapped response.
func (h handler) fail(c *gin.Context, logger *slog.Logger, message string, err error) {
	level := slog.LevelInfo
	if status, _ := classify(err); status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(c.Request.Context(), level, message, "error", err, "error_kind", application.ErrorKind(err))
	h.responder.serviceError(c, err)
}

// decode reads a JSON body into dst, answering 400 itself when it cannot.
func (h handler) decode(c *gin.Context, operation string, dst any) bool {
	if err := json.NewDecoder(c.Request.Body).Decode(dst); err != nil {
		h.log(c.Request.Context(), operation, "error_kind", "bad_request").
			InfoContext(c.Request.Context(), "failed to decode request body", "error", err)
		h.responder.reject(c, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return false
	}
	return true
}

func (h handler) ok(c *gin.Context, status int, payload any) {
	h.responder.respond(c, status, payload)
}
