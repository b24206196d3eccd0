package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/lab-reservations/internal/application"
	"github.com/example/lab-reservations/internal/logging"
)

var (
	errBadRequestBody      = errors.New("request body is not valid JSON")
	errInvalidReservation  = errors.New("reservation id must be a positive integer")
	errMissingSessionToken = errors.New("a session token is required")
)

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// serviceErrors maps service sentinels to responses. The first match wins.
var serviceErrors = []struct {
	target  error
	status  int
	code    string
	message string
}{
	{application.ErrNotAuthenticated, http.StatusUnauthorized, "AUTH_REQUIRED", "you need to log in first"},
	{application.ErrInvalidCredentials, http.StatusUnauthorized, "AUTH_INVALID_CREDENTIALS", "identity or password is incorrect"},
	{application.ErrSessionExpired, http.StatusUnauthorized, "AUTH_SESSION_EXPIRED", "your session has expired, log in again"},
	{application.ErrSessionRevoked, http.StatusUnauthorized, "AUTH_SESSION_REVOKED", "this session was logged out"},
	{application.ErrUnauthorized, http.StatusForbidden, "AUTH_FORBIDDEN", "you are not allowed to perform this action"},
	{application.ErrDuplicateIdentity, http.StatusConflict, "DUPLICATE_IDENTITY", "an account with this identity already exists"},
	{application.ErrSlotUnavailable, http.StatusConflict, "SLOT_UNAVAILABLE", "this slot is already reserved"},
	{application.ErrConcurrentModification, http.StatusConflict, "CONCURRENT_MODIFICATION", "the data changed while saving, try again"},
	{application.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "the requested resource was not found"},
	{application.ErrDataCorruption, http.StatusInternalServerError, "DATA_CORRUPTION", "stored data could not be read"},
}

// classify returns the status and body for err. Unknown errors become a 500
// that does not leak the cause.
func classify(err error) (int, errorResponse) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.target) {
			return m.status, errorResponse{ErrorCode: m.code, Message: m.message}
		}
	}
	if vErr := (*application.ValidationError)(nil); errors.As(err, &vErr) {
		return http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   "the input is invalid",
			Errors:    vErr.FieldErrors,
		}
	}
	return http.StatusInternalServerError, errorResponse{Message: "internal server error"}
}

// responder writes JSON bodies. It never logs request failures; callers do,
// at the level the failure deserves.
type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) respond(c *gin.Context, status int, payload any) {
	if status == http.StatusNoContent || payload == nil {
		c.Status(status)
		c.Writer.WriteHeaderNow()
		return
	}

	c.Header("Content-Type", "application/json; charset=utf-8")
	c.Status(status)
	if err := json.NewEncoder(c.Writer).Encode(payload); err != nil {
		ctx := c.Request.Context()
		logging.FromContextOr(ctx, r.logger).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// reject aborts the chain with a client error carrying err's text.
func (r responder) reject(c *gin.Context, status int, code string, err error) {
	c.Abort()
	r.respond(c, status, errorResponse{ErrorCode: code, Message: err.Error()})
}

// serviceError aborts the chain with the response classify picks for err.
func (r responder) serviceError(c *gin.Context, err error) {
	c.Abort()
	status, body := classify(err)
	r.respond(c, status, body)
}
