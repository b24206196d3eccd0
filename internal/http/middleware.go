package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/example/lab-reservations/internal/application"
	"github.com/example/lab-reservations/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// SessionValidator resolves a raw token into a session.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (application.Session, error)
}

// ResolveSession attaches the session named by the request's token to the
// request context. Requests without a token continue as visitors; a token
// that does not validate is rejected with 401.
func ResolveSession(validator SessionValidator, logger *slog.Logger) gin.HandlerFunc {
	responder := newResponder(logger)

	return func(c *gin.Context) {
		token := extractTokenFromRequest(c.Request)
		if token == "" || validator == nil {
			c.Next()
			return
		}

		session, err := validator.ValidateSession(c.Request.Context(), token)
		if err != nil {
			ctx := c.Request.Context()
			logging.FromContextOr(ctx, responder.logger).InfoContext(ctx, "session rejected",
				"error", err, "error_kind", application.ErrorKind(err))
			responder.serviceError(c, err)
			return
		}

		ctx := logging.With(ContextWithSession(c.Request.Context(), session), "actor", session.Identity)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireSession rejects visitors. It must run after ResolveSession.
func RequireSession(logger *slog.Logger) gin.HandlerFunc {
	responder := newResponder(logger)

	return func(c *gin.Context) {
		if _, ok := SessionFromContext(c.Request.Context()); !ok {
			responder.reject(c, http.StatusUnauthorized, "AUTH_REQUIRED", errMissingSessionToken)
			return
		}
		c.Next()
	}
}

// RequestLogger gives every request an identifier and a logger carrying it,
// and logs the start and end of the request.
func RequestLogger(base *slog.Logger) gin.HandlerFunc {
	if base == nil {
		base = slog.Default()
	}

	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		logger := base.With(
			"request_id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)

		ctx := logging.ContextWithLogger(c.Request.Context(), logger)
		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		logger.DebugContext(ctx, "request started")
		c.Next()
		logger.InfoContext(ctx, "request completed", "status", c.Writer.Status(), "duration", time.Since(start))
	}
}

func extractTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
