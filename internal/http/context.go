package http

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/example/lab-reservations/internal/application"
)

type contextKey string

const sessionContextKey contextKey = "session"

// ContextWithSession returns a derived context containing the authenticated session.
func ContextWithSession(ctx context.Context, session application.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// SessionFromContext extracts the session from context. Visitors without a
// token get the zero Session and false.
func SessionFromContext(ctx context.Context) (application.Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(application.Session)
	return session, ok && session.Authenticated()
}

func sessionOf(c *gin.Context) application.Session {
	session, _ := SessionFromContext(c.Request.Context())
	return session
}
