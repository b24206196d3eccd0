package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/lab-reservations/internal/application"
)

const sessionCookieName = "session_token"

type authService interface {
	Register(ctx context.Context, params application.RegisterParams) (application.User, error)
	Login(ctx context.Context, params application.LoginParams) (application.LoginResult, error)
	Logout(ctx context.Context, session application.Session) error
}

// AuthHandler serves registration, login and logout.
type AuthHandler struct {
	handler
	service      authService
	secureCookie bool
}

// NewAuthHandler constructs an AuthHandler. secureCookie marks the session
// cookie Secure; disable it only for plain HTTP development setups.
func NewAuthHandler(service authService, secureCookie bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{handler: newHandler("AuthHandler", logger), service: service, secureCookie: secureCookie}
}

// Register handles POST /register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !h.decode(c, "Register", &req) {
		return
	}

	ctx := c.Request.Context()
	logger := h.log(ctx, "Register", "identity", req.Identity)

	user, err := h.service.Register(ctx, application.RegisterParams{
		Identity:    req.Identity,
		Name:        req.Name,
		Password:    req.Password,
		Role:        req.Role,
		Description: req.Description,
	})
	if err != nil {
		h.fail(c, logger, "registration rejected", err)
		return
	}

	logger.InfoContext(ctx, "account registered")
	h.ok(c, http.StatusCreated, toUserDTO(user))
}

// CreateSession handles POST /sessions.
func (h *AuthHandler) CreateSession(c *gin.Context) {
	var req loginRequest
	if !h.decode(c, "CreateSession", &req) {
		return
	}

	ctx := c.Request.Context()
	logger := h.log(ctx, "CreateSession", "identity", req.Identity)

	result, err := h.service.Login(ctx, application.LoginParams{Identity: req.Identity, Password: req.Password})
	if err != nil {
		h.fail(c, logger, "authentication rejected", err)
		return
	}

	h.setSessionCookie(c.Writer, result.Token, result.Session.ExpiresAt)
	logger.InfoContext(ctx, "user authenticated", "token_id", result.Session.TokenID)
	h.ok(c, http.StatusCreated, loginResponse{
		Token:     result.Token,
		ExpiresAt: result.Session.ExpiresAt.UTC().Format(time.RFC3339),
		User:      toUserDTO(result.User),
	})
}

// DeleteCurrentSession handles DELETE /sessions/current.
func (h *AuthHandler) DeleteCurrentSession(c *gin.Context) {
	ctx := c.Request.Context()
	session := sessionOf(c)
	logger := h.log(ctx, "DeleteCurrentSession", "token_id", session.TokenID)

	if err := h.service.Logout(ctx, session); err != nil {
		h.fail(c, logger, "failed to revoke session", err)
		return
	}

	h.clearSessionCookie(c.Writer)
	logger.InfoContext(ctx, "session revoked for current actor")
	h.ok(c, http.StatusNoContent, nil)
}

type registerRequest struct {
	Identity    string `json:"identity"`
	Name        string `json:"name"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	Description string `json:"description"`
}

type loginRequest struct {
	Identity string `json:"identity"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string  `json:"token"`
	ExpiresAt string  `json:"expires_at"`
	User      userDTO `json:"user"`
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	}
	if !expires.IsZero() {
		cookie.Expires = expires.UTC()
	}
	http.SetCookie(w, cookie)
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
