package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/example/lab-reservations/internal/persistence"
	"github.com/example/lab-reservations/internal/token"
)

// SessionTokens issues and verifies signed session tokens. *token.Codec
// implements it.
type SessionTokens interface {
	Issue(subject, role string, ttl time.Duration) (string, token.Claims, error)
	Parse(raw string) (token.Claims, error)
}

// AuthService covers registration, login, logout and session validation.
type AuthService struct {
	mu         sync.Mutex
	users      UserStore
	tokens     SessionTokens
	hash       PasswordHasher
	verify     PasswordVerifier
	revoked    *revocationList
	now        func() time.Time
	sessionTTL time.Duration
	logger     *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(users UserStore, tokens SessionTokens, hash PasswordHasher, verify PasswordVerifier, now func() time.Time, sessionTTL time.Duration) *AuthService {
	return NewAuthServiceWithLogger(users, tokens, hash, verify, now, sessionTTL, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(users UserStore, tokens SessionTokens, hash PasswordHasher, verify PasswordVerifier, now func() time.Time, sessionTTL time.Duration, logger *slog.Logger) *AuthService {
	if hash == nil {
		hash = HashPassword
	}
	if verify == nil {
		verify = VerifyPassword
	}
	if now == nil {
		now = time.Now
	}
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &AuthService{
		users:      users,
		tokens:     tokens,
		hash:       hash,
		verify:     verify,
		revoked:    newRevocationList(0, now),
		now:        now,
		sessionTTL: sessionTTL,
		logger:     defaultLogger(logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// Register creates an account. The identity is case-insensitive and must not
// exist yet.
func (s *AuthService) Register(ctx context.Context, params RegisterParams) (user User, err error) {
	if s == nil || s.users == nil {
		err = fmt.Errorf("AuthService not configured")
		return
	}

	identity := normalizeIdentity(params.Identity)
	logger := s.loggerWith(ctx, "Register", "identity", identity)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "registration failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "user registered", "role", user.Role)
	}()

	role, vErr := validateRegistration(identity, params)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var hash string
	hash, err = s.hash(params.Password)
	if err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = commit(ctx, func(ctx context.Context) error {
		snap, err := s.users.LoadUsers(ctx)
		if err != nil {
			return mapStoreError(err)
		}
		if indexOfUser(snap.Items, identity) >= 0 {
			return ErrDuplicateIdentity
		}

		now := s.now().UTC()
		record := persistence.User{
			Email:        identity,
			Name:         strings.TrimSpace(params.Name),
			PasswordHash: hash,
			Role:         string(role),
			Description:  strings.TrimSpace(params.Description),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		snap.Items = append(snap.Items, record)
		if _, err := s.users.SaveUsers(ctx, snap); err != nil {
			return err
		}
		user = userFromRecord(record)
		return nil
	})
	return
}

// Login verifies credentials and issues a session token.
func (s *AuthService) Login(ctx context.Context, params LoginParams) (result LoginResult, err error) {
	if s == nil || s.users == nil || s.tokens == nil {
		err = fmt.Errorf("AuthService not configured")
		return
	}

	identity := normalizeIdentity(params.Identity)
	logger := s.loggerWith(ctx, "Login", "identity", identity)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "login failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "login succeeded", "token_id", result.Session.TokenID)
	}()

	if identity == "" || params.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	var record persistence.User
	record, err = s.lookup(ctx, identity)
	if errors.Is(err, ErrNotFound) {
		err = ErrInvalidCredentials
		return
	}
	if err != nil {
		return
	}

	if verifyErr := s.verify(record.PasswordHash, params.Password); verifyErr != nil {
		if !errors.Is(verifyErr, ErrInvalidCredentials) {
			logger.WarnContext(ctx, "stored credential unusable", "error", verifyErr)
		}
		err = ErrInvalidCredentials
		return
	}

	raw, claims, issueErr := s.tokens.Issue(record.Email, record.Role, s.sessionTTL)
	if issueErr != nil {
		err = fmt.Errorf("issue session token: %w", issueErr)
		return
	}

	result = LoginResult{
		User:    userFromRecord(record),
		Session: sessionFromClaims(claims),
		Token:   raw,
	}
	return
}

// Logout revokes the session's token until it would have expired.
func (s *AuthService) Logout(ctx context.Context, session Session) error {
	if !session.Authenticated() || session.TokenID == "" {
		return ErrNotAuthenticated
	}
	s.revoked.Revoke(session.TokenID, session.ExpiresAt)
	s.loggerWith(ctx, "Logout", "identity", session.Identity, "token_id", session.TokenID).
		InfoContext(ctx, "session revoked")
	return nil
}

// ValidateSession resolves a raw token into the session it represents. The
// role is taken from the current user record, not from the token.
func (s *AuthService) ValidateSession(ctx context.Context, raw string) (session Session, err error) {
	if s == nil || s.tokens == nil {
		err = fmt.Errorf("AuthService not configured")
		return
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		err = ErrNotAuthenticated
		return
	}

	claims, parseErr := s.tokens.Parse(raw)
	switch {
	case errors.Is(parseErr, token.ErrExpired):
		err = ErrSessionExpired
	case parseErr != nil:
		err = fmt.Errorf("%w: %v", ErrNotAuthenticated, parseErr)
	case s.revoked.Revoked(claims.ID):
		err = ErrSessionRevoked
	}
	if err != nil {
		s.loggerWith(ctx, "ValidateSession").DebugContext(ctx, "session rejected", "error", err, "error_kind", ErrorKind(err))
		return
	}

	record, lookupErr := s.lookup(ctx, claims.Subject)
	if errors.Is(lookupErr, ErrNotFound) {
		err = ErrNotAuthenticated
		return
	}
	if lookupErr != nil {
		err = lookupErr
		return
	}

	session = sessionFromClaims(claims)
	session.Role = Role(record.Role)
	return
}

func (s *AuthService) lookup(ctx context.Context, identity string) (persistence.User, error) {
	snap, err := s.users.LoadUsers(ctx)
	if err != nil {
		return persistence.User{}, mapStoreError(err)
	}
	idx := indexOfUser(snap.Items, normalizeIdentity(identity))
	if idx < 0 {
		return persistence.User{}, ErrNotFound
	}
	return snap.Items[idx], nil
}

func sessionFromClaims(claims token.Claims) Session {
	return Session{
		Identity:  claims.Subject,
		Role:      Role(claims.Role),
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt,
		ExpiresAt: claims.ExpiresAt,
	}
}

func validateRegistration(identity string, params RegisterParams) (Role, *ValidationError) {
	vErr := &ValidationError{}

	if identity == "" {
		vErr.add("identity", "identity is required")
	} else if addr, err := mail.ParseAddress(identity); err != nil || addr.Address != identity {
		vErr.add("identity", "identity must be an email address")
	}
	if strings.TrimSpace(params.Name) == "" {
		vErr.add("name", "name is required")
	}
	if params.Password == "" {
		vErr.add("password", "password is required")
	}
	if len(params.Description) > maxDescriptionLength {
		vErr.add("description", fmt.Sprintf("description must be at most %d characters", maxDescriptionLength))
	}

	role, err := ParseRole(params.Role)
	if err != nil {
		vErr.add("role", "role must be student or technician")
	}
	return role, vErr
}
