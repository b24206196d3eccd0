// Package token issues and verifies the signed session tokens handed to
// clients after login.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalid is returned for tokens that are malformed, tampered with or
	// signed with another key.
	ErrInvalid = errors.New("token: invalid")
	// ErrExpired is returned for well-formed tokens past their expiry.
	ErrExpired = errors.New("token: expired")
)

const issuer = "lab-reservations"

// Claims is the session information carried by a token.
type Claims struct {
	ID        string
	Subject   string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Codec signs and parses HS256 session tokens.
type Codec struct {
	secret []byte
	now    func() time.Time
	newID  func() string
}

// NewCodec returns a Codec using secret as the HMAC key.
func NewCodec(secret string, now func() time.Time) (*Codec, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("token: secret must be at least 16 bytes")
	}
	if now == nil {
		now = time.Now
	}
	return &Codec{secret: []byte(secret), now: now, newID: uuid.NewString}, nil
}

// Issue signs a token for subject valid for ttl. Every token gets a fresh
// random ID so that it can be revoked on its own.
func (c *Codec) Issue(subject, role string, ttl time.Duration) (string, Claims, error) {
	issued := c.now().UTC().Truncate(time.Second)
	claims := Claims{
		ID:        c.newID(),
		Subject:   subject,
		Role:      role,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(ttl),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        claims.ID,
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("token: sign: %w", err)
	}
	return signed, claims, nil
}

// Parse verifies raw and returns its claims.
func (c *Codec) Parse(raw string) (Claims, error) {
	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, ErrExpired
	case err != nil:
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if parsed.Subject == "" || parsed.ID == "" {
		return Claims{}, fmt.Errorf("%w: missing subject or id", ErrInvalid)
	}

	claims := Claims{ID: parsed.ID, Subject: parsed.Subject, Role: parsed.Role}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time.UTC()
	}
	return claims, nil
}
