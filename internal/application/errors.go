package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/lab-reservations/internal/persistence"
)

var (
	// ErrNotAuthenticated is returned when an operation needs a session and none was supplied.
	ErrNotAuthenticated = errors.New("application: not authenticated")
	// ErrInvalidCredentials is returned when an identity and password do not match.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrDuplicateIdentity is returned when registering an identity that already exists.
	ErrDuplicateIdentity = errors.New("application: identity already registered")
	// ErrSlotUnavailable is returned when booking a slot that is already occupied.
	ErrSlotUnavailable = errors.New("application: slot unavailable")
	// ErrNotFound is returned when the requested user or reservation does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrDataCorruption is returned when persisted state cannot be read.
	ErrDataCorruption = errors.New("application: stored data is corrupt")
	// ErrUnauthorized is returned when the acting session lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrConcurrentModification is returned when a write kept losing against
	// writers in other processes.
	ErrConcurrentModification = errors.New("application: concurrent modification")
	// ErrSessionExpired is returned for tokens past their expiry.
	ErrSessionExpired = errors.New("application: session expired")
	// ErrSessionRevoked is returned for tokens that were logged out.
	ErrSessionRevoked = errors.New("application: session revoked")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fmt.Sprintf("validation failed: %s", strings.Join(fields, ", "))
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error. The first message for a field wins.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// mapStoreError translates persistence failures into service errors.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrDataCorruption):
		return fmt.Errorf("%w: %w", ErrDataCorruption, err)
	case errors.Is(err, persistence.ErrRevisionConflict):
		return fmt.Errorf("%w: %w", ErrConcurrentModification, err)
	}
	return err
}
