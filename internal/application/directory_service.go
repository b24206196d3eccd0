package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/example/lab-reservations/internal/persistence"
)

const maxDescriptionLength = 500

// DirectoryService exposes user profiles and per-user reservation listings.
type DirectoryService struct {
	mu           sync.Mutex
	users        UserStore
	reservations ReservationStore
	now          func() time.Time
	logger       *slog.Logger
}

// NewDirectoryService wires dependencies for the directory service.
func NewDirectoryService(users UserStore, reservations ReservationStore, now func() time.Time) *DirectoryService {
	return NewDirectoryServiceWithLogger(users, reservations, now, nil)
}

// NewDirectoryServiceWithLogger wires dependencies with a specified logger.
func NewDirectoryServiceWithLogger(users UserStore, reservations ReservationStore, now func() time.Time, logger *slog.Logger) *DirectoryService {
	if now == nil {
		now = time.Now
	}
	return &DirectoryService{
		users:        users,
		reservations: reservations,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

func (s *DirectoryService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "DirectoryService", operation, attrs...)
}

// FindUser returns the user registered under identity.
func (s *DirectoryService) FindUser(ctx context.Context, identity string) (User, error) {
	if s == nil || s.users == nil {
		return User{}, fmt.Errorf("DirectoryService not configured")
	}
	snap, err := s.users.LoadUsers(ctx)
	if err != nil {
		return User{}, mapStoreError(err)
	}
	idx := indexOfUser(snap.Items, normalizeIdentity(identity))
	if idx < 0 {
		return User{}, ErrNotFound
	}
	return userFromRecord(snap.Items[idx]), nil
}

// ListUsers returns every registered user in storage order.
func (s *DirectoryService) ListUsers(ctx context.Context) ([]User, error) {
	if s == nil || s.users == nil {
		return nil, fmt.Errorf("DirectoryService not configured")
	}
	snap, err := s.users.LoadUsers(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	out := make([]User, 0, len(snap.Items))
	for _, u := range snap.Items {
		out = append(out, userFromRecord(u))
	}
	return out, nil
}

// UpdateDescription replaces the profile text of identity. Only the user
// themselves may change it.
func (s *DirectoryService) UpdateDescription(ctx context.Context, session Session, identity, text string) (user User, err error) {
	if s == nil || s.users == nil {
		err = fmt.Errorf("DirectoryService not configured")
		return
	}

	identity = normalizeIdentity(identity)
	logger := s.loggerWith(ctx, "UpdateDescription", "identity", identity, "actor", session.Identity)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "profile update failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "profile updated")
	}()

	if !session.Authenticated() {
		err = ErrNotAuthenticated
		return
	}
	text = strings.TrimSpace(text)
	if len(text) > maxDescriptionLength {
		vErr := &ValidationError{}
		vErr.add("description", fmt.Sprintf("description must be at most %d characters", maxDescriptionLength))
		err = vErr
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = commit(ctx, func(ctx context.Context) error {
		snap, err := s.users.LoadUsers(ctx)
		if err != nil {
			return mapStoreError(err)
		}
		idx := indexOfUser(snap.Items, identity)
		if idx < 0 {
			return ErrNotFound
		}
		if normalizeIdentity(session.Identity) != identity {
			return ErrUnauthorized
		}

		snap.Items[idx].Description = text
		snap.Items[idx].UpdatedAt = s.now().UTC()
		if _, err := s.users.SaveUsers(ctx, snap); err != nil {
			return err
		}
		user = userFromRecord(snap.Items[idx])
		return nil
	})
	return
}

// ListReservationsFor returns the reservations owned by identity in storage
// order. An identity without reservations yields an empty slice.
func (s *DirectoryService) ListReservationsFor(ctx context.Context, identity string) ([]Reservation, error) {
	if s == nil || s.reservations == nil {
		return nil, fmt.Errorf("DirectoryService not configured")
	}
	snap, err := s.reservations.LoadReservations(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	identity = normalizeIdentity(identity)
	out := make([]Reservation, 0)
	for _, r := range snap.Items {
		if normalizeIdentity(r.User) == identity {
			out = append(out, reservationFromRecord(r))
		}
	}
	return out, nil
}

// MyReservations lists the reservations of the session's actor.
func (s *DirectoryService) MyReservations(ctx context.Context, session Session) ([]Reservation, error) {
	if !session.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	return s.ListReservationsFor(ctx, session.Identity)
}

// Profile returns the user together with their reservations.
func (s *DirectoryService) Profile(ctx context.Context, identity string) (Profile, error) {
	user, err := s.FindUser(ctx, identity)
	if err != nil {
		return Profile{}, err
	}
	reservations, err := s.ListReservationsFor(ctx, user.Identity)
	if err != nil {
		return Profile{}, err
	}
	return Profile{User: user, Reservations: reservations}, nil
}

func indexOfUser(users []persistence.User, identity string) int {
	for i, u := range users {
		if normalizeIdentity(u.Email) == identity {
			return i
		}
	}
	return -1
}
