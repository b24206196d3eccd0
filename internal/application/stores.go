package application

import (
	"context"
	"errors"

	"github.com/example/lab-reservations/internal/events"
	"github.com/example/lab-reservations/internal/persistence"
)

// UserStore loads and saves the users collection. *persistence.Store
// implements it.
type UserStore interface {
	LoadUsers(ctx context.Context) (persistence.UserSnapshot, error)
	SaveUsers(ctx context.Context, snap persistence.UserSnapshot) (int64, error)
}

// ReservationStore loads and saves the reservations collection.
// *persistence.Store implements it.
type ReservationStore interface {
	LoadReservations(ctx context.Context) (persistence.ReservationSnapshot, error)
	SaveReservations(ctx context.Context, snap persistence.ReservationSnapshot) (int64, error)
}

// EventPublisher receives reservation change notifications.
type EventPublisher = events.Publisher

// commitAttempts bounds how often a read-check-write cycle is re-run after
// losing a revision race to another process.
const commitAttempts = 5

// commit runs attempt until it succeeds, fails with something other than a
// revision conflict, or exhausts commitAttempts. Each attempt must reload the
// collection it writes so that its checks see the winner's data.
func commit(ctx context.Context, attempt func(ctx context.Context) error) error {
	var last error
	for range commitAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, persistence.ErrRevisionConflict) {
			return err
		}
		last = err
	}
	return mapStoreError(last)
}
