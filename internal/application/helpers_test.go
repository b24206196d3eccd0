package application

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/lab-reservations/internal/events"
	"github.com/example/lab-reservations/internal/persistence"
	"github.com/example/lab-reservations/internal/testfixtures"
)

// seedDay is the day the demonstration data is seeded relative to.
var seedDay = testfixtures.SeedDay

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// newSeededStore returns a store over an empty in-memory backend that seeds
// the demonstration data on first load.
func newSeededStore(t *testing.T, now func() time.Time) *persistence.Store {
	t.Helper()
	return testfixtures.NewSeededMemoryStore(t, now)
}

// racingStore makes the first conflicts saves fail as if another process had
// written in between.
type racingStore struct {
	*persistence.Store

	mu        sync.Mutex
	conflicts int
	saves     int
}

func (r *racingStore) SaveReservations(ctx context.Context, snap persistence.ReservationSnapshot) (int64, error) {
	if r.lose() {
		return 0, persistence.ErrRevisionConflict
	}
	return r.Store.SaveReservations(ctx, snap)
}

func (r *racingStore) SaveUsers(ctx context.Context, snap persistence.UserSnapshot) (int64, error) {
	if r.lose() {
		return 0, persistence.ErrRevisionConflict
	}
	return r.Store.SaveUsers(ctx, snap)
}

func (r *racingStore) lose() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.conflicts > 0 {
		r.conflicts--
		return true
	}
	return false
}

// brokenStore fails every load with the given error.
type brokenStore struct {
	err error
}

func (b brokenStore) LoadUsers(context.Context) (persistence.UserSnapshot, error) {
	return persistence.UserSnapshot{}, b.err
}

func (b brokenStore) SaveUsers(context.Context, persistence.UserSnapshot) (int64, error) {
	return 0, b.err
}

func (b brokenStore) LoadReservations(context.Context) (persistence.ReservationSnapshot, error) {
	return persistence.ReservationSnapshot{}, b.err
}

func (b brokenStore) SaveReservations(context.Context, persistence.ReservationSnapshot) (int64, error) {
	return 0, b.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

func sessionFor(identity string, role Role) Session {
	return Session{Identity: identity, Role: role, TokenID: "test-" + identity}
}
