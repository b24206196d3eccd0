package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/lab-reservations/internal/availability"
	"github.com/example/lab-reservations/internal/events"
	"github.com/example/lab-reservations/internal/persistence"
	"github.com/example/lab-reservations/internal/testfixtures"
)

func occupiedCount(views []availability.SlotView) int {
	n := 0
	for _, v := range views {
		if v.Occupied {
			n++
		}
	}
	return n
}

func TestAvailabilityService_Watch(t *testing.T) {
	t.Parallel()

	t.Run("emits immediately and on matching events", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		clock := testfixtures.NewClock(seedDay)
		store := newSeededStore(t, clock.Now)
		bus := events.NewBus(discardLogger)
		availabilitySvc := NewAvailabilityServiceWithLogger(store, store, nil, nil, discardLogger)
		reservationSvc := NewReservationService(ReservationServiceConfig{
			Reservations: store,
			Users:        store,
			Events:       bus,
			Now:          clock.Now,
			Logger:       discardLogger,
		})

		triggers, unsubscribe := bus.Subscribe("lab1", "2024-01-10")
		defer unsubscribe()

		emitted := make(chan []availability.SlotView, 4)
		done := make(chan error, 1)
		go func() {
			done <- availabilitySvc.Watch(ctx, "lab1", "2024-01-10", time.Hour, triggers, func(v []availability.SlotView) error {
				emitted <- v
				return nil
			})
		}()

		first := receiveViews(t, emitted)
		if occupiedCount(first) != 3 {
			t.Fatalf("expected 3 occupied slots, got %d", occupiedCount(first))
		}

		frank := sessionFor("frank@dlsu.edu.ph", RoleStudent)
		if _, err := reservationSvc.Book(ctx, BookParams{Session: frank, Resource: "lab1", Date: "2024-01-10", Slot: "15:00"}); err != nil {
			t.Fatalf("Book failed: %v", err)
		}

		second := receiveViews(t, emitted)
		if occupiedCount(second) != 4 {
			t.Fatalf("expected 4 occupied slots after booking, got %d", occupiedCount(second))
		}

		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Watch returned %v after cancel", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Watch did not stop after cancel")
		}
	})

	t.Run("refreshes on the interval", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		svc, _ := newAvailabilityFixture(t)
		emitted := make(chan []availability.SlotView, 8)
		go func() {
			_ = svc.Watch(ctx, "lab1", "2024-01-10", 10*time.Millisecond, nil, func(v []availability.SlotView) error {
				select {
				case emitted <- v:
				default:
				}
				return nil
			})
		}()

		for range 3 {
			receiveViews(t, emitted)
		}
	})

	t.Run("ignores events for other views", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		svc, _ := newAvailabilityFixture(t)
		triggers := make(chan events.Event, 1)
		emitted := make(chan []availability.SlotView, 4)
		go func() {
			_ = svc.Watch(ctx, "lab1", "2024-01-10", time.Hour, triggers, func(v []availability.SlotView) error {
				emitted <- v
				return nil
			})
		}()

		receiveViews(t, emitted)
		triggers <- events.Event{Kind: events.KindBooked, Resource: "lab2", Date: "2024-01-10"}
		select {
		case <-emitted:
			t.Fatalf("unexpected refresh for another resource")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("failed refresh keeps watching", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		flaky := &flakyStore{Store: newSeededStore(t, testfixtures.NewClock(seedDay).Now), failures: 1}
		svc := NewAvailabilityServiceWithLogger(flaky, nil, nil, nil, discardLogger)
		emitted := make(chan []availability.SlotView, 4)
		go func() {
			_ = svc.Watch(ctx, "lab1", "2024-01-10", 10*time.Millisecond, nil, func(v []availability.SlotView) error {
				select {
				case emitted <- v:
				default:
				}
				return nil
			})
		}()

		if views := receiveViews(t, emitted); len(views) != 18 {
			t.Fatalf("expected full view after recovery, got %d", len(views))
		}
	})

	t.Run("emit failure ends the watch", func(t *testing.T) {
		t.Parallel()

		svc, _ := newAvailabilityFixture(t)
		boom := errors.New("client gone")
		err := svc.Watch(context.Background(), "lab1", "2024-01-10", time.Hour, nil, func([]availability.SlotView) error {
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected emit error, got %v", err)
		}
	})

	t.Run("invalid query is rejected up front", func(t *testing.T) {
		t.Parallel()

		svc, _ := newAvailabilityFixture(t)
		err := svc.Watch(context.Background(), "lab7", "2024-01-10", time.Hour, nil, func([]availability.SlotView) error {
			t.Fatalf("emit must not be called")
			return nil
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}

func receiveViews(t *testing.T, ch <-chan []availability.SlotView) []availability.SlotView {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for availability")
		return nil
	}
}

// flakyStore fails the first failures loads of the reservations collection.
// Watch loads from a single goroutine, so no locking is needed.
type flakyStore struct {
	*persistence.Store

	failures int
}

func (f *flakyStore) LoadReservations(ctx context.Context) (persistence.ReservationSnapshot, error) {
	if f.failures > 0 {
		f.failures--
		return persistence.ReservationSnapshot{}, errors.New("disk unavailable")
	}
	return f.Store.LoadReservations(ctx)
}
