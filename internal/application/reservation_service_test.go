package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/lab-reservations/internal/events"
	"github.com/example/lab-reservations/internal/persistence"
	"github.com/example/lab-reservations/internal/testfixtures"
)

type reservationFixture struct {
	svc       *ReservationService
	store     *persistence.Store
	clock     *testfixtures.Clock
	published *recordingPublisher
}

func newReservationFixture(t *testing.T, policy OwnershipPolicy) reservationFixture {
	t.Helper()

	clock := testfixtures.NewClock(seedDay)
	store := newSeededStore(t, clock.Now)
	published := &recordingPublisher{}
	svc := NewReservationService(ReservationServiceConfig{
		Reservations: store,
		Users:        store,
		Policy:       policy,
		Events:       published,
		Now:          clock.Now,
		Logger:       discardLogger,
	})
	return reservationFixture{svc: svc, store: store, clock: clock, published: published}
}

func TestReservationService_Book(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	frank := sessionFor("frank@dlsu.edu.ph", RoleStudent)

	t.Run("books a free slot", func(t *testing.T) {
		t.Parallel()

		f := newReservationFixture(t, OwnershipOpen)
		got, err := f.svc.Book(ctx, BookParams{Session: frank, Resource: "lab1", Date: "2024-01-10", Slot: "10:30"})
		if err != nil {
			t.Fatalf("Book failed: %v", err)
		}
		if got.ID != seedDay.UnixMilli() || got.User != "frank@dlsu.edu.ph" || got.Anonymous {
			t.Fatalf("unexpected reservation: %+v", got)
		}
		if len(got.Slots) != 1 || got.Slots[0] != "10:30" {
			t.Fatalf("expected singleton slot list, got %v", got.Slots)
		}

		snap, _ := f.store.LoadReservations(ctx)
		if last := snap.Items[len(snap.Items)-1]; last.ID != got.ID {
			t.Fatalf("new reservation not appended last: %+v", last)
		}

		evts := f.published.Events()
		if len(evts) != 1 || evts[0].Kind != events.KindBooked || evts[0].ReservationID != got.ID || evts[0].Resource != "lab1" {
			t.Fatalf("unexpected events: %+v", evts)
		}
	})

	t.Run("anonymous flag is kept", func(t *testing.T) {
		t.Parallel()

		f := newReservationFixture(t, OwnershipOpen)
		got, err := f.svc.Book(ctx, BookParams{Session: frank, Resource: "lab3", Date: "2024-01-12", Slot: "16:30", Anonymous: true})
		if err != nil {
			t.Fatalf("Book failed: %v", err)
		}
		if !got.Anonymous {
			t.Fatalf("expected anonymous reservation")
		}
	})

	t.Run("occupied slot", func(t *testing.T) {
		t.Parallel()

		f := newReservationFixture(t, OwnershipOpen)
		before, _ := f.store.LoadReservations(ctx)

		_, err := f.svc.Book(ctx, BookParams{Session: frank, Resource: "lab1", Date: "2024-01-10", Slot: "09:30"})
		if !errors.Is(err, ErrSlotUnavailable) {
			t.Fatalf("expected ErrSlotUnavailable, got %v", err)
		}

		after, _ := f.store.LoadReservations(ctx)
		if after.Revision != before.Revision || len(after.Items) != len(before.Items) {
			t.Fatalf("failed booking must not write")
		}
		if len(f.published.Events()) != 0 {
			t.Fatalf("failed booking must not publish")
		}
	})

	t.Run("same slot on another date or resource is free", func(t *testing.T) {
		t.Parallel()

		f := newReservationFixture(t, OwnershipOpen)
		if _, err := f.svc.Book(ctx, BookParams{Session: frank, Resource: "lab2", Date: "2024-01-10", Slot: "09:00"}); err != nil {
			t.Fatalf("other resource: %v", err)
		}
		if _, err := f.svc.Book(ctx, BookParams{Session: frank, Resource: "lab1", Date: "2024-01-11", Slot: "09:00"}); err != nil {
			t.Fatalf("other date: %v", err)
		}
	})

	t.Run("requires a session", func(t *testing.T) {
		t.Parallel()

		f := newReservationFixture(t, OwnershipOpen)
		_, err := f.svc.Book(ctx, BookParams{Resource: "lab1", Date: "2024-01-10", Slot: "10:30"})
		if !errors.Is(err, ErrNotAuthenticated) {
			t.Fatalf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("validates resource date and slot", func(t *testing.T) {
		t.Parallel()

		f := newReservationFixture(t, OwnershipOpen)
		_, err := f.svc.Book(ctx, BookParams{Session: frank, Resource: "lab9", Date: "10/01/2024", Slot: "17:00"})

		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"resource", "date", "slot"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Errorf("expected %s error, got %v", field, vErr.FieldErrors)
			}
		}
	})

	t.Run("identifiers stay unique within one millisecond", func(t *testing.T) {
		t.Parallel()

		f := newReservationFixture(t, OwnershipOpen)
		a, err := f.svc.Book(ctx, BookParams{Session: frank, Resource: "lab1", Date: "2024-01-10", Slot: "11:00"})
		if err != nil {
			t.Fatalf("first Book failed: %v", err)
		}
		b, err := f.svc.Book(ctx, BookParams{Session: frank, Resource: "lab1", Date: "2024-01-10", Slot: "11:30"})
		if err != nil {
			t.Fatalf("second Book failed: %v", err)
		}
		if b.ID != a.ID+1 {
			t.Fatalf("expected consecutive ids, got %d then %d", a.ID, b.ID)
		}
	})

	t.Run("concurrent bookings of one slot have a single winner", func(t *testing.T) {
		t.Parallel()

		f := newReservationFixture(t, OwnershipOpen)
		const workers = 8

		var wg sync.WaitGroup
		errs := make([]error, workers)
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = f.svc.Book(ctx, BookParams{Session: frank, Resource: "lab2", Date: "2024-01-15", Slot: "15:00"})
			}()
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			switch {
			case err == nil:
				wins++
			case !errors.Is(err, ErrSlotUnavailable):
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if wins != 1 {
			t.Fatalf("expected exactly one winner, got %d", wins)
		}
	})

	t.Run("re-checks after losing a race to another process", func(t *testing.T) {
		t.Parallel()

		clock := testfixtures.NewClock(seedDay)
		racing := &racingStore{Store: newSeededStore(t, clock.Now), conflicts: 1}
		svc := NewReservationService(ReservationServiceConfig{Reservations: racing, Users: racing, Now: clock.Now, Logger: discardLogger})

		if _, err := svc.Book(ctx, BookParams{Session: frank, Resource: "lab1", Date: "2024-01-10", Slot: "12:00"}); err != nil {
			t.Fatalf("Book failed: %v", err)
		}
		if racing.saves != 2 {
			t.Fatalf("expected a second attempt, got %d saves", racing.saves)
		}
	})

	t.Run("persistent conflicts end in ErrConcurrentModification", func(t *testing.T) {
		t.Parallel()

		clock := testfixtures.NewClock(seedDay)
		racing := &racingStore{Store: newSeededStore(t, clock.Now), conflicts: 100}
		svc := NewReservationService(ReservationServiceConfig{Reservations: racing, Now: clock.Now, Logger: discardLogger})

		_, err := svc.Book(ctx, BookParams{Session: frank, Resource: "lab1", Date: "2024-01-10", Slot: "12:00"})
		if !errors.Is(err, ErrConcurrentModification) {
			t.Fatalf("expected ErrConcurrentModification, got %v", err)
		}
		if racing.saves != commitAttempts {
			t.Fatalf("expected %d attempts, got %d", commitAttempts, racing.saves)
		}
	})

	t.Run("corrupt data is surfaced", func(t *testing.T) {
		t.Parallel()

		svc := NewReservationService(ReservationServiceConfig{
			Reservations: brokenStore{err: persistence.ErrDataCorruption},
			Logger:       discardLogger,
		})
		_, err := svc.Book(ctx, BookParams{Session: frank, Resource: "lab1", Date: "2024-01-10", Slot: "12:00"})
		if !errors.Is(err, ErrDataCorruption) {
			t.Fatalf("expected ErrDataCorruption, got %v", err)
		}
	})
}

func TestReservationService_Edit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	alice := sessionFor("alice@dlsu.edu.ph", RoleStudent)

	t.Run("releases the reservation and returns fresh availability", func(t *testing.T) {
		t.Parallel()

		f := newReservationFixture(t, OwnershipOpen)
		result, err := f.svc.Edit(ctx, alice, 2)
		if err != nil {
			t.Fatalf("Edit failed: %v", err)
		}
		if result.Released.ID != 2 || result.Released.User != "benjamin@dlsu.edu.ph" {
			t.Fatalf("unexpected released reservation: %+v", result.Released)
		}
		if len(result.Availability) != 18 {
			t.Fatalf("expected 18 slot views, got %d", len(result.Availability))
		}

		byLabel := make(map[string]bool)
		for _, v := range result.Availability {
			byLabel[v.Label] = v.Occupied
		}
		if !byLabel["09:00"] || byLabel["09:30"] || byLabel["10:00"] {
			t.Fatalf("unexpected occupancy after edit: %v", byLabel)
		}
		for _, v := range result.Availability {
			if v.Label == "09:00" && (v.Owner == nil || v.Owner.Name != "Alice Santos") {
				t.Fatalf("expected owner to be resolved, got %+v", v.Owner)
			}
		}

		snap, _ := f.store.LoadReservations(ctx)
		for _, r := range snap.Items {
			if r.ID == 2 {
				t.Fatalf("reservation 2 still stored")
			}
		}

		evts := f.published.Events()
		if len(evts) != 1 || evts[0].Kind != events.KindCancelled || evts[0].ReservationID != 2 {
			t.Fatalf("unexpected events: %+v", evts)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		t.Parallel()

		f := newReservationFixture(t, OwnershipOpen)
		if _, err := f.svc.Edit(ctx, alice, 999); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("requires a session", func(t *testing.T) {
		t.Parallel()

		f := newReservationFixture(t, OwnershipOpen)
		if _, err := f.svc.Edit(ctx, Session{}, 1); !errors.Is(err, ErrNotAuthenticated) {
			t.Fatalf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("unreadable users collection keeps the reservation", func(t *testing.T) {
		t.Parallel()

		f := newReservationFixture(t, OwnershipOpen)
		svc := NewReservationService(ReservationServiceConfig{
			Reservations: f.store,
			Users:        brokenStore{err: persistence.ErrDataCorruption},
			Policy:       OwnershipOpen,
			Now:          f.clock.Now,
			Logger:       discardLogger,
		})
		if _, err := svc.Edit(ctx, alice, 2); !errors.Is(err, ErrDataCorruption) {
			t.Fatalf("expected ErrDataCorruption, got %v", err)
		}
		snap, err := f.store.LoadReservations(ctx)
		if err != nil {
			t.Fatalf("LoadReservations failed: %v", err)
		}
		if len(snap.Items) != 5 {
			t.Fatalf("failed edit must not remove anything, have %d reservations", len(snap.Items))
		}
	})

	t.Run("owner policy rejects other students", func(t *testing.T) {
		t.Parallel()

		f := newReservationFixture(t, OwnershipOwner)
		if _, err := f.svc.Edit(ctx, alice, 2); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		snap, _ := f.store.LoadReservations(ctx)
		if len(snap.Items) != 5 {
			t.Fatalf("rejected edit must not remove anything")
		}
	})
}

func TestReservationService_Cancel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	alice := sessionFor("alice@dlsu.edu.ph", RoleStudent)
	daniel := sessionFor("daniel@dlsu.edu.ph", RoleTechnician)

	t.Run("removes and frees the slot", func(t *testing.T) {
		t.Parallel()

		f := newReservationFixture(t, OwnershipOpen)
		if err := f.svc.Cancel(ctx, alice, 1); err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}
		if _, err := f.svc.Book(ctx, BookParams{Session: alice, Resource: "lab1", Date: "2024-01-10", Slot: "09:00"}); err != nil {
			t.Fatalf("slot should be free again: %v", err)
		}
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		t.Parallel()

		f := newReservationFixture(t, OwnershipOpen)
		before, _ := f.store.LoadReservations(ctx)
		if err := f.svc.Cancel(ctx, alice, 424242); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		after, _ := f.store.LoadReservations(ctx)
		if after.Revision != before.Revision {
			t.Fatalf("no-op cancel must not write")
		}
		if len(f.published.Events()) != 0 {
			t.Fatalf("no-op cancel must not publish")
		}
	})

	policyCases := []struct {
		name    string
		policy  OwnershipPolicy
		session Session
		id      int64
		wantErr error
	}{
		{name: "open lets anyone cancel", policy: OwnershipOpen, session: alice, id: 4},
		{name: "owner cancels own", policy: OwnershipOwner, session: alice, id: 5},
		{name: "owner blocks others", policy: OwnershipOwner, session: alice, id: 4, wantErr: ErrUnauthorized},
		{name: "technician cancels any", policy: OwnershipOwner, session: daniel, id: 4},
		{name: "owner policy still ignores unknown ids", policy: OwnershipOwner, session: alice, id: 77},
		{name: "anonymous actor", policy: OwnershipOpen, id: 1, wantErr: ErrNotAuthenticated},
	}

	for _, tt := range policyCases {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newReservationFixture(t, tt.policy)
			err := f.svc.Cancel(ctx, tt.session, tt.id)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestReservationService_Recent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newReservationFixture(t, OwnershipOpen)
	frank := sessionFor("frank@dlsu.edu.ph", RoleStudent)

	f.clock.Advance(time.Minute)
	if _, err := f.svc.Book(ctx, BookParams{Session: frank, Resource: "lab1", Date: "2024-01-10", Slot: "13:00"}); err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	recent, err := f.svc.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != RecentLimit {
		t.Fatalf("expected %d reservations, got %d", RecentLimit, len(recent))
	}
	for i, r := range recent {
		if r.ID != int64(i+1) {
			t.Fatalf("position %d: expected id %d, got %d", i, i+1, r.ID)
		}
	}

	two, err := f.svc.Recent(ctx, 2)
	if err != nil || len(two) != 2 {
		t.Fatalf("expected two reservations, got %d (err=%v)", len(two), err)
	}

	all, err := f.svc.Recent(ctx, 50)
	if err != nil || len(all) != 6 {
		t.Fatalf("expected six reservations, got %d (err=%v)", len(all), err)
	}
}

func TestNextReservationID(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1_000)
	tests := []struct {
		name     string
		existing []persistence.Reservation
		want     int64
	}{
		{name: "empty", want: 1_000},
		{name: "older ids", existing: []persistence.Reservation{{ID: 5}, {ID: 999}}, want: 1_000},
		{name: "collision", existing: []persistence.Reservation{{ID: 1_000}}, want: 1_001},
		{name: "future id", existing: []persistence.Reservation{{ID: 5_000}, {ID: 7}}, want: 5_001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := nextReservationID(now, tt.existing); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
