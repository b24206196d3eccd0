package application

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/example/lab-reservations/internal/availability"
	"github.com/example/lab-reservations/internal/catalog"
	"github.com/example/lab-reservations/internal/persistence"
	"github.com/example/lab-reservations/internal/testfixtures"
)

func newAvailabilityFixture(t *testing.T) (*AvailabilityService, *persistence.Store) {
	t.Helper()
	clock := testfixtures.NewClock(seedDay)
	store := newSeededStore(t, clock.Now)
	return NewAvailabilityServiceWithLogger(store, store, nil, nil, discardLogger), store
}

func TestAvailabilityService_ListAvailability(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("one view per catalog slot in order", func(t *testing.T) {
		t.Parallel()

		svc, _ := newAvailabilityFixture(t)
		views, err := svc.ListAvailability(ctx, "lab1", "2024-01-10")
		if err != nil {
			t.Fatalf("ListAvailability failed: %v", err)
		}
		labels := catalog.Default().Labels()
		if len(views) != len(labels) {
			t.Fatalf("expected %d views, got %d", len(labels), len(views))
		}
		for i, v := range views {
			if v.Label != labels[i] {
				t.Fatalf("position %d: expected %s, got %s", i, labels[i], v.Label)
			}
			occupied := v.Label == "09:00" || v.Label == "09:30" || v.Label == "10:00"
			if v.Occupied != occupied {
				t.Fatalf("%s: expected occupied=%v", v.Label, occupied)
			}
		}
		if views[3].Owner == nil || views[3].Owner.Identity != "benjamin@dlsu.edu.ph" || views[3].Owner.Name != "Benjamin Cruz" {
			t.Fatalf("unexpected owner for 09:30: %+v", views[3].Owner)
		}
	})

	t.Run("anonymous holder is hidden", func(t *testing.T) {
		t.Parallel()

		svc, _ := newAvailabilityFixture(t)
		views, err := svc.ListAvailability(ctx, "lab2", "2024-01-11")
		if err != nil {
			t.Fatalf("ListAvailability failed: %v", err)
		}
		for _, v := range views {
			if v.Label == "11:00" && (!v.Occupied || v.Owner != nil) {
				t.Fatalf("expected anonymous occupied slot, got %+v", v)
			}
		}
	})

	t.Run("holder without account shows no owner", func(t *testing.T) {
		t.Parallel()

		svc, store := newAvailabilityFixture(t)
		snap, _ := store.LoadReservations(ctx)
		snap.Items = append(snap.Items, persistence.Reservation{ID: 9, User: "gone@dlsu.edu.ph", Resource: "lab3", Date: "2024-01-20", Slots: []string{"12:00"}})
		if _, err := store.SaveReservations(ctx, snap); err != nil {
			t.Fatalf("SaveReservations failed: %v", err)
		}

		views, err := svc.ListAvailability(ctx, "lab3", "2024-01-20")
		if err != nil {
			t.Fatalf("ListAvailability failed: %v", err)
		}
		idx := slices.IndexFunc(views, func(v availability.SlotView) bool { return v.Label == "12:00" })
		if !views[idx].Occupied || views[idx].Owner != nil {
			t.Fatalf("unexpected view: %+v", views[idx])
		}
	})

	t.Run("unreadable users collection", func(t *testing.T) {
		t.Parallel()

		_, store := newAvailabilityFixture(t)
		svc := NewAvailabilityServiceWithLogger(store, brokenStore{err: persistence.ErrDataCorruption}, nil, nil, discardLogger)
		views, err := svc.ListAvailability(ctx, "lab1", "2024-01-10")
		if !errors.Is(err, ErrDataCorruption) {
			t.Fatalf("expected ErrDataCorruption, got %v (views=%d)", err, len(views))
		}
	})

	t.Run("invalid query", func(t *testing.T) {
		t.Parallel()

		svc, _ := newAvailabilityFixture(t)
		_, err := svc.ListAvailability(ctx, "", "tomorrow")
		var vErr *ValidationError
		if !errors.As(err, &vErr) || len(vErr.FieldErrors) != 2 {
			t.Fatalf("expected two field errors, got %v", err)
		}
	})

	t.Run("corrupt data", func(t *testing.T) {
		t.Parallel()

		broken := brokenStore{err: persistence.ErrDataCorruption}
		svc := NewAvailabilityServiceWithLogger(broken, broken, nil, nil, discardLogger)
		if _, err := svc.ListAvailability(ctx, "lab1", "2024-01-10"); !errors.Is(err, ErrDataCorruption) {
			t.Fatalf("expected ErrDataCorruption, got %v", err)
		}
	})
}

func TestAvailabilityService_Search(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newAvailabilityFixture(t)

	tests := []struct {
		name     string
		resource string
		date     string
		from     string
		want     []string
	}{
		{
			name:     "skips held slots at or after the start",
			resource: "lab1",
			date:     "2024-01-10",
			from:     "09:00",
			want:     []string{"10:30", "11:00", "11:30", "12:00", "12:30", "13:00", "13:30", "14:00", "14:30", "15:00", "15:30", "16:00", "16:30"},
		},
		{
			name:     "single digit hour",
			resource: "lab1",
			date:     "2024-01-10",
			from:     "9:00",
			want:     []string{"10:30", "11:00", "11:30", "12:00", "12:30", "13:00", "13:30", "14:00", "14:30", "15:00", "15:30", "16:00", "16:30"},
		},
		{
			name:     "anonymous bookings still occupy",
			resource: "lab2",
			date:     "2024-01-11",
			from:     "10:30",
			want:     []string{"10:30", "11:30", "12:00", "12:30", "13:00", "13:30", "14:00", "14:30", "15:00", "15:30", "16:00", "16:30"},
		},
		{
			name:     "late start",
			resource: "lab3",
			date:     "2024-01-12",
			from:     "16:00",
			want:     []string{"16:00", "16:30"},
		},
		{
			name:     "after closing is empty",
			resource: "lab3",
			date:     "2024-01-12",
			from:     "17:00",
			want:     []string{},
		},
		{
			name:     "empty start means whole day",
			resource: "lab3",
			date:     "2024-01-12",
			want:     catalog.Default().Labels()[2:],
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := svc.Search(ctx, tt.resource, tt.date, tt.from)
			if err != nil {
				t.Fatalf("Search failed: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}

	t.Run("malformed start time", func(t *testing.T) {
		t.Parallel()

		_, err := svc.Search(ctx, "lab1", "2024-01-10", "9am")
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["from"] == "" {
			t.Fatalf("expected from validation error, got %v", err)
		}
	})
}
