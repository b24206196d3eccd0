// Package availability turns reservation records into per-slot occupancy
// views. Everything here is pure: inputs are never mutated and no I/O occurs.
package availability

import (
	"sort"

	"github.com/example/lab-reservations/internal/catalog"
)

// Reservation is the subset of a stored reservation the engine needs.
type Reservation struct {
	ID        int64
	User      string
	Resource  string
	Date      string
	Slots     []string
	Anonymous bool
}

// OwnerRef identifies the user displayed as holding a slot.
type OwnerRef struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
}

// SlotView is the occupancy of one catalog slot.
type SlotView struct {
	Label    string    `json:"label"`
	Occupied bool      `json:"occupied"`
	Owner    *OwnerRef `json:"owner,omitempty"`
}

// OwnerResolver looks up display data for a user identity. It reports false
// for unknown identities.
type OwnerResolver func(identity string) (OwnerRef, bool)

// Compute returns one SlotView per catalog label, in catalog order. When
// several reservations list the same slot the earliest one in reservations
// decides the owner; an anonymous or unresolvable holder leaves Owner nil.
func Compute(slots *catalog.Slots, resource, date string, reservations []Reservation, resolve OwnerResolver) []SlotView {
	holders := holdersBySlot(resource, date, reservations)

	views := make([]SlotView, 0, slots.Len())
	slots.Each(func(_ int, label string) {
		view := SlotView{Label: label}
		if list := holders[label]; len(list) > 0 {
			view.Occupied = true
			first := list[0]
			if !first.Anonymous && resolve != nil {
				if owner, ok := resolve(first.User); ok {
					view.Owner = &owner
				}
			}
		}
		views = append(views, view)
	})
	return views
}

// Occupied returns the union of slot labels held by any reservation for
// (resource, date), regardless of anonymity.
func Occupied(resource, date string, reservations []Reservation) map[string]struct{} {
	occupied := make(map[string]struct{})
	for _, r := range reservations {
		if r.Resource != resource || r.Date != date {
			continue
		}
		for _, slot := range r.Slots {
			occupied[slot] = struct{}{}
		}
	}
	return occupied
}

// IsOccupied reports whether any reservation holds slot on (resource, date).
func IsOccupied(resource, date, slot string, reservations []Reservation) bool {
	_, taken := Occupied(resource, date, reservations)[slot]
	return taken
}

// FreeSlots lists the catalog labels at or after minTime that no reservation
// holds. Labels are zero-padded HH:MM so string order is time order. An empty
// minTime matches every label.
func FreeSlots(slots *catalog.Slots, resource, date, minTime string, reservations []Reservation) []string {
	occupied := Occupied(resource, date, reservations)
	free := make([]string, 0, slots.Len())
	slots.Each(func(_ int, label string) {
		if label < minTime {
			return
		}
		if _, taken := occupied[label]; taken {
			return
		}
		free = append(free, label)
	})
	return free
}

// DoubleBooking records a slot held by more than one reservation.
type DoubleBooking struct {
	Resource       string
	Date           string
	Slot           string
	ReservationIDs []int64
}

// DoubleBookings reports every (resource, date, slot) listed by more than one
// reservation. Results are ordered by resource, date and slot.
func DoubleBookings(reservations []Reservation) []DoubleBooking {
	type key struct{ resource, date, slot string }
	seen := make(map[key][]int64)
	for _, r := range reservations {
		for _, slot := range r.Slots {
			k := key{r.Resource, r.Date, slot}
			seen[k] = append(seen[k], r.ID)
		}
	}

	var out []DoubleBooking
	for k, ids := range seen {
		if len(ids) < 2 {
			continue
		}
		out = append(out, DoubleBooking{Resource: k.resource, Date: k.date, Slot: k.slot, ReservationIDs: ids})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Resource != out[j].Resource {
			return out[i].Resource < out[j].Resource
		}
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Slot < out[j].Slot
	})
	return out
}

func holdersBySlot(resource, date string, reservations []Reservation) map[string][]Reservation {
	holders := make(map[string][]Reservation)
	for _, r := range reservations {
		if r.Resource != resource || r.Date != date {
			continue
		}
		for _, slot := range r.Slots {
			holders[slot] = append(holders[slot], r)
		}
	}
	return holders
}
