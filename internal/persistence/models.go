package persistence

import (
	"slices"
	"time"
)

// User is the stored form of an account. Email is the primary key.
type User struct {
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"password_hash,omitempty"`
	Role         string    `json:"role"`
	Description  string    `json:"description"`
	Picture      string    `json:"pic"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
}

// Reservation is the stored form of a booking. Date is an opaque YYYY-MM-DD key.
type Reservation struct {
	ID        int64     `json:"id"`
	User      string    `json:"user"`
	Resource  string    `json:"lab"`
	Date      string    `json:"date"`
	Slots     []string  `json:"slots"`
	Anonymous bool      `json:"anonymous"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Snapshot is a whole collection together with the revision it was read at.
// Saving a snapshot succeeds only while the stored revision is unchanged.
type Snapshot[T any] struct {
	Revision int64
	Items    []T
}

// UserSnapshot is the users collection.
type UserSnapshot = Snapshot[User]

// ReservationSnapshot is the reservations collection.
type ReservationSnapshot = Snapshot[Reservation]

func cloneUsers(users []User) []User {
	return slices.Clone(users)
}

func cloneReservations(reservations []Reservation) []Reservation {
	if reservations == nil {
		return nil
	}
	out := make([]Reservation, len(reservations))
	for i, r := range reservations {
		out[i] = r
		out[i].Slots = slices.Clone(r.Slots)
	}
	return out
}
