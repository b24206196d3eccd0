// Package events distributes reservation change notifications so that live
// availability views refresh as soon as a slot is booked or released, on this
// instance or on any other instance sharing the same NATS server.
package events

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Kind names what happened to a reservation.
type Kind string

const (
	KindBooked    Kind = "booked"
	KindCancelled Kind = "cancelled"
)

// Event describes a committed change to the reservation collection.
type Event struct {
	Kind          Kind      `json:"kind"`
	ReservationID int64     `json:"reservation_id"`
	Resource      string    `json:"resource"`
	Date          string    `json:"date"`
	Slots         []string  `json:"slots"`
	Actor         string    `json:"actor,omitempty"`
	At            time.Time `json:"at"`
	// Origin identifies the publishing instance so relays can skip their own
	// messages.
	Origin string `json:"origin,omitempty"`
}

// Publisher delivers events. Implementations must not block on slow consumers.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Fanout publishes every event to all of its publishers.
type Fanout []Publisher

// Publish implements Publisher. Every publisher is attempted; failures are joined.
func (f Fanout) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// subjectToken makes s usable as one NATS subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
