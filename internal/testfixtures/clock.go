package testfixtures

import (
	"sync"
	"time"
)

// SeedDay is the instant tests seed the demonstration data at. Seeded
// reservations fall on this day and the three following ones.
var SeedDay = time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC)

// Clock is a manually driven time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at start, or at SeedDay when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = SeedDay
	}
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t, backwards if need be.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
