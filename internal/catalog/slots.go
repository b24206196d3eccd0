// Package catalog holds the static reference data shared by every component:
// the ordered slot labels of a reservation day and the bookable resources.
package catalog

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const labelLayout = "15:04"

var (
	// ErrInvalidWindow is returned when a slot window cannot produce a catalog.
	ErrInvalidWindow = errors.New("catalog: invalid slot window")
)

// Window describes the daily booking window and the slot length.
type Window struct {
	Start    string
	End      string
	Interval time.Duration
}

// DefaultWindow returns the 08:00–17:00 window split into 30 minute slots.
func DefaultWindow() Window {
	return Window{Start: "08:00", End: "17:00", Interval: 30 * time.Minute}
}

// GenerateSlots returns the HH:MM labels from Start (inclusive) to End
// (exclusive) in Interval steps.
func GenerateSlots(w Window) ([]string, error) {
	start, err := time.Parse(labelLayout, w.Start)
	if err != nil {
		return nil, fmt.Errorf("%w: start %q: %v", ErrInvalidWindow, w.Start, err)
	}
	end, err := time.Parse(labelLayout, w.End)
	if err != nil {
		return nil, fmt.Errorf("%w: end %q: %v", ErrInvalidWindow, w.End, err)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end %s must be after start %s", ErrInvalidWindow, w.End, w.Start)
	}
	if w.Interval < time.Minute || w.Interval%time.Minute != 0 {
		return nil, fmt.Errorf("%w: interval %s must be a positive whole number of minutes", ErrInvalidWindow, w.Interval)
	}

	labels := make([]string, 0, int(end.Sub(start)/w.Interval)+1)
	for current := start; current.Before(end); current = current.Add(w.Interval) {
		labels = append(labels, current.Format(labelLayout))
	}
	return labels, nil
}

// Slots is an immutable, ordered slot catalog.
type Slots struct {
	labels []string
	index  map[string]int
}

// New builds a catalog for the supplied window.
func New(w Window) (*Slots, error) {
	labels, err := GenerateSlots(w)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(labels))
	for i, label := range labels {
		index[label] = i
	}
	return &Slots{labels: labels, index: index}, nil
}

var defaultSlots = sync.OnceValue(func() *Slots {
	slots, err := New(DefaultWindow())
	if err != nil {
		panic(err)
	}
	return slots
})

// Default returns the process-wide catalog for DefaultWindow. It is computed
// once on first use.
func Default() *Slots {
	return defaultSlots()
}

// Labels returns a copy of the ordered labels.
func (s *Slots) Labels() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.labels))
	copy(out, s.labels)
	return out
}

// Len reports the number of slots in a day.
func (s *Slots) Len() int {
	if s == nil {
		return 0
	}
	return len(s.labels)
}

// Contains reports whether label is a catalog slot.
func (s *Slots) Contains(label string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[label]
	return ok
}

// Index returns the position of label, or -1.
func (s *Slots) Index(label string) int {
	if s == nil {
		return -1
	}
	if i, ok := s.index[label]; ok {
		return i
	}
	return -1
}

// Each calls fn for every label in order.
func (s *Slots) Each(fn func(i int, label string)) {
	if s == nil {
		return
	}
	for i, label := range s.labels {
		fn(i, label)
	}
}
