package events

import (
	"context"
	"log/slog"
	"sync"
)

const subscriberBuffer = 16

type topic struct {
	resource string
	date     string
}

type subscriber struct {
	topic topic
	ch    chan Event
}

// Bus is an in-process fan-out of events keyed by resource and date.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	logger *slog.Logger
}

// NewBus returns an empty Bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{subs: make(map[*subscriber]struct{}), logger: logger}
}

// Subscribe returns a channel receiving events for resource and date, and a
// function that ends the subscription and closes the channel. An empty
// resource or date matches any value.
func (b *Bus) Subscribe(resource, date string) (<-chan Event, func()) {
	sub := &subscriber{topic: topic{resource: resource, date: date}, ch: make(chan Event, subscriberBuffer)}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Publish implements Publisher. Subscribers whose buffer is full miss the
// event; their next periodic refresh catches up.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if !sub.topic.matches(evt) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.logger.DebugContext(ctx, "dropped event for slow subscriber",
				"resource", evt.Resource, "date", evt.Date, "kind", evt.Kind)
		}
	}
	return nil
}

// Subscribers reports the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (t topic) matches(evt Event) bool {
	return (t.resource == "" || t.resource == evt.Resource) && (t.date == "" || t.date == evt.Date)
}
