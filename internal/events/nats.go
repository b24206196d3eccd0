package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is the root of every reservation subject.
const DefaultSubjectPrefix = "labres.reservations"

// Subject returns the NATS subject for events about resource on date.
func Subject(prefix, resource, date string) string {
	return prefix + "." + subjectToken(resource) + "." + subjectToken(date)
}

// Connect dials a NATS server with reconnects enabled.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect to %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher publishes events as JSON messages.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	origin string
}

// NewNATSPublisher returns a publisher stamping events with origin.
func NewNATSPublisher(conn *nats.Conn, prefix, origin string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, prefix: prefix, origin: origin}
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(_ context.Context, evt Event) error {
	evt.Origin = p.origin
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}
	if err := p.conn.Publish(Subject(p.prefix, evt.Resource, evt.Date), data); err != nil {
		return fmt.Errorf("events: publish: %w", err)
	}
	return nil
}

// Bridge relays events published by other instances into a local Publisher,
// normally the Bus feeding this instance's live views.
type Bridge struct {
	conn   *nats.Conn
	prefix string
	origin string
	local  Publisher
	logger *slog.Logger
	sub    *nats.Subscription
}

// NewBridge returns a Bridge that ignores messages stamped with origin.
func NewBridge(conn *nats.Conn, prefix, origin string, local Publisher, logger *slog.Logger) *Bridge {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{conn: conn, prefix: prefix, origin: origin, local: local, logger: logger.With("component", "events.Bridge")}
}

// Start subscribes to every reservation subject.
func (b *Bridge) Start() error {
	sub, err := b.conn.Subscribe(b.prefix+".>", b.handle)
	if err != nil {
		return fmt.Errorf("events: subscribe: %w", err)
	}
	b.sub = sub
	return b.conn.Flush()
}

// Close ends the subscription.
func (b *Bridge) Close() error {
	if b.sub == nil {
		return nil
	}
	return b.sub.Unsubscribe()
}

func (b *Bridge) handle(msg *nats.Msg) {
	var evt Event
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		b.logger.Warn("discarding malformed event", "subject", msg.Subject, "error", err)
		return
	}
	if evt.Origin != "" && evt.Origin == b.origin {
		return
	}
	if !strings.HasPrefix(msg.Subject, b.prefix+".") {
		return
	}
	if err := b.local.Publish(context.Background(), evt); err != nil {
		b.logger.Warn("failed to relay event", "subject", msg.Subject, "error", err)
	}
}
