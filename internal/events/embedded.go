package events

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedConfig configures an in-process NATS server.
type EmbeddedConfig struct {
	Host string
	// Port to listen on; -1 picks a random free port.
	Port       int
	MaxPayload int32
}

// Embedded is a NATS server running inside this process.
type Embedded struct {
	server *server.Server
}

// StartEmbedded starts a NATS server and waits until it accepts clients.
func StartEmbedded(cfg EmbeddedConfig) (*Embedded, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = 1 << 20
	}

	ns, err := server.NewServer(&server.Options{
		Host:          cfg.Host,
		Port:          cfg.Port,
		NoLog:         true,
		NoSigs:        true,
		MaxPayload:    cfg.MaxPayload,
		WriteDeadline: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("events: create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("events: NATS server not ready after 5 seconds")
	}
	return &Embedded{server: ns}, nil
}

// ClientURL is the URL clients should dial.
func (e *Embedded) ClientURL() string {
	return e.server.ClientURL()
}

// Shutdown stops the server and waits for it to exit.
func (e *Embedded) Shutdown() {
	e.server.Shutdown()
	e.server.WaitForShutdown()
}
