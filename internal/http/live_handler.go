package http

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/example/lab-reservations/internal/availability"
	"github.com/example/lab-reservations/internal/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

type availabilityWatcher interface {
	ListAvailability(ctx context.Context, resource, date string) ([]availability.SlotView, error)
	Watch(ctx context.Context, resource, date string, interval time.Duration, triggers <-chan events.Event, emit func([]availability.SlotView) error) error
}

type eventSubscriber interface {
	Subscribe(resource, date string) (<-chan events.Event, func())
}

// LiveHandler streams availability over a websocket. A view is pushed on
// connect, on every refresh tick and whenever the reservation events for the
// watched lab and date report a change.
type LiveHandler struct {
	handler
	service  availabilityWatcher
	events   eventSubscriber
	interval time.Duration
	upgrader websocket.Upgrader
}

// NewLiveHandler constructs a LiveHandler. allowedOrigins lists the browser
// origins that may connect; "*" allows any and an empty list allows only the
// server's own host.
func NewLiveHandler(service availabilityWatcher, subscriber eventSubscriber, interval time.Duration, allowedOrigins []string, logger *slog.Logger) *LiveHandler {
	h := &LiveHandler{
		handler:  newHandler("LiveHandler", logger),
		service:  service,
		events:   subscriber,
		interval: interval,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
	}
	switch {
	case slices.Contains(allowedOrigins, "*"):
		h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	case len(allowedOrigins) > 0:
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, origin)
		}
	}
	return h
}

type liveMessage struct {
	Type     string                  `json:"type"`
	Resource string                  `json:"resource"`
	Date     string                  `json:"date"`
	Slots    []availability.SlotView `json:"slots"`
	At       string                  `json:"at"`
}

// Serve handles GET /availability/live.
func (h *LiveHandler) Serve(c *gin.Context) {
	ctx := c.Request.Context()
	resource, date := c.Query("resource"), c.Query("date")
	logger := h.log(ctx, "Serve", "resource", resource, "date", date)

	// Reject bad queries while a plain HTTP error can still be returned.
	if _, err := h.service.ListAvailability(ctx, resource, date); err != nil {
		h.fail(c, logger, "live view rejected", err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.InfoContext(ctx, "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var triggers <-chan events.Event
	if h.events != nil {
		var unsubscribe func()
		triggers, unsubscribe = h.events.Subscribe(resource, date)
		defer unsubscribe()
	}

	send := make(chan liveMessage, 1)
	go readPump(conn, cancel)

	watchDone := make(chan error, 1)
	go func() {
		defer cancel()
		watchDone <- h.service.Watch(ctx, resource, date, h.interval, triggers, func(views []availability.SlotView) error {
			msg := liveMessage{Type: "availability", Resource: resource, Date: date, Slots: views, At: time.Now().UTC().Format(time.RFC3339)}
			select {
			case send <- msg:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	logger.InfoContext(ctx, "live view opened")
	if err := writePump(ctx, conn, send); err != nil {
		logger.DebugContext(ctx, "live view write failed", "error", err)
	}
	cancel()
	if err := <-watchDone; err != nil {
		logger.WarnContext(ctx, "live view stopped", "error", err)
	}
	logger.InfoContext(ctx, "live view closed")
}

// readPump discards client messages and cancels the view once the client
// goes away or stops answering pings.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, send <-chan liveMessage) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case msg := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return err
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}
