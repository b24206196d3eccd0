package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/lab-reservations/internal/application"
	"github.com/example/lab-reservations/internal/availability"
)

type reservationService interface {
	Book(ctx context.Context, params application.BookParams) (application.Reservation, error)
	Edit(ctx context.Context, session application.Session, id int64) (application.EditResult, error)
	Cancel(ctx context.Context, session application.Session, id int64) error
	Recent(ctx context.Context, limit int) ([]application.Reservation, error)
}

type myReservations interface {
	MyReservations(ctx context.Context, session application.Session) ([]application.Reservation, error)
}

// ReservationHandler serves booking, editing and cancelling.
type ReservationHandler struct {
	handler
	service   reservationService
	directory myReservations
}

// NewReservationHandler constructs a ReservationHandler.
func NewReservationHandler(service reservationService, directory myReservations, logger *slog.Logger) *ReservationHandler {
	return &ReservationHandler{handler: newHandler("ReservationHandler", logger), service: service, directory: directory}
}

// Book handles POST /reservations.
func (h *ReservationHandler) Book(c *gin.Context) {
	var req bookRequest
	if !h.decode(c, "Book", &req) {
		return
	}

	ctx := c.Request.Context()
	logger := h.log(ctx, "Book", "resource", req.Resource, "date", req.Date, "slot", req.Slot)

	reservation, err := h.service.Book(ctx, application.BookParams{
		Session:   sessionOf(c),
		Resource:  req.Resource,
		Date:      req.Date,
		Slot:      req.Slot,
		Anonymous: req.Anonymous,
	})
	if err != nil {
		h.fail(c, logger, "booking rejected", err)
		return
	}
	h.ok(c, http.StatusCreated, toReservationDTO(reservation, reservation.User))
}

// Edit handles POST /reservations/{id}/edit.
func (h *ReservationHandler) Edit(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := h.reservationID(c, "Edit")
	if !ok {
		return
	}
	logger := h.log(ctx, "Edit", "reservation_id", id)

	result, err := h.service.Edit(ctx, sessionOf(c), id)
	if err != nil {
		h.fail(c, logger, "edit rejected", err)
		return
	}
	h.ok(c, http.StatusOK, editResponse{
		Released:     toReservationDTO(result.Released, sessionOf(c).Identity),
		Availability: result.Availability,
	})
}

// Cancel handles DELETE /reservations/{id}.
func (h *ReservationHandler) Cancel(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := h.reservationID(c, "Cancel")
	if !ok {
		return
	}

	if err := h.service.Cancel(ctx, sessionOf(c), id); err != nil {
		h.fail(c, h.log(ctx, "Cancel", "reservation_id", id), "cancel rejected", err)
		return
	}
	h.ok(c, http.StatusNoContent, nil)
}

// Mine handles GET /reservations/mine.
func (h *ReservationHandler) Mine(c *gin.Context) {
	ctx := c.Request.Context()
	session := sessionOf(c)

	reservations, err := h.directory.MyReservations(ctx, session)
	if err != nil {
		h.fail(c, h.log(ctx, "Mine"), "failed to list own reservations", err)
		return
	}
	h.ok(c, http.StatusOK, toReservationDTOs(reservations, session.Identity))
}

// Recent handles GET /reservations/recent. Visitors see the first
// reservations on record; authenticated callers see their own.
func (h *ReservationHandler) Recent(c *gin.Context) {
	if _, ok := SessionFromContext(c.Request.Context()); ok {
		h.Mine(c)
		return
	}

	ctx := c.Request.Context()
	reservations, err := h.service.Recent(ctx, application.RecentLimit)
	if err != nil {
		h.fail(c, h.log(ctx, "Recent"), "failed to list recent reservations", err)
		return
	}
	h.ok(c, http.StatusOK, toReservationDTOs(reservations, ""))
}

func (h *ReservationHandler) reservationID(c *gin.Context, operation string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id <= 0 {
		h.log(c.Request.Context(), operation, "error_kind", "bad_request").
			InfoContext(c.Request.Context(), "invalid reservation id", "raw", c.Param("id"))
		h.responder.reject(c, http.StatusBadRequest, "BAD_REQUEST", errInvalidReservation)
		return 0, false
	}
	return id, true
}

type bookRequest struct {
	Resource  string `json:"resource"`
	Date      string `json:"date"`
	Slot      string `json:"slot"`
	Anonymous bool   `json:"anonymous"`
}

type reservationDTO struct {
	ID        int64    `json:"id"`
	User      string   `json:"user,omitempty"`
	Resource  string   `json:"resource"`
	Date      string   `json:"date"`
	Slots     []string `json:"slots"`
	Anonymous bool     `json:"anonymous"`
	CreatedAt string   `json:"created_at,omitempty"`
}

type editResponse struct {
	Released     reservationDTO          `json:"released"`
	Availability []availability.SlotView `json:"availability"`
}

// toReservationDTO hides the holder of an anonymous reservation from
// everyone except the holder.
func toReservationDTO(r application.Reservation, viewer string) reservationDTO {
	dto := reservationDTO{
		ID:        r.ID,
		User:      r.User,
		Resource:  r.Resource,
		Date:      r.Date,
		Slots:     r.Slots,
		Anonymous: r.Anonymous,
	}
	if r.Anonymous && !strings.EqualFold(viewer, r.User) {
		dto.User = ""
	}
	if !r.CreatedAt.IsZero() {
		dto.CreatedAt = r.CreatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toReservationDTOs(reservations []application.Reservation, viewer string) []reservationDTO {
	out := make([]reservationDTO, 0, len(reservations))
	for _, r := range reservations {
		out = append(out, toReservationDTO(r, viewer))
	}
	return out
}
