package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/lab-reservations/internal/availability"
	"github.com/example/lab-reservations/internal/catalog"
)

type availabilityService interface {
	ListAvailability(ctx context.Context, resource, date string) ([]availability.SlotView, error)
	Search(ctx context.Context, resource, date, minTime string) ([]string, error)
	Resources() []catalog.Resource
}

// AvailabilityHandler serves the public occupancy views.
type AvailabilityHandler struct {
	handler
	service availabilityService
}

// NewAvailabilityHandler constructs an AvailabilityHandler.
func NewAvailabilityHandler(service availabilityService, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{handler: newHandler("AvailabilityHandler", logger), service: service}
}

// List handles GET /availability.
func (h *AvailabilityHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	resource, date := c.Query("resource"), c.Query("date")

	views, err := h.service.ListAvailability(ctx, resource, date)
	if err != nil {
		h.fail(c, h.log(ctx, "List", "resource", resource, "date", date), "failed to compute availability", err)
		return
	}
	h.ok(c, http.StatusOK, availabilityResponse{Resource: resource, Date: date, Slots: views})
}

// Search handles GET /search.
func (h *AvailabilityHandler) Search(c *gin.Context) {
	ctx := c.Request.Context()
	resource, date, from := c.Query("resource"), c.Query("date"), c.Query("from")

	free, err := h.service.Search(ctx, resource, date, from)
	if err != nil {
		h.fail(c, h.log(ctx, "Search", "resource", resource, "date", date, "from", from), "search failed", err)
		return
	}
	h.ok(c, http.StatusOK, searchResponse{Resource: resource, Date: date, From: from, Free: free})
}

// Resources handles GET /resources.
func (h *AvailabilityHandler) Resources(c *gin.Context) {
	h.ok(c, http.StatusOK, h.service.Resources())
}

type availabilityResponse struct {
	Resource string                  `json:"resource"`
	Date     string                  `json:"date"`
	Slots    []availability.SlotView `json:"slots"`
}

type searchResponse struct {
	Resource string   `json:"resource"`
	Date     string   `json:"date"`
	From     string   `json:"from,omitempty"`
	Free     []string `json:"free"`
}
