package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/lab-reservations/internal/application"
)

type directoryService interface {
	ListUsers(ctx context.Context) ([]application.User, error)
	Profile(ctx context.Context, identity string) (application.Profile, error)
	ListReservationsFor(ctx context.Context, identity string) ([]application.Reservation, error)
	UpdateDescription(ctx context.Context, session application.Session, identity, text string) (application.User, error)
}

// UserHandler serves the user directory and profiles.
type UserHandler struct {
	handler
	service directoryService
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(service directoryService, logger *slog.Logger) *UserHandler {
	return &UserHandler{handler: newHandler("UserHandler", logger), service: service}
}

// List handles GET /users.
func (h *UserHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	users, err := h.service.ListUsers(ctx)
	if err != nil {
		h.fail(c, h.log(ctx, "List"), "failed to list users", err)
		return
	}

	out := make([]userDTO, 0, len(users))
	for _, u := range users {
		out = append(out, toUserDTO(u))
	}
	h.ok(c, http.StatusOK, out)
}

// Get handles GET /users/{identity}: the public profile with reservations.
func (h *UserHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	identity := c.Param("identity")

	profile, err := h.service.Profile(ctx, identity)
	if err != nil {
		h.fail(c, h.log(ctx, "Get", "identity", identity), "failed to load profile", err)
		return
	}

	viewer := sessionOf(c).Identity
	h.ok(c, http.StatusOK, profileDTO{
		User:         toUserDTO(profile.User),
		Reservations: toReservationDTOs(profile.Reservations, viewer),
	})
}

// Reservations handles GET /users/{identity}/reservations.
func (h *UserHandler) Reservations(c *gin.Context) {
	ctx := c.Request.Context()
	identity := c.Param("identity")

	reservations, err := h.service.ListReservationsFor(ctx, identity)
	if err != nil {
		h.fail(c, h.log(ctx, "Reservations", "identity", identity), "failed to list reservations", err)
		return
	}
	viewer := sessionOf(c).Identity
	h.ok(c, http.StatusOK, toReservationDTOs(reservations, viewer))
}

// UpdateDescription handles PUT /users/{identity}/description.
func (h *UserHandler) UpdateDescription(c *gin.Context) {
	var req descriptionRequest
	if !h.decode(c, "UpdateDescription", &req) {
		return
	}

	ctx := c.Request.Context()
	identity := c.Param("identity")
	logger := h.log(ctx, "UpdateDescription", "identity", identity)

	user, err := h.service.UpdateDescription(ctx, sessionOf(c), identity, req.Description)
	if err != nil {
		h.fail(c, logger, "profile update rejected", err)
		return
	}
	h.ok(c, http.StatusOK, toUserDTO(user))
}

type userDTO struct {
	Identity    string `json:"identity"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Description string `json:"description"`
	Picture     string `json:"picture,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

type profileDTO struct {
	User         userDTO          `json:"user"`
	Reservations []reservationDTO `json:"reservations"`
}

type descriptionRequest struct {
	Description string `json:"description"`
}

func toUserDTO(u application.User) userDTO {
	dto := userDTO{
		Identity:    u.Identity,
		Name:        u.Name,
		Role:        string(u.Role),
		Description: u.Description,
		Picture:     u.Picture,
	}
	if !u.CreatedAt.IsZero() {
		dto.CreatedAt = u.CreatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}
