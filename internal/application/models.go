package application

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/example/lab-reservations/internal/availability"
	"github.com/example/lab-reservations/internal/persistence"
)

// Role is the closed set of account kinds.
type Role string

const (
	RoleStudent    Role = "student"
	RoleTechnician Role = "technician"
)

// Capability is a permission granted by a role.
type Capability string

const (
	// CapBookReservations allows booking, editing and cancelling one's own reservations.
	CapBookReservations Capability = "book_reservations"
	// CapManageAnyReservation allows editing and cancelling reservations owned by others
	// when the ownership policy is enforced.
	CapManageAnyReservation Capability = "manage_any_reservation"
)

var roleCapabilities = map[Role][]Capability{
	RoleStudent:    {CapBookReservations},
	RoleTechnician: {CapBookReservations, CapManageAnyReservation},
}

// ParseRole validates a role name. An empty value defaults to student.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if role == "" {
		return RoleStudent, nil
	}
	if _, ok := roleCapabilities[role]; !ok {
		return "", fmt.Errorf("unknown role %q", value)
	}
	return role, nil
}

// Capabilities lists what the role may do.
func (r Role) Capabilities() []Capability {
	return slices.Clone(roleCapabilities[r])
}

// Can reports whether the role grants capability.
func (r Role) Can(capability Capability) bool {
	return slices.Contains(roleCapabilities[r], capability)
}

// OwnershipPolicy decides who may edit or cancel a reservation.
type OwnershipPolicy string

const (
	// OwnershipOpen lets any authenticated actor edit or cancel any reservation.
	OwnershipOpen OwnershipPolicy = "open"
	// OwnershipOwner restricts edit and cancel to the owner and to roles with
	// CapManageAnyReservation.
	OwnershipOwner OwnershipPolicy = "owner"
)

// ParseOwnershipPolicy validates a policy name. An empty value means open.
func ParseOwnershipPolicy(value string) (OwnershipPolicy, error) {
	switch OwnershipPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", OwnershipOpen:
		return OwnershipOpen, nil
	case OwnershipOwner:
		return OwnershipOwner, nil
	}
	return "", fmt.Errorf("unknown ownership policy %q", value)
}

// Session is the authenticated actor of a request. The zero value is an
// anonymous visitor.
type Session struct {
	Identity  string
	Role      Role
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Authenticated reports whether the session names an actor.
func (s Session) Authenticated() bool {
	return strings.TrimSpace(s.Identity) != ""
}

// User is an account as exposed by the services. The credential never leaves
// the persistence layer.
type User struct {
	Identity    string
	Name        string
	Role        Role
	Description string
	Picture     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Reservation is a booking of one or more slots of a resource on a date.
type Reservation struct {
	ID        int64
	User      string
	Resource  string
	Date      string
	Slots     []string
	Anonymous bool
	CreatedAt time.Time
}

// RegisterParams captures the data required to create an account.
type RegisterParams struct {
	Identity    string
	Name        string
	Password    string
	Role        string
	Description string
}

// LoginParams captures the data required to authenticate.
type LoginParams struct {
	Identity string
	Password string
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	User    User
	Session Session
	Token   string
}

// BookParams captures a booking request.
type BookParams struct {
	Session   Session
	Resource  string
	Date      string
	Slot      string
	Anonymous bool
}

// EditResult is returned by Edit: the reservation that was released and the
// refreshed availability of its resource and date, ready for re-booking.
type EditResult struct {
	Released     Reservation
	Availability []availability.SlotView
}

// Profile is a user together with their reservations.
type Profile struct {
	User         User
	Reservations []Reservation
}

func userFromRecord(u persistence.User) User {
	return User{
		Identity:    u.Email,
		Name:        u.Name,
		Role:        Role(u.Role),
		Description: u.Description,
		Picture:     u.Picture,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func reservationFromRecord(r persistence.Reservation) Reservation {
	return Reservation{
		ID:        r.ID,
		User:      r.User,
		Resource:  r.Resource,
		Date:      r.Date,
		Slots:     slices.Clone(r.Slots),
		Anonymous: r.Anonymous,
		CreatedAt: r.CreatedAt,
	}
}

func reservationsFromRecords(records []persistence.Reservation) []Reservation {
	out := make([]Reservation, 0, len(records))
	for _, r := range records {
		out = append(out, reservationFromRecord(r))
	}
	return out
}

func toEngine(records []persistence.Reservation) []availability.Reservation {
	out := make([]availability.Reservation, 0, len(records))
	for _, r := range records {
		out = append(out, availability.Reservation{
			ID:        r.ID,
			User:      r.User,
			Resource:  r.Resource,
			Date:      r.Date,
			Slots:     r.Slots,
			Anonymous: r.Anonymous,
		})
	}
	return out
}

func normalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
