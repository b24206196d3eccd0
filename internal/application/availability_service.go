package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/lab-reservations/internal/availability"
	"github.com/example/lab-reservations/internal/catalog"
)

// AvailabilityService answers read-only questions about slot occupancy.
type AvailabilityService struct {
	reservations ReservationStore
	users        UserStore
	slots        *catalog.Slots
	resources    *catalog.Resources
	logger       *slog.Logger
}

// NewAvailabilityService constructs an AvailabilityService. Nil catalogs fall
// back to the defaults.
func NewAvailabilityService(reservations ReservationStore, users UserStore, slots *catalog.Slots, resources *catalog.Resources) *AvailabilityService {
	return NewAvailabilityServiceWithLogger(reservations, users, slots, resources, nil)
}

// NewAvailabilityServiceWithLogger constructs an AvailabilityService with a specified logger.
func NewAvailabilityServiceWithLogger(reservations ReservationStore, users UserStore, slots *catalog.Slots, resources *catalog.Resources, logger *slog.Logger) *AvailabilityService {
	if slots == nil {
		slots = catalog.Default()
	}
	if resources == nil {
		resources = catalog.DefaultResources()
	}
	return &AvailabilityService{
		reservations: reservations,
		users:        users,
		slots:        slots,
		resources:    resources,
		logger:       defaultLogger(logger),
	}
}

func (s *AvailabilityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AvailabilityService", operation, attrs...)
}

// Slots returns the slot catalog in use.
func (s *AvailabilityService) Slots() *catalog.Slots {
	return s.slots
}

// Resources returns the resource catalog in use.
func (s *AvailabilityService) Resources() []catalog.Resource {
	return s.resources.List()
}

// ListAvailability returns one view per catalog slot for resource on date,
// naming the holder of each occupied slot unless the booking is anonymous.
func (s *AvailabilityService) ListAvailability(ctx context.Context, resource, date string) ([]availability.SlotView, error) {
	if s == nil || s.reservations == nil {
		return nil, fmt.Errorf("AvailabilityService not configured")
	}
	if vErr := s.validateQuery(resource, date); vErr.HasErrors() {
		return nil, vErr
	}

	snap, err := s.reservations.LoadReservations(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	owners, err := loadOwners(ctx, s.users)
	if err != nil {
		return nil, err
	}
	return availability.Compute(s.slots, resource, date, toEngine(snap.Items), owners), nil
}

// Search lists the free slot labels of resource on date at or after minTime.
// An empty minTime matches the whole day. No free slot is not an error.
func (s *AvailabilityService) Search(ctx context.Context, resource, date, minTime string) ([]string, error) {
	if s == nil || s.reservations == nil {
		return nil, fmt.Errorf("AvailabilityService not configured")
	}
	vErr := s.validateQuery(resource, date)
	if minTime != "" {
		// Labels compare as text, so "9:00" must become "09:00".
		if parsed, err := time.Parse("15:04", minTime); err != nil {
			vErr.add("from", "time must be formatted HH:MM")
		} else {
			minTime = parsed.Format("15:04")
		}
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	snap, err := s.reservations.LoadReservations(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return availability.FreeSlots(s.slots, resource, date, minTime, toEngine(snap.Items)), nil
}

func (s *AvailabilityService) validateQuery(resource, date string) *ValidationError {
	vErr := &ValidationError{}
	if _, ok := s.resources.Lookup(resource); !ok {
		vErr.add("resource", fmt.Sprintf("unknown resource %q", resource))
	}
	vErr.merge(validateDate(date))
	return vErr
}
