package application

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/example/lab-reservations/internal/availability"
	"github.com/example/lab-reservations/internal/catalog"
	"github.com/example/lab-reservations/internal/events"
	"github.com/example/lab-reservations/internal/persistence"
)

// RecentLimit is how many reservations Recent returns to anonymous visitors.
const RecentLimit = 5

// ReservationService books, edits and cancels reservations. All mutations
// pass through one mutex and are committed with revision checks so that a
// slot is never held twice.
type ReservationService struct {
	mu           sync.Mutex
	reservations ReservationStore
	users        UserStore
	slots        *catalog.Slots
	resources    *catalog.Resources
	policy       OwnershipPolicy
	events       EventPublisher
	now          func() time.Time
	logger       *slog.Logger
}

// ReservationServiceConfig bundles the collaborators of a ReservationService.
type ReservationServiceConfig struct {
	Reservations ReservationStore
	Users        UserStore
	Slots        *catalog.Slots
	Resources    *catalog.Resources
	Policy       OwnershipPolicy
	Events       EventPublisher
	Now          func() time.Time
	Logger       *slog.Logger
}

// NewReservationService constructs a ReservationService. Missing catalogs fall
// back to the defaults; a missing policy means OwnershipOpen.
func NewReservationService(cfg ReservationServiceConfig) *ReservationService {
	if cfg.Slots == nil {
		cfg.Slots = catalog.Default()
	}
	if cfg.Resources == nil {
		cfg.Resources = catalog.DefaultResources()
	}
	if cfg.Policy == "" {
		cfg.Policy = OwnershipOpen
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ReservationService{
		reservations: cfg.Reservations,
		users:        cfg.Users,
		slots:        cfg.Slots,
		resources:    cfg.Resources,
		policy:       cfg.Policy,
		events:       cfg.Events,
		now:          cfg.Now,
		logger:       defaultLogger(cfg.Logger),
	}
}

func (s *ReservationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ReservationService", operation, attrs...)
}

// Book reserves one slot of a resource on a date for the session's actor.
func (s *ReservationService) Book(ctx context.Context, params BookParams) (reservation Reservation, err error) {
	if s == nil || s.reservations == nil {
		err = fmt.Errorf("ReservationService not configured")
		return
	}

	logger := s.loggerWith(ctx, "Book",
		"actor", params.Session.Identity,
		"resource", params.Resource,
		"date", params.Date,
		"slot", params.Slot,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "booking failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "reservation booked", "reservation_id", reservation.ID, "anonymous", reservation.Anonymous)
	}()

	if !params.Session.Authenticated() {
		err = ErrNotAuthenticated
		return
	}
	if vErr := s.validateBooking(params); vErr.HasErrors() {
		err = vErr
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = commit(ctx, func(ctx context.Context) error {
		snap, err := s.reservations.LoadReservations(ctx)
		if err != nil {
			return mapStoreError(err)
		}
		engine := toEngine(snap.Items)
		if availability.IsOccupied(params.Resource, params.Date, params.Slot, engine) {
			return ErrSlotUnavailable
		}

		now := s.now().UTC()
		record := persistence.Reservation{
			ID:        nextReservationID(now, snap.Items),
			User:      normalizeIdentity(params.Session.Identity),
			Resource:  params.Resource,
			Date:      params.Date,
			Slots:     []string{params.Slot},
			Anonymous: params.Anonymous,
			CreatedAt: now,
		}
		snap.Items = append(snap.Items, record)
		if _, err := s.reservations.SaveReservations(ctx, snap); err != nil {
			return err
		}
		reservation = reservationFromRecord(record)
		s.reportDoubleBookings(ctx, logger, snap.Items)
		return nil
	})
	if err != nil {
		return
	}

	s.publish(ctx, logger, events.KindBooked, reservation, params.Session.Identity)
	return
}

// Edit releases a reservation so that the actor can pick a different slot.
// It returns the released reservation and the refreshed availability of its
// resource and date.
func (s *ReservationService) Edit(ctx context.Context, session Session, id int64) (result EditResult, err error) {
	if s == nil || s.reservations == nil {
		err = fmt.Errorf("ReservationService not configured")
		return
	}

	logger := s.loggerWith(ctx, "Edit", "actor", session.Identity, "reservation_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "edit failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "reservation released for edit")
	}()

	if !session.Authenticated() {
		err = ErrNotAuthenticated
		return
	}

	// Owners are read before anything is removed so a failed read leaves the
	// reservation in place.
	owners, err := loadOwners(ctx, s.users)
	if err != nil {
		return
	}

	var released persistence.Reservation
	var remaining []persistence.Reservation

	s.mu.Lock()
	err = commit(ctx, func(ctx context.Context) error {
		var found bool
		var err error
		released, remaining, found, err = s.remove(ctx, session, id)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		return nil
	})
	s.mu.Unlock()
	if err != nil {
		return
	}

	result.Released = reservationFromRecord(released)
	result.Availability = availability.Compute(s.slots, released.Resource, released.Date, toEngine(remaining), owners)
	s.publish(ctx, logger, events.KindCancelled, result.Released, session.Identity)
	return
}

// Cancel removes a reservation. Cancelling an identifier that does not exist
// succeeds without effect.
func (s *ReservationService) Cancel(ctx context.Context, session Session, id int64) (err error) {
	if s == nil || s.reservations == nil {
		return fmt.Errorf("ReservationService not configured")
	}

	logger := s.loggerWith(ctx, "Cancel", "actor", session.Identity, "reservation_id", id)
	var found bool
	defer func() {
		switch {
		case err != nil:
			logger.ErrorContext(ctx, "cancel failed", "error", err, "error_kind", ErrorKind(err))
		case !found:
			logger.DebugContext(ctx, "cancel of unknown reservation ignored")
		default:
			logger.InfoContext(ctx, "reservation cancelled")
		}
	}()

	if !session.Authenticated() {
		err = ErrNotAuthenticated
		return
	}

	var released persistence.Reservation

	s.mu.Lock()
	err = commit(ctx, func(ctx context.Context) error {
		var err error
		released, _, found, err = s.remove(ctx, session, id)
		return err
	})
	s.mu.Unlock()
	if err != nil || !found {
		return
	}

	s.publish(ctx, logger, events.KindCancelled, reservationFromRecord(released), session.Identity)
	return
}

// Recent returns up to limit reservations in storage order. A limit of zero
// or less means RecentLimit.
func (s *ReservationService) Recent(ctx context.Context, limit int) ([]Reservation, error) {
	if s == nil || s.reservations == nil {
		return nil, fmt.Errorf("ReservationService not configured")
	}
	if limit <= 0 {
		limit = RecentLimit
	}
	snap, err := s.reservations.LoadReservations(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return reservationsFromRecords(snap.Items[:min(limit, len(snap.Items))]), nil
}

// Policy reports the ownership policy in force.
func (s *ReservationService) Policy() OwnershipPolicy {
	return s.policy
}

// remove deletes reservation id from a freshly loaded collection and saves
// it. found is false, with no write, when id does not exist.
func (s *ReservationService) remove(ctx context.Context, session Session, id int64) (released persistence.Reservation, remaining []persistence.Reservation, found bool, err error) {
	snap, err := s.reservations.LoadReservations(ctx)
	if err != nil {
		return released, nil, false, mapStoreError(err)
	}

	idx := slices.IndexFunc(snap.Items, func(r persistence.Reservation) bool { return r.ID == id })
	if idx < 0 {
		return released, snap.Items, false, nil
	}
	released = snap.Items[idx]
	if !s.mayModify(session, released) {
		return released, nil, true, ErrUnauthorized
	}

	snap.Items = slices.Delete(snap.Items, idx, idx+1)
	if _, err := s.reservations.SaveReservations(ctx, snap); err != nil {
		return released, nil, true, err
	}
	return released, snap.Items, true, nil
}

func (s *ReservationService) mayModify(session Session, r persistence.Reservation) bool {
	if s.policy != OwnershipOwner {
		return true
	}
	if normalizeIdentity(r.User) == normalizeIdentity(session.Identity) {
		return true
	}
	return session.Role.Can(CapManageAnyReservation)
}

func (s *ReservationService) validateBooking(params BookParams) *ValidationError {
	vErr := &ValidationError{}
	if _, ok := s.resources.Lookup(params.Resource); !ok {
		vErr.add("resource", fmt.Sprintf("unknown resource %q", params.Resource))
	}
	vErr.merge(validateDate(params.Date))
	if !s.slots.Contains(params.Slot) {
		vErr.add("slot", fmt.Sprintf("slot %q is not in the catalog", params.Slot))
	}
	return vErr
}

func (s *ReservationService) publish(ctx context.Context, logger *slog.Logger, kind events.Kind, r Reservation, actor string) {
	if s.events == nil {
		return
	}
	evt := events.Event{
		Kind:          kind,
		ReservationID: r.ID,
		Resource:      r.Resource,
		Date:          r.Date,
		Slots:         slices.Clone(r.Slots),
		Actor:         actor,
		At:            s.now().UTC(),
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		logger.WarnContext(ctx, "publish reservation event", "error", err, "kind", kind)
	}
}

func (s *ReservationService) reportDoubleBookings(ctx context.Context, logger *slog.Logger, items []persistence.Reservation) {
	for _, d := range availability.DoubleBookings(toEngine(items)) {
		logger.ErrorContext(ctx, "slot held by more than one reservation",
			"resource", d.Resource,
			"date", d.Date,
			"slot", d.Slot,
			"reservation_ids", d.ReservationIDs,
		)
	}
}

// nextReservationID is the current time in milliseconds unless that would not
// exceed every existing identifier.
func nextReservationID(now time.Time, existing []persistence.Reservation) int64 {
	id := now.UnixMilli()
	for _, r := range existing {
		if r.ID >= id {
			id = r.ID + 1
		}
	}
	return id
}

// validateDate accepts calendar dates in YYYY-MM-DD form.
func validateDate(date string) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(date) == "" {
		vErr.add("date", "date is required")
		return vErr
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		vErr.add("date", "date must be formatted YYYY-MM-DD")
	}
	return vErr
}

// loadOwners reads the users collection once and returns a resolver over it.
func loadOwners(ctx context.Context, users UserStore) (availability.OwnerResolver, error) {
	if users == nil {
		return nil, nil
	}
	snap, err := users.LoadUsers(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	refs := make(map[string]availability.OwnerRef, len(snap.Items))
	for _, u := range snap.Items {
		refs[normalizeIdentity(u.Email)] = availability.OwnerRef{Identity: u.Email, Name: u.Name}
	}
	return func(identity string) (availability.OwnerRef, bool) {
		ref, ok := refs[normalizeIdentity(identity)]
		return ref, ok
	}, nil
}
