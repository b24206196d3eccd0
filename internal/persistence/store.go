package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/lab-reservations/internal/logging"
)

// SchemaVersion is written into every document envelope.
const SchemaVersion = 1

type envelope struct {
	SchemaVersion int             `json:"schema_version"`
	SavedAt       time.Time       `json:"saved_at"`
	Items         json.RawMessage `json:"items"`
}

// Seeder produces the collections written on the first load of an empty store.
type Seeder interface {
	SeedUsers(now time.Time) ([]User, error)
	SeedReservations(now time.Time) ([]Reservation, error)
}

// Store reads and writes the users and reservations collections as whole
// documents on top of a KeyValueStore.
type Store struct {
	backend KeyValueStore
	seeder  Seeder
	now     func() time.Time
	logger  *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithSeeder seeds absent collections on first load.
func WithSeeder(seeder Seeder) StoreOption {
	return func(s *Store) { s.seeder = seeder }
}

// WithClock overrides the time source used for envelopes and seed data.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the fallback logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore wraps backend.
func NewStore(backend KeyValueStore, opts ...StoreOption) *Store {
	s := &Store{backend: backend, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the backend.
func (s *Store) Close() error {
	if s == nil || s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

// LoadUsers returns the users collection, seeding it if it was never written.
func (s *Store) LoadUsers(ctx context.Context) (UserSnapshot, error) {
	var seed func() ([]User, error)
	if s.seeder != nil {
		seed = func() ([]User, error) { return s.seeder.SeedUsers(s.now()) }
	}
	snap, err := load(ctx, s, UsersKey, seed, validateUser)
	if err != nil {
		return UserSnapshot{}, err
	}
	snap.Items = cloneUsers(snap.Items)
	return snap, nil
}

// SaveUsers replaces the users collection if it is still at snap.Revision.
func (s *Store) SaveUsers(ctx context.Context, snap UserSnapshot) (int64, error) {
	return save(ctx, s, UsersKey, snap)
}

// LoadReservations returns the reservations collection, seeding it if it was
// never written.
func (s *Store) LoadReservations(ctx context.Context) (ReservationSnapshot, error) {
	var seed func() ([]Reservation, error)
	if s.seeder != nil {
		seed = func() ([]Reservation, error) { return s.seeder.SeedReservations(s.now()) }
	}
	snap, err := load(ctx, s, ReservationsKey, seed, validateReservation)
	if err != nil {
		return ReservationSnapshot{}, err
	}
	snap.Items = cloneReservations(snap.Items)
	return snap, nil
}

// SaveReservations replaces the reservations collection if it is still at
// snap.Revision.
func (s *Store) SaveReservations(ctx context.Context, snap ReservationSnapshot) (int64, error) {
	return save(ctx, s, ReservationsKey, snap)
}

func (s *Store) loggerFor(ctx context.Context) *slog.Logger {
	return logging.FromContextOr(ctx, s.logger)
}

func load[T any](ctx context.Context, s *Store, key string, seed func() ([]T, error), validate func(int, T) error) (Snapshot[T], error) {
	if s == nil || s.backend == nil {
		return Snapshot[T]{}, errors.New("persistence: store not configured")
	}

	record, err := s.backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return seedCollection(ctx, s, key, seed, validate)
	}
	if err != nil {
		return Snapshot[T]{}, fmt.Errorf("load %s: %w", key, err)
	}

	items, err := decode(record.Payload, validate)
	if err != nil {
		return Snapshot[T]{}, fmt.Errorf("load %s at revision %d: %w", key, record.Revision, err)
	}
	return Snapshot[T]{Revision: record.Revision, Items: items}, nil
}

func seedCollection[T any](ctx context.Context, s *Store, key string, seed func() ([]T, error), validate func(int, T) error) (Snapshot[T], error) {
	if seed == nil {
		return Snapshot[T]{}, nil
	}

	items, err := seed()
	if err != nil {
		return Snapshot[T]{}, fmt.Errorf("seed %s: %w", key, err)
	}
	payload, err := encode(items, s.now())
	if err != nil {
		return Snapshot[T]{}, fmt.Errorf("seed %s: %w", key, err)
	}

	revision, err := s.backend.Put(ctx, key, 0, payload)
	if errors.Is(err, ErrRevisionConflict) {
		// Another writer seeded first; use what it stored.
		record, getErr := s.backend.Get(ctx, key)
		if getErr != nil {
			return Snapshot[T]{}, fmt.Errorf("reload seeded %s: %w", key, getErr)
		}
		stored, decErr := decode(record.Payload, validate)
		if decErr != nil {
			return Snapshot[T]{}, fmt.Errorf("reload seeded %s: %w", key, decErr)
		}
		return Snapshot[T]{Revision: record.Revision, Items: stored}, nil
	}
	if err != nil {
		return Snapshot[T]{}, fmt.Errorf("seed %s: %w", key, err)
	}

	s.loggerFor(ctx).InfoContext(ctx, "seeded demonstration data", "collection", key, "count", len(items), "revision", revision)
	return Snapshot[T]{Revision: revision, Items: items}, nil
}

func save[T any](ctx context.Context, s *Store, key string, snap Snapshot[T]) (int64, error) {
	if s == nil || s.backend == nil {
		return 0, errors.New("persistence: store not configured")
	}
	payload, err := encode(snap.Items, s.now())
	if err != nil {
		return 0, fmt.Errorf("save %s: %w", key, err)
	}
	revision, err := s.backend.Put(ctx, key, snap.Revision, payload)
	if err != nil {
		return 0, fmt.Errorf("save %s: %w", key, err)
	}
	return revision, nil
}

func encode[T any](items []T, now time.Time) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{SchemaVersion: SchemaVersion, SavedAt: now.UTC(), Items: raw})
}

// decode accepts the versioned envelope as well as a bare JSON array, the
// unversioned layout written before envelopes existed.
func decode[T any](payload []byte, validate func(int, T) error) ([]T, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrDataCorruption)
	}

	raw := json.RawMessage(trimmed)
	if trimmed[0] != '[' {
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDataCorruption, err)
		}
		if env.SchemaVersion != SchemaVersion {
			return nil, fmt.Errorf("%w: unsupported schema version %d", ErrDataCorruption, env.SchemaVersion)
		}
		raw = env.Items
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataCorruption, err)
	}
	if items == nil {
		items = []T{}
	}
	for i, item := range items {
		if err := validate(i, item); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func validateUser(i int, u User) error {
	if u.Email == "" {
		return fmt.Errorf("%w: user %d has no email", ErrDataCorruption, i)
	}
	return nil
}

func validateReservation(i int, r Reservation) error {
	if r.ID == 0 || r.User == "" || r.Resource == "" || r.Date == "" || len(r.Slots) == 0 {
		return fmt.Errorf("%w: reservation %d is incomplete", ErrDataCorruption, i)
	}
	return nil
}
