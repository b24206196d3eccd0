// Package sqlite stores persistence documents in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/example/lab-reservations/internal/persistence"
	"github.com/example/lab-reservations/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded schema migrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(fmt.Sprintf("sqlite: embedded migrations: %v", err))
	}
	return sub
}

// Storage implements persistence.KeyValueStore on a documents table.
type Storage struct {
	db     *sql.DB
	retry  RetryConfig
	logger *slog.Logger
	now    func() time.Time
}

// Option configures Storage.
type Option func(*Storage)

// WithLogger sets the logger used for migrations and retries.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Storage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time written to updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRetryConfig overrides the busy-database retry policy.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(s *Storage) { s.retry = cfg }
}

// Open connects to the database described by cfg and applies pending migrations.
func Open(ctx context.Context, cfg migration.SQLiteConfig, opts ...Option) (*Storage, error) {
	db, err := migration.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	s := &Storage{
		db:     db,
		retry:  DefaultRetryConfig(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate(ctx context.Context) error {
	manager := migration.NewManager(migration.NewScanner(), migration.NewSQLiteExecutor(s.db), Migrations(), s.logger)
	if err := manager.RunMigrations(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get implements persistence.KeyValueStore.
func (s *Storage) Get(ctx context.Context, key string) (persistence.Record, error) {
	const query = `SELECT revision, payload, updated_at FROM documents WHERE key = ?`

	var (
		record    = persistence.Record{Key: key}
		payload   string
		updatedAt string
	)
	err := s.retry.do(ctx, func() error {
		return s.db.QueryRowContext(ctx, query, key).Scan(&record.Revision, &payload, &updatedAt)
	})
	if errors.Is(err, persistence.ErrNotFound) {
		return persistence.Record{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.Record{}, fmt.Errorf("sqlite: get %s: %w", key, err)
	}

	record.Payload = []byte(payload)
	if record.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return persistence.Record{}, fmt.Errorf("%w: %s has invalid updated_at %q", persistence.ErrDataCorruption, key, updatedAt)
	}
	return record, nil
}

// Put implements persistence.KeyValueStore. Every path starts with a write so
// that SQLite takes the write lock up front and busy_timeout applies.
func (s *Storage) Put(ctx context.Context, key string, expectedRevision int64, payload []byte) (int64, error) {
	next := expectedRevision + 1
	updatedAt := s.now().UTC().Format(time.RFC3339Nano)

	err := s.retry.do(ctx, func() error {
		return inTx(ctx, s.db, func(tx *sql.Tx) error {
			var (
				result sql.Result
				err    error
			)
			if expectedRevision == 0 {
				result, err = tx.ExecContext(ctx,
					`INSERT INTO documents (key, revision, payload, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT(key) DO NOTHING`,
					key, next, string(payload), updatedAt)
			} else {
				result, err = tx.ExecContext(ctx,
					`UPDATE documents SET revision = ?, payload = ?, updated_at = ? WHERE key = ? AND revision = ?`,
					next, string(payload), updatedAt, key, expectedRevision)
			}
			if err != nil {
				return err
			}

			affected, err := result.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				return fmt.Errorf("%w: %s is not at revision %d", persistence.ErrRevisionConflict, key, expectedRevision)
			}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, errUniqueViolation) {
			err = fmt.Errorf("%w: %v", persistence.ErrRevisionConflict, err)
		}
		if !errors.Is(err, persistence.ErrRevisionConflict) {
			s.logger.WarnContext(ctx, "document write failed", "key", key, "expected_revision", expectedRevision, "error", err)
		}
		return 0, fmt.Errorf("sqlite: put %s: %w", key, err)
	}
	return next, nil
}
