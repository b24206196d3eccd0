package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/lab-reservations/internal/persistence"
)

// Driver failures classifyError recognises. The original error stays wrapped.
var (
	errUniqueViolation = errors.New("duplicate record")
	errDatabaseBusy    = errors.New("database busy")
)

// The driver reports constraint and lock failures only through message text.
var (
	uniqueMessages = []string{"UNIQUE constraint failed", "PRIMARY KEY constraint failed"}
	busyMessages   = []string{"database is locked", "database table is locked", "SQLITE_BUSY", "database is busy"}
)

// classifyError tags driver errors so callers can use errors.Is.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", persistence.ErrNotFound, err)
	}
	msg := err.Error()
	if mentionsAny(msg, uniqueMessages) {
		return fmt.Errorf("%w: %w", errUniqueViolation, err)
	}
	if mentionsAny(msg, busyMessages) {
		return fmt.Errorf("%w: %w", errDatabaseBusy, err)
	}
	return err
}

func mentionsAny(msg string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// RetryConfig is the backoff applied while the database reports it is busy.
// busy_timeout already waits inside the driver; this covers lock upgrades
// that SQLite refuses without waiting.
type RetryConfig struct {
	Retries      int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns the retry policy used for busy databases.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Retries:      3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
	}
}

// do runs fn, repeating it with backoff while it fails with a busy error.
// Errors are returned classified.
func (c RetryConfig) do(ctx context.Context, fn func() error) error {
	delay := c.InitialDelay
	var err error
	for attempt := 0; ; attempt++ {
		if err = classifyError(fn()); !errors.Is(err, errDatabaseBusy) {
			return err
		}
		if attempt == c.Retries {
			return fmt.Errorf("still busy after %d retries: %w", c.Retries, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = min(time.Duration(float64(delay)*c.Multiplier), c.MaxDelay)
	}
}

// inTx runs fn in a transaction, committing when it returns nil and rolling
// back otherwise, including on panic.
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
