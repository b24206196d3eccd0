package testfixtures

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/example/lab-reservations/internal/persistence"
	"github.com/example/lab-reservations/internal/persistence/memory"
)

// QuickHash hashes with bcrypt at its minimum cost. Password verification
// accepts bcrypt hashes, so seeded accounts log in normally while tests skip
// the cost of argon2id.
func QuickHash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// NewSeededStore wraps backend in a Store that writes the demonstration data
// on first load, dated from now.
func NewSeededStore(tb testing.TB, backend persistence.KeyValueStore, now func() time.Time) *persistence.Store {
	tb.Helper()
	if now == nil {
		now = NewClock(time.Time{}).Now
	}
	return persistence.NewStore(backend,
		persistence.WithSeeder(persistence.DemoSeed{Hash: QuickHash}),
		persistence.WithClock(now),
		persistence.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

// NewSeededMemoryStore is NewSeededStore over a fresh in-memory backend.
func NewSeededMemoryStore(tb testing.TB, now func() time.Time) *persistence.Store {
	tb.Helper()
	return NewSeededStore(tb, memory.Open(), now)
}
