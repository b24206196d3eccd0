package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/lab-reservations/internal/persistence/sqlite"
	"github.com/example/lab-reservations/internal/persistence/sqlite/migration"
)

// NewSQLiteBackend opens a migrated SQLite document store on a temporary file
// and closes it when the test ends.
func NewSQLiteBackend(tb testing.TB) *sqlite.Storage {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "labres.db")
	storage, err := sqlite.Open(context.Background(), migration.TempFileTestSQLiteConfig(path),
		sqlite.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		tb.Fatalf("failed to open sqlite storage: %v", err)
	}
	tb.Cleanup(func() { _ = storage.Close() })
	return storage
}
