package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteExecutor implements Executor for SQLite databases.
type SQLiteExecutor struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteExecutor creates a new SQLite migration executor.
func NewSQLiteExecutor(db *sql.DB) *SQLiteExecutor {
	return &SQLiteExecutor{db: db, now: time.Now}
}

// ExecuteMigration runs every statement of m inside one transaction.
func (e *SQLiteExecutor) ExecuteMigration(ctx context.Context, m Migration) (err error) {
	statements := splitStatements(m.SQL)
	if len(statements) == 0 {
		return stepFailed(m.Version, m.FilePath, "parse SQL", fmt.Errorf("%w: no SQL statements found", ErrInvalidMigrationFile))
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return stepFailed(m.Version, "", "begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, stmt := range statements {
		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			return stepFailed(m.Version, "", fmt.Sprintf("execute statement %d", i+1), execErr)
		}
	}
	if err = tx.Commit(); err != nil {
		return stepFailed(m.Version, "", "commit transaction", err)
	}
	return nil
}

// InitializeVersionTable creates schema_migrations if it doesn't exist.
func (e *SQLiteExecutor) InitializeVersionTable(ctx context.Context) error {
	const createTableSQL = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL,
			checksum TEXT NOT NULL DEFAULT '',
			execution_time_ms INTEGER NOT NULL DEFAULT 0
		)`
	if _, err := e.db.ExecContext(ctx, createTableSQL); err != nil {
		return stepFailed("", "", "create schema_migrations table", err)
	}
	return nil
}

// RecordMigration stores m as applied.
func (e *SQLiteExecutor) RecordMigration(ctx context.Context, m Migration, executionTime time.Duration) error {
	const insertSQL = `INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES (?, ?, ?, ?)`
	appliedAt := e.now().UTC().Format(time.RFC3339Nano)
	if _, err := e.db.ExecContext(ctx, insertSQL, m.Version, appliedAt, m.Checksum, executionTime.Milliseconds()); err != nil {
		return stepFailed(m.Version, "", "record migration", err)
	}
	return nil
}

// GetAppliedVersions returns all applied migrations.
func (e *SQLiteExecutor) GetAppliedVersions(ctx context.Context) ([]AppliedMigration, error) {
	const querySQL = `SELECT version, applied_at, checksum, execution_time_ms FROM schema_migrations`
	rows, err := e.db.QueryContext(ctx, querySQL)
	if err != nil {
		return nil, stepFailed("", "", "get applied versions", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			a         AppliedMigration
			appliedAt string
			elapsedMs int64
		)
		if err := rows.Scan(&a.Version, &appliedAt, &a.Checksum, &elapsedMs); err != nil {
			return nil, stepFailed("", "", "scan applied migration", err)
		}
		if a.AppliedAt, err = time.Parse(time.RFC3339Nano, appliedAt); err != nil {
			return nil, stepFailed(a.Version, "", "parse applied_at", fmt.Errorf("%w: %v", ErrVersionTableCorrupt, err))
		}
		a.ExecutionTime = time.Duration(elapsedMs) * time.Millisecond
		applied = append(applied, a)
	}
	if err := rows.Err(); err != nil {
		return nil, stepFailed("", "", "iterate applied migrations", err)
	}
	return applied, nil
}
