// Package migration applies versioned SQL files to a SQLite database.
//
// Migration files are named {version}_{description}.sql (for example
// "001_create_documents.sql") and are read from an fs.FS, normally one
// embedded into the binary. Applied versions are tracked in a
// schema_migrations table together with the checksum of the file that was
// applied, so an edited migration is reported instead of silently ignored.
//
// Example usage:
//
//	manager := migration.NewManager(migration.NewScanner(), migration.NewSQLiteExecutor(db), files, logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
