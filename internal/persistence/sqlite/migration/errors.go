package migration

import (
	"errors"
	"fmt"
)

var (
	ErrMigrationFailed      = errors.New("migration execution failed")
	ErrInvalidMigrationFile = errors.New("invalid migration file format")
	ErrInvalidVersion       = errors.New("invalid migration version")
	ErrDuplicateVersion     = errors.New("duplicate migration version")
	// ErrVersionConflict reports a gap in the file sequence or an applied
	// version with no file.
	ErrVersionConflict = errors.New("migration version conflict")
	// ErrChecksumMismatch reports an applied file that was edited afterwards.
	ErrChecksumMismatch    = errors.New("migration checksum mismatch")
	ErrVersionTableCorrupt = errors.New("schema_migrations table is corrupted")
)

// StepError reports which step of the migration run failed, and for which
// version when one applies.
type StepError struct {
	Version string
	Source  string
	Step    string
	Err     error
}

func (e *StepError) Error() string {
	subject := "migrations"
	switch {
	case e.Version != "" && e.Source != "":
		subject = fmt.Sprintf("migration %s (%s)", e.Version, e.Source)
	case e.Version != "":
		subject = "migration " + e.Version
	case e.Source != "":
		subject = e.Source
	}
	return fmt.Sprintf("%s: %s: %v", subject, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepFailed(version, source, step string, err error) *StepError {
	return &StepError{Version: version, Source: source, Step: step, Err: err}
}
