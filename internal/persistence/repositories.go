package persistence

import (
	"context"
	"time"
)

// Document keys for the two persisted collections.
const (
	UsersKey        = "users"
	ReservationsKey = "reservations"
)

// Record is a versioned document held by a KeyValueStore.
type Record struct {
	Key       string
	Revision  int64
	Payload   []byte
	UpdatedAt time.Time
}

// KeyValueStore is the contract every storage backend implements.
//
// Get returns ErrNotFound for an absent key. Put replaces the payload only if
// the stored revision equals expectedRevision (zero means the key must not
// exist yet) and returns the new revision; otherwise it fails with
// ErrRevisionConflict and leaves the record untouched.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (Record, error)
	Put(ctx context.Context, key string, expectedRevision int64, payload []byte) (int64, error)
	Close() error
}
