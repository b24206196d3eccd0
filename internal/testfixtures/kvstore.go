package testfixtures

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/example/lab-reservations/internal/persistence"
)

// RunKeyValueStoreContract exercises the behaviour every persistence backend
// must share. open is called once per subtest and must return an empty store.
func RunKeyValueStoreContract(t *testing.T, open func(t *testing.T) persistence.KeyValueStore) {
	t.Helper()

	ctx := context.Background()

	t.Run("absent key is not found", func(t *testing.T) {
		store := open(t)
		if _, err := store.Get(ctx, persistence.UsersKey); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("create then update by revision", func(t *testing.T) {
		store := open(t)

		rev, err := store.Put(ctx, persistence.UsersKey, 0, []byte(`{"v":1}`))
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if rev != 1 {
			t.Fatalf("expected revision 1 after create, got %d", rev)
		}

		rev, err = store.Put(ctx, persistence.UsersKey, rev, []byte(`{"v":2}`))
		if err != nil {
			t.Fatalf("update failed: %v", err)
		}
		if rev != 2 {
			t.Fatalf("expected revision 2 after update, got %d", rev)
		}

		record, err := store.Get(ctx, persistence.UsersKey)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if record.Key != persistence.UsersKey || record.Revision != 2 || string(record.Payload) != `{"v":2}` {
			t.Fatalf("unexpected record: key=%q revision=%d payload=%s", record.Key, record.Revision, record.Payload)
		}
		if record.UpdatedAt.IsZero() {
			t.Fatalf("expected UpdatedAt to be set")
		}
	})

	t.Run("stale revisions are rejected", func(t *testing.T) {
		store := open(t)

		if _, err := store.Put(ctx, persistence.ReservationsKey, 5, []byte("[]")); !errors.Is(err, persistence.ErrRevisionConflict) {
			t.Fatalf("update of absent key should conflict, got %v", err)
		}
		if _, err := store.Put(ctx, persistence.ReservationsKey, 0, []byte("[]")); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if _, err := store.Put(ctx, persistence.ReservationsKey, 0, []byte("[1]")); !errors.Is(err, persistence.ErrRevisionConflict) {
			t.Fatalf("second create should conflict, got %v", err)
		}
		if _, err := store.Put(ctx, persistence.ReservationsKey, 7, []byte("[1]")); !errors.Is(err, persistence.ErrRevisionConflict) {
			t.Fatalf("wrong revision should conflict, got %v", err)
		}

		record, err := store.Get(ctx, persistence.ReservationsKey)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if string(record.Payload) != "[]" || record.Revision != 1 {
			t.Fatalf("rejected writes must not change the record: revision=%d payload=%s", record.Revision, record.Payload)
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		store := open(t)

		if _, err := store.Put(ctx, persistence.UsersKey, 0, []byte("users")); err != nil {
			t.Fatalf("create users failed: %v", err)
		}
		if _, err := store.Put(ctx, persistence.ReservationsKey, 0, []byte("reservations")); err != nil {
			t.Fatalf("create reservations failed: %v", err)
		}
		record, err := store.Get(ctx, persistence.UsersKey)
		if err != nil || string(record.Payload) != "users" {
			t.Fatalf("unexpected users record %s (err=%v)", record.Payload, err)
		}
	})

	t.Run("concurrent writers at the same revision admit exactly one", func(t *testing.T) {
		store := open(t)
		if _, err := store.Put(ctx, persistence.UsersKey, 0, []byte("base")); err != nil {
			t.Fatalf("create failed: %v", err)
		}

		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			failures  []error
		)
		for i := range writers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.Put(ctx, persistence.UsersKey, 1, []byte(fmt.Sprintf("writer-%d", i)))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case !errors.Is(err, persistence.ErrRevisionConflict):
					failures = append(failures, err)
				}
			}(i)
		}
		wg.Wait()

		if len(failures) > 0 {
			t.Fatalf("unexpected errors: %v", failures)
		}
		if successes != 1 {
			t.Fatalf("expected exactly one successful writer, got %d", successes)
		}
	})
}
