package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestContextLogger(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
		ctx := ContextWithLogger(context.Background(), logger)
		if FromContext(ctx) != logger {
			t.Fatalf("expected the attached logger")
		}
		if FromContext(context.Background()) != nil {
			t.Fatalf("expected nil from a bare context")
		}
		if ContextWithLogger(ctx, nil) != ctx {
			t.Fatalf("attaching nil should leave the context unchanged")
		}
	})

	t.Run("fallback order", func(t *testing.T) {
		t.Parallel()

		fallback := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
		attached := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

		if got := FromContextOr(context.Background(), fallback); got != fallback {
			t.Fatalf("expected fallback logger")
		}
		if got := FromContextOr(ContextWithLogger(context.Background(), attached), fallback); got != attached {
			t.Fatalf("expected context logger to win")
		}
		if got := FromContextOr(context.Background(), nil); got == nil {
			t.Fatalf("expected slog.Default")
		}
	})

	t.Run("with adds attributes to later records", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		ctx := ContextWithLogger(context.Background(), New(&buf, slog.LevelInfo))
		ctx = With(ctx, "actor", "alice@dlsu.edu.ph")
		FromContext(ctx).Info("booked")

		var record map[string]any
		if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
			t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
		}
		if record["actor"] != "alice@dlsu.edu.ph" || record["msg"] != "booked" {
			t.Fatalf("unexpected record %v", record)
		}
		if bare := With(context.Background(), "actor", "x"); FromContext(bare) != nil {
			t.Fatalf("With should not invent a logger")
		}
	})

	t.Run("level filters records", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := New(&buf, slog.LevelWarn)
		logger.Info("hidden")
		if buf.Len() != 0 {
			t.Fatalf("info record should be filtered, got %q", buf.String())
		}
	})
}
