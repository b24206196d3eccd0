package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/lab-reservations/internal/application"
)

var allKeys = []string{
	"LABRES_ENV_FILE",
	"LABRES_HTTP_PORT",
	"LABRES_STORE_DRIVER",
	"LABRES_SQLITE_PATH",
	"LABRES_DATABASE_URL",
	"LABRES_SESSION_SECRET",
	"LABRES_SESSION_TTL",
	"LABRES_SECURE_COOKIE",
	"LABRES_SLOT_START",
	"LABRES_SLOT_END",
	"LABRES_SLOT_INTERVAL",
	"LABRES_RESOURCES",
	"LABRES_OWNERSHIP_POLICY",
	"LABRES_REFRESH_INTERVAL",
	"LABRES_NATS_URL",
	"LABRES_NATS_EMBEDDED_PORT",
	"LABRES_LOG_LEVEL",
	"LABRES_CORS_ORIGINS",
}

// clearEnv unsets every variable the loader reads and restores them when the
// test ends.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

const testSecret = "0123456789abcdef"

func TestLoader_ParseEnvironment(t *testing.T) {
	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LABRES_SESSION_SECRET", testSecret)

		cfg, err := FromEnvironment()
		if err != nil {
			t.Fatalf("FromEnvironment returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 || cfg.StoreDriver != DriverSQLite || cfg.SQLitePath != "data/labres.db" {
			t.Fatalf("unexpected defaults: %+v", cfg)
		}
		if cfg.SessionTTL != 24*time.Hour || !cfg.SecureCookie {
			t.Fatalf("unexpected session defaults: %+v", cfg)
		}
		if cfg.Slots == nil || cfg.Slots.Len() != 18 {
			t.Fatalf("expected 18 default slots")
		}
		if ids := cfg.Resources.IDs(); strings.Join(ids, ",") != "lab1,lab2,lab3" {
			t.Fatalf("unexpected resources %v", ids)
		}
		if cfg.OwnershipPolicy != application.OwnershipOpen || cfg.RefreshInterval != 30*time.Second {
			t.Fatalf("unexpected policy defaults: %+v", cfg)
		}
		if cfg.LogLevel != slog.LevelInfo || cfg.NATSEnabled() {
			t.Fatalf("unexpected ambient defaults: %+v", cfg)
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LABRES_STORE_DRIVER", "postgres")

		_, err := FromEnvironment()
		if err == nil {
			t.Fatalf("expected error when required values are missing")
		}
		expected := "required environment variables are not set: LABRES_DATABASE_URL, LABRES_SESSION_SECRET"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("collects every invalid value", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LABRES_SESSION_SECRET", "short")
		t.Setenv("LABRES_HTTP_PORT", "-1")
		t.Setenv("LABRES_STORE_DRIVER", "redis")
		t.Setenv("LABRES_SLOT_INTERVAL", "0s")
		t.Setenv("LABRES_RESOURCES", "lab1:ten")
		t.Setenv("LABRES_OWNERSHIP_POLICY", "admins")
		t.Setenv("LABRES_LOG_LEVEL", "loud")

		_, err := FromEnvironment()
		if err == nil {
			t.Fatalf("expected error")
		}
		for _, key := range []string{"LABRES_SESSION_SECRET", "LABRES_HTTP_PORT", "LABRES_STORE_DRIVER", "LABRES_SLOT_INTERVAL", "LABRES_RESOURCES", "LABRES_OWNERSHIP_POLICY", "LABRES_LOG_LEVEL"} {
			if !strings.Contains(err.Error(), key) {
				t.Errorf("expected %s in %q", key, err.Error())
			}
		}
	})

	t.Run("rejects a slot window that ends before it starts", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LABRES_SESSION_SECRET", testSecret)
		t.Setenv("LABRES_SLOT_START", "17:00")
		t.Setenv("LABRES_SLOT_END", "08:00")

		if _, err := FromEnvironment(); err == nil || !strings.Contains(err.Error(), "LABRES_SLOT_START") {
			t.Fatalf("expected slot window error, got %v", err)
		}
	})

	t.Run("parses explicit values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LABRES_SESSION_SECRET", testSecret)
		t.Setenv("LABRES_HTTP_PORT", "9090")
		t.Setenv("LABRES_STORE_DRIVER", "Memory")
		t.Setenv("LABRES_SESSION_TTL", "2h")
		t.Setenv("LABRES_SECURE_COOKIE", "false")
		t.Setenv("LABRES_SLOT_START", "09:00")
		t.Setenv("LABRES_SLOT_END", "12:00")
		t.Setenv("LABRES_SLOT_INTERVAL", "1h")
		t.Setenv("LABRES_RESOURCES", "chem:4")
		t.Setenv("LABRES_OWNERSHIP_POLICY", "owner")
		t.Setenv("LABRES_REFRESH_INTERVAL", "5s")
		t.Setenv("LABRES_NATS_EMBEDDED_PORT", "-1")
		t.Setenv("LABRES_LOG_LEVEL", "debug")
		t.Setenv("LABRES_CORS_ORIGINS", "http://a.example, http://b.example")

		cfg, err := FromEnvironment()
		if err != nil {
			t.Fatalf("FromEnvironment returned error: %v", err)
		}

		if cfg.HTTPPort != 9090 || cfg.StoreDriver != DriverMemory || cfg.SessionTTL != 2*time.Hour || cfg.SecureCookie {
			t.Fatalf("unexpected config: %+v", cfg)
		}
		if got := strings.Join(cfg.Slots.Labels(), ","); got != "09:00,10:00,11:00" {
			t.Fatalf("unexpected slots %s", got)
		}
		if r, ok := cfg.Resources.Lookup("chem"); !ok || r.Capacity != 4 {
			t.Fatalf("unexpected resources %+v", cfg.Resources.List())
		}
		if cfg.OwnershipPolicy != application.OwnershipOwner || cfg.RefreshInterval != 5*time.Second {
			t.Fatalf("unexpected policy config: %+v", cfg)
		}
		if !cfg.NATSEnabled() || cfg.LogLevel != slog.LevelDebug {
			t.Fatalf("unexpected ambient config: %+v", cfg)
		}
		if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.example" {
			t.Fatalf("unexpected origins %v", cfg.CORSOrigins)
		}
	})
}

func TestLoad_ReadsEnvFile(t *testing.T) {
	t.Run("file values fill unset variables", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "labres.env")
		content := "LABRES_SESSION_SECRET=from-the-env-file-123\nLABRES_HTTP_PORT=7070\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write env file: %v", err)
		}
		t.Setenv("LABRES_ENV_FILE", path)
		t.Setenv("LABRES_HTTP_PORT", "6060")
		// godotenv sets variables directly; make sure they do not leak into
		// later tests.
		t.Cleanup(func() { _ = os.Unsetenv("LABRES_SESSION_SECRET") })

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.SessionSecret != "from-the-env-file-123" {
			t.Fatalf("expected secret from file, got %q", cfg.SessionSecret)
		}
		if cfg.HTTPPort != 6060 {
			t.Fatalf("environment should win over the file, got %d", cfg.HTTPPort)
		}
	})

	t.Run("missing default file is ignored", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LABRES_ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
		t.Setenv("LABRES_SESSION_SECRET", testSecret)

		if _, err := Load(); err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
	})
}
