package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/lab-reservations/internal/application"
	"github.com/example/lab-reservations/internal/catalog"
)

// Store drivers accepted by LABRES_STORE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

const minSecretLength = 16

// Config captures environment driven configuration values for the reservation service.
type Config struct {
	HTTPPort         int
	StoreDriver      string
	SQLitePath       string
	DatabaseURL      string
	SessionSecret    string
	SessionTTL       time.Duration
	SecureCookie     bool
	SlotWindow       catalog.Window
	Slots            *catalog.Slots
	Resources        *catalog.Resources
	OwnershipPolicy  application.OwnershipPolicy
	RefreshInterval  time.Duration
	NATSURL          string
	NATSEmbeddedPort int
	LogLevel         slog.Level
	CORSOrigins      []string
}

// NATSEnabled reports whether reservation events are relayed through NATS.
func (c Config) NATSEnabled() bool {
	return c.NATSURL != "" || c.NATSEmbeddedPort != 0
}

// Load reads the optional env file named by LABRES_ENV_FILE (default ".env")
// and then parses configuration from the process environment. Variables
// already set in the environment win over the file.
//
// Every missing or invalid variable is collected and reported in one error.
func Load() (Config, error) {
	envFile := strings.TrimSpace(os.Getenv("LABRES_ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("read env file %s: %w", envFile, err)
	}
	return FromEnvironment()
}

// FromEnvironment parses configuration from the process environment only.
func FromEnvironment() (Config, error) {
	cfg := Config{
		HTTPPort:        8080,
		StoreDriver:     DriverSQLite,
		SQLitePath:      "data/labres.db",
		SessionTTL:      24 * time.Hour,
		SecureCookie:    true,
		SlotWindow:      catalog.DefaultWindow(),
		OwnershipPolicy: application.OwnershipOpen,
		RefreshInterval: application.DefaultRefreshInterval,
		LogLevel:        slog.LevelInfo,
	}

	var p parser

	p.intVar("LABRES_HTTP_PORT", &cfg.HTTPPort, func(v int) bool { return v > 0 && v < 65536 })

	if driver := p.get("LABRES_STORE_DRIVER"); driver != "" {
		switch strings.ToLower(driver) {
		case DriverSQLite, DriverMemory, DriverPostgres:
			cfg.StoreDriver = strings.ToLower(driver)
		default:
			p.invalid = append(p.invalid, "LABRES_STORE_DRIVER")
		}
	}
	if path := p.get("LABRES_SQLITE_PATH"); path != "" {
		cfg.SQLitePath = path
	}
	cfg.DatabaseURL = p.get("LABRES_DATABASE_URL")
	if cfg.StoreDriver == DriverPostgres && cfg.DatabaseURL == "" {
		p.missing = append(p.missing, "LABRES_DATABASE_URL")
	}

	switch secret := p.get("LABRES_SESSION_SECRET"); {
	case secret == "":
		p.missing = append(p.missing, "LABRES_SESSION_SECRET")
	case len(secret) < minSecretLength:
		p.invalid = append(p.invalid, "LABRES_SESSION_SECRET")
	default:
		cfg.SessionSecret = secret
	}
	p.durationVar("LABRES_SESSION_TTL", &cfg.SessionTTL)
	p.boolVar("LABRES_SECURE_COOKIE", &cfg.SecureCookie)

	if start := p.get("LABRES_SLOT_START"); start != "" {
		cfg.SlotWindow.Start = start
	}
	if end := p.get("LABRES_SLOT_END"); end != "" {
		cfg.SlotWindow.End = end
	}
	p.durationVar("LABRES_SLOT_INTERVAL", &cfg.SlotWindow.Interval)
	if slots, err := catalog.New(cfg.SlotWindow); err != nil {
		p.invalid = append(p.invalid, "LABRES_SLOT_START/LABRES_SLOT_END/LABRES_SLOT_INTERVAL")
	} else {
		cfg.Slots = slots
	}

	resources := catalog.DefaultResourceList
	if value := p.get("LABRES_RESOURCES"); value != "" {
		resources = value
	}
	if parsed, err := catalog.ParseResources(resources); err != nil {
		p.invalid = append(p.invalid, "LABRES_RESOURCES")
	} else {
		cfg.Resources = parsed
	}

	if value := p.get("LABRES_OWNERSHIP_POLICY"); value != "" {
		if policy, err := application.ParseOwnershipPolicy(value); err != nil {
			p.invalid = append(p.invalid, "LABRES_OWNERSHIP_POLICY")
		} else {
			cfg.OwnershipPolicy = policy
		}
	}
	p.durationVar("LABRES_REFRESH_INTERVAL", &cfg.RefreshInterval)

	cfg.NATSURL = p.get("LABRES_NATS_URL")
	p.intVar("LABRES_NATS_EMBEDDED_PORT", &cfg.NATSEmbeddedPort, func(v int) bool { return v >= -1 && v < 65536 })

	if value := p.get("LABRES_LOG_LEVEL"); value != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(value)); err != nil {
			p.invalid = append(p.invalid, "LABRES_LOG_LEVEL")
		}
	}
	if value := p.get("LABRES_CORS_ORIGINS"); value != "" {
		for _, origin := range strings.Split(value, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
			}
		}
	}

	if len(p.missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(p.missing, ", "))
	}
	if len(p.invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(p.invalid, ", "))
	}

	return cfg, nil
}

// parser reads variables and collects the names of missing and invalid ones.
type parser struct {
	missing []string
	invalid []string
}

func (p *parser) get(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func (p *parser) intVar(key string, dst *int, valid func(int) bool) {
	value := p.get(key)
	if value == "" {
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil || !valid(n) {
		p.invalid = append(p.invalid, key)
		return
	}
	*dst = n
}

func (p *parser) durationVar(key string, dst *time.Duration) {
	value := p.get(key)
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		p.invalid = append(p.invalid, key)
		return
	}
	*dst = d
}

func (p *parser) boolVar(key string, dst *bool) {
	value := p.get(key)
	if value == "" {
		return
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		p.invalid = append(p.invalid, key)
		return
	}
	*dst = b
}
