package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/lab-reservations/internal/application"
	"github.com/example/lab-reservations/internal/config"
	"github.com/example/lab-reservations/internal/events"
	httptransport "github.com/example/lab-reservations/internal/http"
	"github.com/example/lab-reservations/internal/logging"
	"github.com/example/lab-reservations/internal/persistence"
	"github.com/example/lab-reservations/internal/persistence/gormstore"
	"github.com/example/lab-reservations/internal/persistence/memory"
	"github.com/example/lab-reservations/internal/persistence/sqlite"
	"github.com/example/lab-reservations/internal/persistence/sqlite/migration"
	"github.com/example/lab-reservations/internal/token"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Stderr, slog.LevelInfo).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("lab reservation service stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	app, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("lab reservation API listening", "addr", server.Addr, "store", cfg.StoreDriver, "ownership_policy", cfg.OwnershipPolicy)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// app holds the assembled HTTP handler and everything that must be released
// on shutdown, in reverse order of acquisition.
type app struct {
	handler http.Handler
	bus     *events.Bus
	store   *persistence.Store
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// build wires configuration into storage, services, event distribution and the
// HTTP router. On error everything acquired so far is released.
func build(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.store = persistence.NewStore(backend,
		persistence.WithSeeder(persistence.DemoSeed{Hash: application.HashPassword}),
		persistence.WithLogger(logger),
	)
	a.onClose(func() {
		if cerr := a.store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	})

	codec, err := token.NewCodec(cfg.SessionSecret, time.Now)
	if err != nil {
		return nil, fmt.Errorf("session tokens: %w", err)
	}

	a.bus = events.NewBus(logger)
	publisher, err := connectEvents(cfg, a, logger)
	if err != nil {
		return nil, err
	}

	authService := application.NewAuthServiceWithLogger(a.store, codec, application.HashPassword, application.VerifyPassword, time.Now, cfg.SessionTTL, logger)
	directoryService := application.NewDirectoryServiceWithLogger(a.store, a.store, time.Now, logger)
	availabilityService := application.NewAvailabilityServiceWithLogger(a.store, a.store, cfg.Slots, cfg.Resources, logger)
	reservationService := application.NewReservationService(application.ReservationServiceConfig{
		Reservations: a.store,
		Users:        a.store,
		Slots:        cfg.Slots,
		Resources:    cfg.Resources,
		Policy:       cfg.OwnershipPolicy,
		Events:       publisher,
		Now:          time.Now,
		Logger:       logger,
	})

	a.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Auth:         httptransport.NewAuthHandler(authService, cfg.SecureCookie, logger),
		Users:        httptransport.NewUserHandler(directoryService, logger),
		Reservations: httptransport.NewReservationHandler(reservationService, directoryService, logger),
		Availability: httptransport.NewAvailabilityHandler(availabilityService, logger),
		Live:         httptransport.NewLiveHandler(availabilityService, a.bus, cfg.RefreshInterval, cfg.CORSOrigins, logger),
		Sessions:     authService,
		CORSOrigins:  cfg.CORSOrigins,
		Logger:       logger,
		Now:          time.Now,
	})
	return a, nil
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (persistence.KeyValueStore, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory storage; data is lost on restart")
		return memory.Open(), nil
	case config.DriverPostgres:
		storage, err := gormstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		return storage, nil
	default:
		if err := ensureParentDir(cfg.SQLitePath); err != nil {
			return nil, err
		}
		storage, err := sqlite.Open(ctx, migration.DefaultSQLiteConfig(cfg.SQLitePath), sqlite.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		return storage, nil
	}
}

// connectEvents returns the publisher reservation changes go to. Without NATS
// that is the local bus; with NATS, events are also published to the server
// and events from other instances are relayed into the local bus.
func connectEvents(cfg config.Config, a *app, logger *slog.Logger) (events.Publisher, error) {
	if !cfg.NATSEnabled() {
		return a.bus, nil
	}

	url := cfg.NATSURL
	if url == "" {
		embedded, err := events.StartEmbedded(events.EmbeddedConfig{Port: cfg.NATSEmbeddedPort})
		if err != nil {
			return nil, err
		}
		a.onClose(embedded.Shutdown)
		url = embedded.ClientURL()
		logger.Info("embedded NATS server started", "url", url)
	}

	conn, err := events.Connect(url, "labreserve")
	if err != nil {
		return nil, err
	}
	a.onClose(conn.Close)

	origin := uuid.NewString()
	bridge := events.NewBridge(conn, events.DefaultSubjectPrefix, origin, a.bus, logger)
	if err := bridge.Start(); err != nil {
		return nil, err
	}
	a.onClose(func() {
		if cerr := bridge.Close(); cerr != nil {
			logger.Warn("failed to close event bridge", "error", cerr)
		}
	})

	logger.Info("relaying reservation events through NATS", "url", url, "origin", origin)
	return events.Fanout{a.bus, events.NewNATSPublisher(conn, events.DefaultSubjectPrefix, origin)}, nil
}
