package infrastructure

import (
	"context"
	"encoding/json"
	"log/slog"

	"leasio/internal/config"
	"leasio/internal/engine"
	"leasio/internal/model"
	"leasio/internal/registry"
	"leasio/internal/repository"
	"leasio/internal/service"
	"leasio/internal/token"
	transportHTTP "leasio/internal/transport/http"
	transportNATS "leasio/internal/transport/nats"
	"leasio/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the
// application. Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	var cleanupFns []func()

	nc, err := connectNats(cfg.NatsAddr())
	if err != nil {
		return nil, nil, err
	}
	cleanupFns = append(cleanupFns, nc.Close)
	bus := transportNATS.NewBus(nc)

	// ── Store, token and registry wiring ──────────────────────────────────────
	var (
		store   engine.Store
		syncer  service.EventSyncer
		bridge  engine.Bridge
		servers []Server
	)

	switch cfg.StoreProvider {
	case "postgres":
		db, err := connectPostgres(cfg.DSN())
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		cleanupFns = append(cleanupFns, db.Close)

		rdb, err := connectRedis(cfg.RedisAddr())
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		cleanupFns = append(cleanupFns, func() { _ = rdb.Close() })

		pgStore := repository.NewStore(db, rdb, bus)
		store, syncer = pgStore, pgStore
		bridge = token.NewVault(db)

		// Audit worker only makes sense with a durable event table.
		servers = append(servers, worker.NewAuditWorker(syncer, nc))

	case "memory":
		store = engine.NewMemStore(func(ev model.Event) {
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Error("failed to marshal event", "kind", ev.Kind, "error", err)
				return
			}
			if err := bus.Publish(repository.EventsSubject, data); err != nil {
				slog.Warn("failed to publish event", "kind", ev.Kind, "error", err)
			}
		})
		bridge = token.NewMemVault()
	}

	reg := registry.New(cfg.RegistryOwner)
	if cfg.CatalogFile != "" {
		if err := reg.LoadFile(cfg.CatalogFile); err != nil {
			return nil, runCleanup(cleanupFns), err
		}
	}

	// ── Engine and transports ─────────────────────────────────────────────────
	opts := []engine.Option{}
	if !cfg.PauseEnabled {
		opts = append(opts, engine.WithoutPause())
	}
	eng := engine.New(store, reg, bridge, cfg.EngineKind, cfg.Manager, opts...)
	svc := service.WithMetrics(eng)

	servers = append(servers, transportNATS.NewHandler(svc, nc))
	if addr, apiErr := cfg.ApiAddr(); apiErr == nil {
		servers = append(servers, transportHTTP.NewServer(addr, svc, reg))
	}

	return NewApp(servers), runCleanup(cleanupFns), nil
}

// runCleanup returns a single function that calls all cleanup functions in
// reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
