package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tasktimer/go/internal/config"
	"github.com/mcdev12/tasktimer/go/internal/connectivity"
	"github.com/mcdev12/tasktimer/go/internal/gateway"
	"github.com/mcdev12/tasktimer/go/internal/store"
	"github.com/mcdev12/tasktimer/go/internal/telemetry"
	"github.com/mcdev12/tasktimer/go/internal/timer"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Store   store.Store
	DB      *sql.DB
	Guard   *connectivity.Guard
	Prober  *connectivity.Prober
	App     *timer.App
	Timer   *timer.Service
	Gateway *gateway.Service
}

func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Store → Adapter → App → Service / Gateway

	// the guard starts offline; backends report their first connection
	guard := connectivity.NewGuard(false)
	services := &Services{Guard: guard}

	st, err := setupStore(ctx, cfg, guard, services)
	if err != nil {
		return nil, err
	}
	services.Store = st

	metrics, err := setupMetrics(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	clock := clockwork.NewRealClock()

	// the hub renders the app, so it exists before the app
	gatewayCfg := gateway.DefaultConfig()
	hub := gateway.NewHub(gatewayCfg.ConnectionConfig)

	adapter := timer.NewAdapter(st, cfg.Store.Key, clock, metrics)
	app := timer.NewApp(adapter, guard, clock, hub, metrics, cfg.TimerConfig())

	services.App = app
	services.Timer = timer.NewService(app)
	services.Gateway = gateway.NewService(gatewayCfg, hub, app, st, guard)
	services.Prober = connectivity.NewProber(guard, st, clock, cfg.Timer.ProbeInterval)
	return services, nil
}

func setupStore(ctx context.Context, cfg *config.Config, guard *connectivity.Guard, services *Services) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendNATS:
		natsCfg := cfg.NATSConfig()
		nc, err := store.ConnectNATS(natsCfg, guard.SetOnline)
		if err != nil {
			return nil, err
		}
		st, err := store.NewNATSStore(ctx, nc, natsCfg)
		if err != nil {
			nc.Close()
			return nil, err
		}
		return st, nil

	case config.BackendPostgres:
		db, err := setupDatabase(cfg.Database)
		if err != nil {
			return nil, err
		}
		st, err := store.NewPostgresStore(db, cfg.PostgresConfig(), guard.SetOnline)
		if err != nil {
			db.Close()
			return nil, err
		}
		services.DB = db
		// the listener reports asynchronously; the database already answered
		guard.SetOnline(true)
		return st, nil

	case config.BackendMemory:
		log.Warn().Msg("using in-memory store, state is not shared between processes")
		guard.SetOnline(true)
		return store.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func setupMetrics(cfg *config.Config) (timer.Metrics, error) {
	if !cfg.Telemetry.Enabled {
		return timer.NoOpMetrics{}, nil
	}
	metrics, err := telemetry.NewTimerMetrics(nil)
	if err != nil {
		return nil, fmt.Errorf("create timer metrics: %w", err)
	}
	return metrics, nil
}

// Close releases the store and the database
func (s *Services) Close() {
	if s.App != nil {
		s.App.Close()
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close store")
		}
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}
}
