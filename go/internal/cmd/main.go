package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/tasktimer/go/internal/telemetry"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.Level())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tel, err := telemetry.Initialize(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}

	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}

	log.Info().
		Str("backend", cfg.Store.Backend).
		Str("key", cfg.Store.Key).
		Str("port", cfg.Server.Port).
		Msg("starting task timer")

	var wg sync.WaitGroup
	run := func(name string, fn func(ctx context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
			log.Debug().Str("component", name).Msg("component stopped")
		}()
	}

	run("gateway", services.Gateway.Start)
	run("prober", services.Prober.Run)
	run("connectivity", func(ctx context.Context) {
		changes, unsubscribe := services.Guard.Subscribe()
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
				// the online indicator is part of the view
				services.App.Redraw()
			}
		}
	})
	run("timer", func(ctx context.Context) {
		if err := services.App.Start(ctx); err != nil {
			log.Error().Err(err).Msg("timer client stopped")
			cancel()
		}
	})

	server := setupServer(cfg, services)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	wg.Wait()
	services.Close()

	if err := tel.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("telemetry shutdown failed")
	}

	log.Info().Msg("task timer shutdown complete")
}
