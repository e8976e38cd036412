package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mcdev12/tasktimer/go/internal/config"
	"github.com/mcdev12/tasktimer/go/internal/timer"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// Register services
	registerServices(mux, services)

	// Add service info endpoint
	setupInfo(mux, cfg, services)

	// Wrap with CORS
	handler := c.Handler(mux)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	// Register timer RPC service
	timerServicePath, timerServiceHandler := timer.NewServiceHandler(services.Timer)
	mux.Handle(timerServicePath, timerServiceHandler)

	// Register display gateway (WebSocket, state, health)
	services.Gateway.RegisterRoutes(mux)
}

func setupInfo(mux *http.ServeMux, cfg *config.Config, services *Services) {
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]interface{}{
			"service":     "tasktimer",
			"version":     cfg.Telemetry.ServiceVersion,
			"backend":     cfg.Store.Backend,
			"key":         cfg.Store.Key,
			"online":      services.Guard.Online(),
			"connections": services.Gateway.Hub().ConnectionCount(),
		}); err != nil {
			log.Error().Err(err).Msg("failed to write info response")
		}
	})
}
