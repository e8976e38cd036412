package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// TimerApp is what the gateway needs from the timer client
type TimerApp interface {
	EventSink
	StateProvider
}

// Service is the display gateway: it renders timer views to WebSocket
// displays and exposes the timer state over HTTP.
type Service struct {
	hub           *Hub
	wsHandler     *WebSocketHandler
	stateHandler  *StateHandler
	healthChecker *HealthChecker
}

// Config holds configuration for the display gateway
type Config struct {
	ConnectionConfig ConnectionConfig
	HealthTimeout    time.Duration
}

// DefaultConfig returns default configuration for the display gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		HealthTimeout:    5 * time.Second,
	}
}

// NewService creates the gateway around an existing hub. The hub is created
// first so it can be handed to the timer app as its renderer.
func NewService(config Config, hub *Hub, app TimerApp, store Pinger, guard OnlineReporter) *Service {
	hub.SetSink(app)
	return &Service{
		hub:           hub,
		wsHandler:     NewWebSocketHandler(hub),
		stateHandler:  NewStateHandler(app),
		healthChecker: NewHealthChecker(store, guard, hub, config.HealthTimeout),
	}
}

// Start runs the hub until ctx is cancelled
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting display gateway")
	s.hub.Start(ctx)
	log.Info().Msg("display gateway stopped")
}

// RegisterRoutes registers the gateway HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	mux.Handle("/health", s.healthChecker)
	log.Info().Msg("display gateway routes registered")
}

// Hub returns the display hub
func (s *Service) Hub() *Hub {
	return s.hub
}
