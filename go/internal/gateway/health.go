package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Pinger checks the backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OnlineReporter reports the connectivity flag.
type OnlineReporter interface {
	Online() bool
	Skipped() uint64
}

type HealthStatus struct {
	Healthy        bool
	StoreReachable bool
	Online         bool
	SkippedWrites  uint64
	Connections    int
	Errors         []string
}

type HealthChecker struct {
	store   Pinger
	guard   OnlineReporter
	hub     *Hub
	timeout time.Duration
}

func NewHealthChecker(store Pinger, guard OnlineReporter, hub *Hub, timeout time.Duration) *HealthChecker {
	return &HealthChecker{
		store:   store,
		guard:   guard,
		hub:     hub,
		timeout: timeout,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	if err := h.store.Ping(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("store ping failed: %v", err))
	} else {
		status.StoreReachable = true
	}

	status.Online = h.guard.Online()
	status.SkippedWrites = h.guard.Skipped()
	if !status.Online {
		// the app keeps working offline, this is reported but not fatal
		status.Errors = append(status.Errors, "offline, writes suppressed")
	}

	if h.hub != nil {
		status.Connections = h.hub.ConnectionCount()
	}

	return status
}

// HTTP handler helper
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := h.Check(ctx)

	response := map[string]interface{}{
		"healthy":         status.Healthy,
		"store_reachable": status.StoreReachable,
		"online":          status.Online,
		"skipped_writes":  status.SkippedWrites,
		"connections":     status.Connections,
		"errors":          status.Errors,
	}

	w.Header().Set("Content-Type", "application/json")

	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("failed to encode health response")
	}
}
