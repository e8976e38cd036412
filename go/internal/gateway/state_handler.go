package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/mcdev12/tasktimer/go/internal/models"
	"github.com/mcdev12/tasktimer/go/internal/timer"
	"github.com/rs/zerolog/log"
)

// StateProvider exposes the local timer state
type StateProvider interface {
	View() timer.View
	Snapshot() models.Snapshot
}

// TimerStateResponse is the body of GET /api/timer
type TimerStateResponse struct {
	View     timer.View      `json:"view"`
	Snapshot models.Snapshot `json:"snapshot"`
}

// StateHandler handles HTTP requests for timer state
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
	}
}

// HandleGetTimer handles GET /api/timer
func (h *StateHandler) HandleGetTimer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := TimerStateResponse{
		View:     h.stateProvider.View(),
		Snapshot: h.stateProvider.Snapshot(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode timer state response")
	}
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/timer", h.HandleGetTimer)
}
