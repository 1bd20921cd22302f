package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles websocket upgrade requests for room connections.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	rooms             func() int
}

// NewWebSocketHandler creates a new websocket handler. rooms reports the
// number of live rooms for the stats endpoint.
func NewWebSocketHandler(cm *ConnectionManager, rooms func() int) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		rooms:             rooms,
	}
}

// HandleConnection upgrades the request. Room membership is established
// later by a join-room action.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.connectionManager.UpgradeConnection(w, r); err != nil {
		// The upgrader has already written an HTTP error response
		log.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade rejected")
	}
}

// StatsResponse is the body of GET /ws/stats.
type StatsResponse struct {
	ConnectionStats
	Rooms int `json:"rooms"`
}

// HandleConnectionStats returns statistics about active connections.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := StatsResponse{ConnectionStats: h.connectionManager.GetConnectionStats()}
	if h.rooms != nil {
		resp.Rooms = h.rooms()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode stats response")
	}
}

// RegisterRoutes registers websocket routes with an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
