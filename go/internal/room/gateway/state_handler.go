package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/planningpoker/go/internal/models"
	"github.com/mcdev12/planningpoker/go/internal/room"
)

// StateProvider returns the public view of a room.
type StateProvider interface {
	RoomView(roomID string) (models.PublicView, error)
}

// StateHandler serves room state over plain HTTP so a landing page can
// check a room code before opening a socket.
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler.
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
	}
}

// HandleGetRoomState handles GET /api/rooms/{id}.
func (h *StateHandler) HandleGetRoomState(w http.ResponseWriter, r *http.Request) {
	roomID := strings.ToUpper(r.PathValue("id"))
	if roomID == "" {
		http.Error(w, "Room ID is required", http.StatusBadRequest)
		return
	}

	view, err := h.stateProvider.RoomView(roomID)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			http.Error(w, errTextRoomNotFound, http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to get room state")
		http.Error(w, "Failed to get room state", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(view); err != nil {
		log.Error().Err(err).Msg("failed to encode room state response")
	}
}

// RegisterStateRoutes registers state-related HTTP routes.
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rooms/{id}", h.HandleGetRoomState)
}
