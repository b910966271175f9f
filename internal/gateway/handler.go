package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/duelmath/duelmath/internal/room"
)

// WebSocketHandler upgrades HTTP requests into room-bound connections.
type WebSocketHandler struct {
	manager *ConnectionManager
	store   *room.Store
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(manager *ConnectionManager, store *room.Store) *WebSocketHandler {
	return &WebSocketHandler{manager: manager, store: store}
}

// HandleRoomConnection handles GET /v1/ws/rooms/{code}?identity=...
// The identity query parameter is the durable player key; the connection
// itself is pure transport and may be replaced at any time.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		http.Error(w, "identity is required", http.StatusBadRequest)
		return
	}

	rm, err := h.store.Get(code)
	if err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	ws, err := h.manager.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("room", code).Msg("failed to upgrade WebSocket connection")
		return
	}

	conn := &Connection{
		ID:          uuid.New().String(),
		Identity:    identity,
		RoomCode:    code,
		Send:        make(chan []byte, 256),
		room:        rm,
		ws:          ws,
		manager:     h.manager,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	h.manager.registerConnection(conn)

	go conn.writePump()
	go conn.readPump()

	log.Info().
		Str("connection_id", conn.ID).
		Str("identity", identity).
		Str("room", code).
		Msg("WebSocket connection established")
}

// HandleConnectionStats returns statistics about active connections.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.manager.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to write stats response")
	}
}

// RegisterRoutes registers WebSocket routes on the router.
func (h *WebSocketHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/ws/rooms/{code}", h.HandleRoomConnection).Methods(http.MethodGet)
	r.HandleFunc("/v1/ws/stats", h.HandleConnectionStats).Methods(http.MethodGet)
}
