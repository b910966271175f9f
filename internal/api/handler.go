package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/duelmath/duelmath/internal/models"
	"github.com/duelmath/duelmath/internal/room"
)

// Handler serves the REST precursors of the session protocol: room creation
// and join-by-code. Everything after that happens over the WebSocket
// gateway.
type Handler struct {
	store *room.Store
}

// NewHandler creates a REST handler backed by the room store.
func NewHandler(store *room.Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes registers the REST routes on the router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/rooms", h.CreateRoom).Methods(http.MethodPost)
	r.HandleFunc("/v1/rooms/{code}/join", h.JoinRoom).Methods(http.MethodPost)
	r.HandleFunc("/v1/rooms/{code}", h.GetRoom).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
}

type createRoomRequest struct {
	Mode     int `json:"mode"`
	Capacity int `json:"capacity,omitempty"`
}

type createRoomResponse struct {
	RoomCode string `json:"roomCode"`
	Mode     int    `json:"mode"`
	Capacity int    `json:"capacity"`
}

// CreateRoom handles POST /v1/rooms.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Mode <= 0 || req.Mode > 10 {
		writeError(w, http.StatusBadRequest, "mode must be between 1 and 10 minutes")
		return
	}
	rm, err := h.store.Create(req.Mode, req.Capacity)
	if err != nil {
		log.Error().Err(err).Msg("failed to create room")
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	writeJSON(w, http.StatusCreated, createRoomResponse{
		RoomCode: rm.Code(),
		Mode:     req.Mode,
		Capacity: rm.Capacity(),
	})
}

type joinRoomRequest struct {
	Identity string `json:"identity"`
}

type joinRoomResponse struct {
	RoomCode    string                `json:"roomCode"`
	PlayerState models.PlayerProgress `json:"playerState"`
}

// JoinRoom handles POST /v1/rooms/{code}/join. Joining is idempotent per
// identity: a second join returns the existing player state untouched.
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	var req joinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Identity == "" {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}
	rm, err := h.store.Get(code)
	if err != nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	state, err := rm.Join(req.Identity)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, joinRoomResponse{RoomCode: code, PlayerState: state})
}

// GetRoom handles GET /v1/rooms/{code}: the authoritative snapshot for a
// known member, or 404 once the room has been garbage-collected.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}
	rm, err := h.store.Get(code)
	if err != nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	snapshot, err := rm.Rejoin(identity)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeRoomError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, room.ErrRoomNotFound), errors.Is(err, room.ErrRoomClosed):
		writeError(w, http.StatusNotFound, "room not found")
	case errors.Is(err, room.ErrPlayerNotFound):
		writeError(w, http.StatusNotFound, "player is not part of this room")
	case errors.Is(err, room.ErrRoomFull):
		writeError(w, http.StatusConflict, "room is full")
	case errors.Is(err, room.ErrInvalidState):
		writeError(w, http.StatusConflict, "operation not allowed in current session state")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
