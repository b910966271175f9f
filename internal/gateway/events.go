package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the wire envelope for every server-to-client message. Data holds
// the event-specific payload defined in the room package.
type Event struct {
	ID        string          `json:"id"`
	Room      string          `json:"room"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Direct (per-connection) reply event types. Broadcast types live in the
// room package next to their payloads.
const (
	EventRejoined       = "rejoined"
	EventAnswerResult   = "answerResult"
	EventRematchPending = "rematchPending"
	EventError          = "error"
)

// ErrorPayload is sent on a single connection when a command fails.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes returned to clients.
const (
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInvalidState = "INVALID_STATE"
	ErrCodeBadRequest   = "BAD_REQUEST"
	ErrCodeRoomFull     = "ROOM_FULL"
	ErrCodeNotHost      = "NOT_HOST"
	ErrCodeNotInRoom    = "NOT_IN_ROOM"
)

// NewEvent wraps a payload into the wire envelope.
func NewEvent(roomCode, eventType string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:        uuid.New().String(),
		Room:      roomCode,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// clientMessage is the envelope for client-to-server commands.
type clientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client command types.
const (
	cmdRejoinRoom   = "rejoinRoom"
	cmdGetTimer     = "getTimer"
	cmdSubmitAnswer = "submitAnswer"
	cmdStartGame    = "startGame"
	cmdRematch      = "rematch"
	cmdLeaveRoom    = "leaveRoom"
)

type rejoinRoomRequest struct {
	RoomCode string `json:"roomCode"`
	Identity string `json:"identity"`
}

type submitAnswerRequest struct {
	Answer int `json:"answer"`
}

type rematchRequest struct {
	Identity string `json:"identity"`
}
