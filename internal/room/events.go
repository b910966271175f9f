package room

import (
	"context"

	"github.com/duelmath/duelmath/internal/models"
)

// Event types broadcast to every connection in a room.
const (
	EventRoomUpdate       = "roomUpdate"
	EventGameStarted      = "gameStarted"
	EventGameEnded        = "gameEnded"
	EventTimerUpdate      = "timerUpdate"
	EventProgressUpdate   = "progressUpdate"
	EventRematchRequested = "rematchRequested"
	EventRematchStarted   = "rematchStarted"
)

// Broadcaster fans an event out to every connection bound to a room. The
// transport lives elsewhere (WebSocket gateway, NATS mirror); defining the
// interface here keeps the room package free of transport imports.
type Broadcaster interface {
	BroadcastToRoom(roomCode string, eventType string, payload any)
}

// MatchRecorder persists finished matches. A nil recorder disables
// persistence.
type MatchRecorder interface {
	RecordMatch(ctx context.Context, rec models.MatchRecord) error
}

// NopBroadcaster discards all events. Used when a room has no transport,
// e.g. in tests of the store itself.
type NopBroadcaster struct{}

func (NopBroadcaster) BroadcastToRoom(string, string, any) {}

// TimerUpdatePayload carries the authoritative remaining seconds.
type TimerUpdatePayload struct {
	TimeLeft int `json:"timeLeft"`
}

// RoomUpdatePayload describes current membership, sent on join and leave.
type RoomUpdatePayload struct {
	Players  []models.PlayerProgress `json:"players"`
	Host     string                  `json:"host"`
	Capacity int                     `json:"capacity"`
	Status   models.SessionStatus    `json:"status"`
}

// GameStartedPayload is sent to all members when the host starts the game.
type GameStartedPayload struct {
	Questions []models.Question `json:"questions"`
	Mode      int               `json:"mode"`
	TimeLeft  int               `json:"timeLeft"`
}

// GameEndedPayload is sent exactly once when a session reaches ended.
type GameEndedPayload struct {
	Reason   models.EndReason        `json:"reason"`
	Progress []models.PlayerProgress `json:"progress"`
}

// RematchRequestedPayload notifies the room that one player wants a rematch.
type RematchRequestedPayload struct {
	Name string `json:"name"`
}

// RematchStartedPayload is sent to all members when every player has
// requested a rematch and the replacement session is live.
type RematchStartedPayload struct {
	Questions []models.Question       `json:"questions"`
	Mode      int                     `json:"mode"`
	Players   []models.PlayerProgress `json:"players"`
	TimeLeft  int                     `json:"timeLeft"`
}
