package gateway

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/duelmath/duelmath/internal/room"
)

// Connection binds one transient WebSocket to a durable player identity in
// a room. The connection carries no authoritative state; losing it loses
// nothing, and the client resynchronizes through rejoinRoom on reconnect.
//
// Send is never closed: both the broadcast goroutine and the read pump (for
// direct replies) write to it concurrently with unregistration. Pumps
// terminate through the socket closing, not through the channel.
type Connection struct {
	ID       string
	Identity string
	RoomCode string
	Send     chan []byte

	room    *room.Room
	ws      *websocket.Conn
	manager *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
}

func (c *Connection) closeSocket() {
	if c.ws != nil {
		c.ws.Close()
	}
}

// sendEvent queues a direct reply on this connection only.
func (c *Connection) sendEvent(eventType string, payload any) {
	event, err := NewEvent(c.RoomCode, eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to build reply event")
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal reply event")
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Warn().Str("connection_id", c.ID).Msg("reply dropped, send buffer full")
	}
}

func (c *Connection) sendError(err error) {
	c.sendEvent(EventError, errorPayload(err))
}

// errorPayload maps room errors onto wire error codes. NOT_FOUND is
// terminal: the client must drop cached state and restart the join flow.
func errorPayload(err error) ErrorPayload {
	switch {
	case errors.Is(err, room.ErrRoomNotFound), errors.Is(err, room.ErrRoomClosed):
		return ErrorPayload{Code: ErrCodeNotFound, Message: "room no longer exists"}
	case errors.Is(err, room.ErrPlayerNotFound):
		return ErrorPayload{Code: ErrCodeNotInRoom, Message: "player is not part of this room"}
	case errors.Is(err, room.ErrInvalidState):
		return ErrorPayload{Code: ErrCodeInvalidState, Message: "operation not allowed in current session state"}
	case errors.Is(err, room.ErrRoomFull):
		return ErrorPayload{Code: ErrCodeRoomFull, Message: "room is full"}
	case errors.Is(err, room.ErrNotHost):
		return ErrorPayload{Code: ErrCodeNotHost, Message: "only the host may start the game"}
	case errors.Is(err, room.ErrRoomNotFull):
		return ErrorPayload{Code: ErrCodeInvalidState, Message: "room is not full yet"}
	default:
		return ErrorPayload{Code: ErrCodeBadRequest, Message: err.Error()}
	}
}

// writePump sends queued messages and pings until the connection dies.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		c.manager.unregisterConnection(c)
	}()

	for {
		select {
		case message := <-c.Send:
			c.ws.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump reads client commands until the connection dies. Closing the
// socket cancels only this transport binding, never the session.
func (c *Connection) readPump() {
	defer func() {
		c.manager.unregisterConnection(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(c.manager.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}
		c.handleClientMessage(message)
		c.ws.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}

// handleClientMessage dispatches one client command into the room worker.
func (c *Connection) handleClientMessage(message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendEvent(EventError, ErrorPayload{Code: ErrCodeBadRequest, Message: "malformed message"})
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("identity", c.Identity).
		Str("type", msg.Type).
		Msg("received client command")

	switch msg.Type {
	case cmdRejoinRoom:
		c.handleRejoin(msg.Data)
	case cmdGetTimer:
		c.handleGetTimer()
	case cmdSubmitAnswer:
		c.handleSubmitAnswer(msg.Data)
	case cmdStartGame:
		c.handleStartGame()
	case cmdRematch:
		c.handleRematch(msg.Data)
	case cmdLeaveRoom:
		c.handleLeave()
	default:
		c.sendEvent(EventError, ErrorPayload{Code: ErrCodeBadRequest, Message: "unknown command: " + msg.Type})
	}
}

func (c *Connection) handleRejoin(data json.RawMessage) {
	var req rejoinRoomRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			c.sendEvent(EventError, ErrorPayload{Code: ErrCodeBadRequest, Message: "malformed rejoinRoom payload"})
			return
		}
	}
	// A room code that differs from the bound room is stale client state.
	// NOT_FOUND is terminal: the client must abandon it and start over.
	if req.RoomCode != "" && req.RoomCode != c.RoomCode {
		c.sendError(room.ErrRoomNotFound)
		return
	}
	identity := c.Identity
	if req.Identity != "" {
		identity = req.Identity
		c.Identity = req.Identity
	}
	snapshot, err := c.room.Rejoin(identity)
	if err != nil {
		c.sendError(err)
		return
	}
	c.sendEvent(EventRejoined, snapshot)
}

func (c *Connection) handleGetTimer() {
	left, err := c.room.TimeLeft()
	if err != nil {
		c.sendError(err)
		return
	}
	c.sendEvent(room.EventTimerUpdate, room.TimerUpdatePayload{TimeLeft: left})
}

func (c *Connection) handleSubmitAnswer(data json.RawMessage) {
	var req submitAnswerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendEvent(EventError, ErrorPayload{Code: ErrCodeBadRequest, Message: "malformed submitAnswer payload"})
		return
	}
	result, err := c.room.SubmitAnswer(c.Identity, req.Answer)
	if err != nil {
		c.sendError(err)
		return
	}
	c.sendEvent(EventAnswerResult, result)
}

func (c *Connection) handleStartGame() {
	if err := c.room.Start(c.Identity); err != nil {
		c.sendError(err)
	}
}

func (c *Connection) handleRematch(data json.RawMessage) {
	var req rematchRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			c.sendEvent(EventError, ErrorPayload{Code: ErrCodeBadRequest, Message: "malformed rematch payload"})
			return
		}
	}
	identity := c.Identity
	if req.Identity != "" {
		identity = req.Identity
	}
	status, err := c.room.RequestRematch(identity)
	if err != nil {
		c.sendError(err)
		return
	}
	if status.Waiting {
		c.sendEvent(EventRematchPending, status)
	}
}

func (c *Connection) handleLeave() {
	if err := c.room.Leave(c.Identity); err != nil {
		c.sendError(err)
	}
}
