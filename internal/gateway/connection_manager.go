package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager owns every WebSocket connection, pooled by room code.
// Broadcasts funnel through a single channel consumed by one goroutine, so
// all subscribers of a room observe events in the order they were produced.
type ConnectionManager struct {
	roomConns map[string]map[*Connection]bool
	mu        sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan broadcastMessage
}

// ConnectionConfig holds transport tuning for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

type broadcastMessage struct {
	roomCode string
	event    *Event
}

// DefaultConnectionConfig returns defaults suitable for small JSON frames.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a manager. Call Start to begin fan-out.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		roomConns: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// Start processes broadcast messages until the context is done.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// BroadcastToRoom implements room.Broadcaster. Events are enqueued and
// fanned out in order by the Start loop.
func (cm *ConnectionManager) BroadcastToRoom(roomCode string, eventType string, payload any) {
	event, err := NewEvent(roomCode, eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("room", roomCode).Str("event_type", eventType).Msg("failed to build event")
		return
	}
	select {
	case cm.broadcastCh <- broadcastMessage{roomCode: roomCode, event: event}:
	default:
		log.Warn().Str("room", roomCode).Msg("broadcast channel full, dropping message")
	}
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roomConns[conn.RoomCode] == nil {
		cm.roomConns[conn.RoomCode] = make(map[*Connection]bool)
	}
	cm.roomConns[conn.RoomCode][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room", conn.RoomCode).
		Int("total_connections", len(cm.roomConns[conn.RoomCode])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.roomConns[conn.RoomCode]
	if !exists {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}
	delete(connections, conn)
	if len(connections) == 0 {
		delete(cm.roomConns, conn.RoomCode)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("identity", conn.Identity).
		Str("room", conn.RoomCode).
		Msg("connection unregistered")
}

func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.roomConns[message.roomCode]
	if !exists {
		cm.mu.RUnlock()
		return
	}
	// Snapshot so the lock is not held while writing to send buffers.
	targets := make([]*Connection, 0, len(connections))
	for conn := range connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	data, err := json.Marshal(message.event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		select {
		case conn.Send <- data:
		default:
			// Connection is slow or dead; drop it rather than stall the room.
			log.Warn().
				Str("connection_id", conn.ID).
				Str("identity", conn.Identity).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.closeSocket()
		}
	}

	log.Debug().
		Str("event_type", message.event.Type).
		Str("room", message.roomCode).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// ConnectionStats summarizes active connections per room.
type ConnectionStats struct {
	TotalConnections int            `json:"totalConnections"`
	ActiveRooms      int            `json:"activeRooms"`
	RoomConnections  map[string]int `json:"roomConnections"`
}

// Stats returns statistics about active connections.
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{RoomConnections: make(map[string]int)}
	for code, connections := range cm.roomConns {
		stats.TotalConnections += len(connections)
		stats.RoomConnections[code] = len(connections)
	}
	stats.ActiveRooms = len(cm.roomConns)
	return stats
}
