package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/duelmath/duelmath/internal/api"
	"github.com/duelmath/duelmath/internal/config"
	"github.com/duelmath/duelmath/internal/events"
	"github.com/duelmath/duelmath/internal/gateway"
	"github.com/duelmath/duelmath/internal/history"
	"github.com/duelmath/duelmath/internal/room"
)

// Services wires the room store, the WebSocket gateway and the optional
// persistence/event-mirror collaborators.
type Services struct {
	Store       *room.Store
	ConnManager *gateway.ConnectionManager
	WSHandler   *gateway.WebSocketHandler
	API         *api.Handler

	pool      *pgxpool.Pool
	publisher *events.Publisher
}

func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	connManager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())

	broadcaster := room.Broadcaster(connManager)
	var publisher *events.Publisher
	if cfg.Nats.Enabled {
		p, err := events.NewPublisher(events.JetStreamConfig{
			URL:           cfg.Nats.URL,
			StreamName:    cfg.Nats.StreamName,
			SubjectPrefix: cfg.Nats.SubjectPrefix,
			MaxReconnects: -1,
			ReconnectWait: events.DefaultJetStreamConfig().ReconnectWait,
			MaxAge:        events.DefaultJetStreamConfig().MaxAge,
		})
		if err != nil {
			return nil, fmt.Errorf("set up event publisher: %w", err)
		}
		publisher = p
		broadcaster = fanoutBroadcaster{connManager, publisher}
	}

	var pool *pgxpool.Pool
	var recorder room.MatchRecorder
	if cfg.Database.Enabled {
		p, err := setupDatabase(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		pool = p
		repo := history.NewRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		recorder = repo
	}

	store := room.NewStore(room.Config{
		Capacity:      cfg.Room.Capacity,
		QuestionCount: cfg.Room.QuestionCount,
		GracePeriod:   cfg.Room.GracePeriod(),
	}, clockwork.NewRealClock(), broadcaster, recorder)

	go connManager.Start(ctx)

	return &Services{
		Store:       store,
		ConnManager: connManager,
		WSHandler:   gateway.NewWebSocketHandler(connManager, store),
		API:         api.NewHandler(store),
		pool:        pool,
		publisher:   publisher,
	}, nil
}

// Close releases all service resources.
func (s *Services) Close() {
	s.Store.Close()
	if s.publisher != nil {
		s.publisher.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	log.Info().Msg("services closed")
}

// fanoutBroadcaster delivers every room event to multiple transports:
// the WebSocket gateway plus the NATS mirror.
type fanoutBroadcaster []room.Broadcaster

func (f fanoutBroadcaster) BroadcastToRoom(roomCode string, eventType string, payload any) {
	for _, b := range f {
		b.BroadcastToRoom(roomCode, eventType, payload)
	}
}
