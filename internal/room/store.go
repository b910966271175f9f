package room

import (
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/duelmath/duelmath/internal/models"
)

// Room codes avoid characters that read ambiguously when shared out loud.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 4

// Config holds per-room defaults for the store.
type Config struct {
	// Capacity is the default number of players per room.
	Capacity int
	// QuestionCount is the number of questions generated per session.
	QuestionCount int
	// GracePeriod is how long an ended room stays resolvable before GC.
	GracePeriod time.Duration
}

// DefaultConfig returns the two-player defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:      2,
		QuestionCount: 20,
		GracePeriod:   60 * time.Second,
	}
}

// Store is the authoritative registry of live rooms, keyed by room code.
// The store itself only creates, resolves and forgets rooms; all session
// state lives behind each room's worker.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	rng   *rand.Rand

	cfg         Config
	clock       clockwork.Clock
	broadcaster Broadcaster
	recorder    MatchRecorder
}

// NewStore creates an empty registry. The recorder may be nil.
func NewStore(cfg Config, clock clockwork.Clock, broadcaster Broadcaster, recorder MatchRecorder) *Store {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 2
	}
	if cfg.QuestionCount <= 0 {
		cfg.QuestionCount = 20
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 60 * time.Second
	}
	return &Store{
		rooms:       make(map[string]*Room),
		rng:         rand.New(rand.NewSource(clock.Now().UnixNano())),
		cfg:         cfg,
		clock:       clock,
		broadcaster: broadcaster,
		recorder:    recorder,
	}
}

// Create registers a new room with a fresh session in the waiting state.
// A capacity of 0 uses the store default.
func (s *Store) Create(mode int, capacity int) (*Room, error) {
	if capacity <= 0 {
		capacity = s.cfg.Capacity
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	code := s.newCode()
	questions := models.GenerateQuestions(s.rng, s.cfg.QuestionCount)
	session := models.NewSession(code, mode, questions, s.clock.Now())
	room := newRoom(s, session, capacity, s.cfg.GracePeriod, s.rng.Int63())
	s.rooms[code] = room

	log.Info().Str("room", code).Int("mode", mode).Int("capacity", capacity).Msg("room created")
	return room, nil
}

// Get resolves a room code. ErrRoomNotFound is terminal for the caller: the
// only valid reaction is to abandon stale local state and start over.
func (s *Store) Get(code string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// Len reports the number of live rooms.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Codes lists the codes of all live rooms.
func (s *Store) Codes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	codes := make([]string, 0, len(s.rooms))
	for code := range s.rooms {
		codes = append(codes, code)
	}
	return codes
}

// Close shuts down every room worker. Used on server shutdown.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for code, room := range s.rooms {
		room.close()
		delete(s.rooms, code)
	}
}

// forget drops a room from the registry. Called by room workers on GC,
// abandonment or panic.
func (s *Store) forget(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
}

// newCode generates an unused room code. Caller holds s.mu.
func (s *Store) newCode() string {
	for {
		buf := make([]byte, codeLength)
		for i := range buf {
			buf[i] = codeAlphabet[s.rng.Intn(len(codeAlphabet))]
		}
		code := string(buf)
		if _, taken := s.rooms[code]; !taken {
			return code
		}
	}
}
