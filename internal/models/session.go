package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// SessionStatus tracks the lifecycle of a session. Transitions only move
// forward: waiting -> active -> ended.
type SessionStatus string

const (
	StatusWaiting SessionStatus = "waiting"
	StatusActive  SessionStatus = "active"
	StatusEnded   SessionStatus = "ended"
)

// EndReason records why a session transitioned to ended.
type EndReason string

const (
	EndReasonTimeExpired EndReason = "timeExpired"
	EndReasonAllFinished EndReason = "allFinished"
	EndReasonAbandoned   EndReason = "abandoned"
)

// PlayerState is the authoritative per-player progress within a session.
// CurrentIndex is monotonically non-decreasing and never exceeds the
// question count; Score changes only via a validated correct answer.
type PlayerState struct {
	Identity     string
	Score        int
	CurrentIndex int
	JoinOrder    int
	JoinedAt     time.Time
}

// PlayerProgress is the broadcast-friendly view of a PlayerState.
type PlayerProgress struct {
	Identity     string `json:"identity"`
	Score        int    `json:"score"`
	CurrentIndex int    `json:"currentIndex"`
}

// Session is the authoritative record of one game round for a room code.
// It is owned by the room's worker goroutine; nothing outside that worker
// mutates it.
type Session struct {
	ID           uuid.UUID
	RoomCode     string
	Mode         int // duration selector in minutes
	Questions    []Question
	Players      map[string]*PlayerState
	HostIdentity string
	Status       SessionStatus
	EndReason    EndReason
	CreatedAt    time.Time
	StartedAt    time.Time
	EndedAt      time.Time

	nextJoinOrder int
}

// NewSession creates a session in the waiting state.
func NewSession(roomCode string, mode int, questions []Question, now time.Time) *Session {
	return &Session{
		ID:        uuid.New(),
		RoomCode:  roomCode,
		Mode:      mode,
		Questions: questions,
		Players:   make(map[string]*PlayerState),
		Status:    StatusWaiting,
		CreatedAt: now,
	}
}

// Duration is the configured session length derived from Mode.
func (s *Session) Duration() time.Duration {
	return time.Duration(s.Mode) * time.Minute
}

// TimeLeft derives the remaining seconds from wall clock and StartedAt.
// It is a pure function of now, so pulled reads and tick broadcasts always
// agree; nothing decrements a counter by side effect.
func (s *Session) TimeLeft(now time.Time) int {
	switch s.Status {
	case StatusWaiting:
		return int(s.Duration().Seconds())
	case StatusEnded:
		return 0
	}
	remaining := int(s.StartedAt.Add(s.Duration()).Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AddPlayer registers a durable player identity. Adding an identity that is
// already present returns the existing state untouched.
func (s *Session) AddPlayer(identity string, now time.Time) *PlayerState {
	if ps, ok := s.Players[identity]; ok {
		return ps
	}
	ps := &PlayerState{
		Identity:  identity,
		JoinOrder: s.nextJoinOrder,
		JoinedAt:  now,
	}
	s.nextJoinOrder++
	s.Players[identity] = ps
	if s.HostIdentity == "" {
		s.HostIdentity = identity
	}
	return ps
}

// RemovePlayer drops an identity from the session. If the host leaves, the
// earliest remaining joiner becomes host.
func (s *Session) RemovePlayer(identity string) {
	delete(s.Players, identity)
	if s.HostIdentity != identity {
		return
	}
	s.HostIdentity = ""
	for _, ps := range s.Players {
		if s.HostIdentity == "" || ps.JoinOrder < s.Players[s.HostIdentity].JoinOrder {
			s.HostIdentity = ps.Identity
		}
	}
}

// AllFinished reports whether every player has exhausted the question set.
func (s *Session) AllFinished() bool {
	if len(s.Players) == 0 {
		return false
	}
	for _, ps := range s.Players {
		if ps.CurrentIndex < len(s.Questions) {
			return false
		}
	}
	return true
}

// Progress returns every player's progress sorted by join order.
func (s *Session) Progress() []PlayerProgress {
	states := make([]*PlayerState, 0, len(s.Players))
	for _, ps := range s.Players {
		states = append(states, ps)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].JoinOrder < states[j].JoinOrder
	})
	progress := make([]PlayerProgress, 0, len(states))
	for _, ps := range states {
		progress = append(progress, PlayerProgress{
			Identity:     ps.Identity,
			Score:        ps.Score,
			CurrentIndex: ps.CurrentIndex,
		})
	}
	return progress
}

// Rematch builds a replacement session for the same room: fresh questions,
// the same players with reset progress and preserved join order. The old
// session object is left untouched so its observers never see a
// half-migrated state.
func (s *Session) Rematch(questions []Question, now time.Time) *Session {
	next := NewSession(s.RoomCode, s.Mode, questions, now)
	next.HostIdentity = s.HostIdentity
	next.nextJoinOrder = s.nextJoinOrder
	for identity, ps := range s.Players {
		next.Players[identity] = &PlayerState{
			Identity:  identity,
			JoinOrder: ps.JoinOrder,
			JoinedAt:  now,
		}
	}
	return next
}
