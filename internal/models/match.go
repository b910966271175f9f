package models

import (
	"time"

	"github.com/google/uuid"
)

// PlayerResult is a player's final standing in a finished match.
type PlayerResult struct {
	Identity     string `json:"identity"`
	Score        int    `json:"score"`
	CurrentIndex int    `json:"currentIndex"`
}

// MatchRecord is the persisted summary of a finished session.
type MatchRecord struct {
	SessionID uuid.UUID      `json:"sessionId"`
	RoomCode  string         `json:"roomCode"`
	Mode      int            `json:"mode"`
	Reason    EndReason      `json:"reason"`
	StartedAt time.Time      `json:"startedAt"`
	EndedAt   time.Time      `json:"endedAt"`
	Results   []PlayerResult `json:"results"`
}

// MatchRecordFromSession snapshots a session that has just ended.
func MatchRecordFromSession(s *Session) MatchRecord {
	results := make([]PlayerResult, 0, len(s.Players))
	for _, p := range s.Progress() {
		results = append(results, PlayerResult{
			Identity:     p.Identity,
			Score:        p.Score,
			CurrentIndex: p.CurrentIndex,
		})
	}
	return MatchRecord{
		SessionID: s.ID,
		RoomCode:  s.RoomCode,
		Mode:      s.Mode,
		Reason:    s.EndReason,
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
		Results:   results,
	}
}
