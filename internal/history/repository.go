package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/duelmath/duelmath/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS match_history (
    id           BIGSERIAL PRIMARY KEY,
    session_id   UUID        NOT NULL,
    room_code    TEXT        NOT NULL,
    mode         INT         NOT NULL,
    reason       TEXT        NOT NULL,
    started_at   TIMESTAMPTZ NOT NULL,
    ended_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS match_results (
    id            BIGSERIAL PRIMARY KEY,
    session_id    UUID NOT NULL,
    identity      TEXT NOT NULL,
    score         INT  NOT NULL,
    current_index INT  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_match_results_session ON match_results (session_id);
`

// Repository persists finished matches to Postgres. It is write-only from
// the room workers' point of view; reads belong to reporting surfaces
// outside this service.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the history tables if they do not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure match history schema: %w", err)
	}
	return nil
}

// RecordMatch inserts one finished match and its per-player results.
// Implements room.MatchRecorder.
func (r *Repository) RecordMatch(ctx context.Context, rec models.MatchRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin match insert: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO match_history (session_id, room_code, mode, reason, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.SessionID, rec.RoomCode, rec.Mode, string(rec.Reason), rec.StartedAt, rec.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}

	for _, result := range rec.Results {
		_, err = tx.Exec(ctx,
			`INSERT INTO match_results (session_id, identity, score, current_index)
			 VALUES ($1, $2, $3, $4)`,
			rec.SessionID, result.Identity, result.Score, result.CurrentIndex,
		)
		if err != nil {
			return fmt.Errorf("insert match result for %s: %w", result.Identity, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit match insert: %w", err)
	}

	log.Debug().
		Str("room", rec.RoomCode).
		Str("session", rec.SessionID.String()).
		Int("players", len(rec.Results)).
		Msg("match recorded")
	return nil
}
