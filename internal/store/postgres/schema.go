// Package postgres provides a PostgreSQL-backed [store.Store].
//
// Sessions live in practice_sessions, one row per ended session, and their
// per-note outcomes in hit_results. Both tables share a single
// [pgxpool.Pool]; [Migrate] creates them idempotently.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
//
//	_ = st.SaveSession(ctx, summary)
//	best, ok, _ := st.BestScore(ctx, "happy_vibes")
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlPracticeSessions = `
CREATE TABLE IF NOT EXISTS practice_sessions (
    id           TEXT              PRIMARY KEY,
    song_id      TEXT              NOT NULL,
    score        INTEGER           NOT NULL,
    final_combo  INTEGER           NOT NULL,
    max_combo    INTEGER           NOT NULL,
    perfect      INTEGER           NOT NULL,
    great        INTEGER           NOT NULL,
    good         INTEGER           NOT NULL,
    miss         INTEGER           NOT NULL,
    total_notes  INTEGER           NOT NULL,
    accuracy     DOUBLE PRECISION  NOT NULL,
    grade        TEXT              NOT NULL,
    started_at   TIMESTAMPTZ       NOT NULL,
    ended_at     TIMESTAMPTZ       NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_practice_sessions_song_score
    ON practice_sessions (song_id, score DESC, ended_at);

CREATE INDEX IF NOT EXISTS idx_practice_sessions_ended_at
    ON practice_sessions (ended_at DESC);
`

const ddlHitResults = `
CREATE TABLE IF NOT EXISTS hit_results (
    session_id              TEXT         NOT NULL REFERENCES practice_sessions (id) ON DELETE CASCADE,
    note_index              INTEGER      NOT NULL,
    word                    TEXT         NOT NULL,
    spoken                  TEXT         NOT NULL DEFAULT '',
    match_kind              SMALLINT     NOT NULL,
    rating                  SMALLINT     NOT NULL,
    pronunciation_accuracy  INTEGER      NOT NULL,
    timing_accuracy         INTEGER      NOT NULL,
    timing_delta_ns         BIGINT       NOT NULL,
    points                  INTEGER      NOT NULL,
    finalized_at            TIMESTAMPTZ  NOT NULL,
    PRIMARY KEY (session_id, note_index)
);
`

// Migrate creates the result tables and indexes if they do not exist. It is
// safe to call on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []struct {
		name string
		sql  string
	}{
		{"practice_sessions", ddlPracticeSessions},
		{"hit_results", ddlHitResults},
	} {
		if _, err := pool.Exec(ctx, ddl.sql); err != nil {
			return fmt.Errorf("migrate %s: %w", ddl.name, err)
		}
	}
	return nil
}
