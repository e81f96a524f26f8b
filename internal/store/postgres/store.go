package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/cadence/internal/observe"
	"github.com/MrWong99/cadence/internal/scoring"
	"github.com/MrWong99/cadence/internal/session"
	"github.com/MrWong99/cadence/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store implements [store.Store] on PostgreSQL. All operations are safe for
// concurrent use.
type Store struct {
	pool    *pgxpool.Pool
	metrics *observe.Metrics
}

// Option configures a [Store].
type Option func(*Store)

// WithMetrics records operation latency on m instead of the default metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore connects to the PostgreSQL database at dsn, verifies the
// connection and runs [Migrate].
func NewStore(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: %w", err)
	}

	s := &Store{pool: pool}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping implements [store.Store].
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveSession implements [store.Store]. The session row and its hit results
// are written in one transaction; a session id that already exists is left
// untouched.
func (s *Store) SaveSession(ctx context.Context, sum session.Summary) (err error) {
	if err := store.CheckSavable(sum); err != nil {
		return err
	}
	defer s.observe(ctx, "save_session", time.Now(), &err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const q = `
		INSERT INTO practice_sessions
		    (id, song_id, score, final_combo, max_combo, perfect, great, good, miss,
		     total_notes, accuracy, grade, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`

	tag, err := tx.Exec(ctx, q,
		sum.SessionID,
		sum.SongID,
		sum.Score,
		sum.Combo,
		sum.MaxCombo,
		sum.Counts.Perfect,
		sum.Counts.Great,
		sum.Counts.Good,
		sum.Counts.Miss,
		sum.TotalNotes,
		sum.Accuracy,
		string(sum.Grade),
		sum.StartedAt,
		sum.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres store: insert session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	if len(sum.Results) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"hit_results"},
			[]string{
				"session_id", "note_index", "word", "spoken", "match_kind", "rating",
				"pronunciation_accuracy", "timing_accuracy", "timing_delta_ns", "points", "finalized_at",
			},
			pgx.CopyFromSlice(len(sum.Results), func(i int) ([]any, error) {
				r := sum.Results[i]
				return []any{
					sum.SessionID,
					r.Index,
					r.Word,
					r.Spoken,
					int16(r.Match),
					int16(r.Rating),
					r.PronunciationAccuracy,
					r.TimingAccuracy,
					r.TimingDelta.Nanoseconds(),
					r.Points,
					r.At,
				}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("postgres store: copy hit results: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: commit: %w", err)
	}
	return nil
}

const bestColumns = `song_id, id, score, max_combo, accuracy, grade, ended_at`

// BestScore implements [store.Store].
func (s *Store) BestScore(ctx context.Context, songID string) (b store.Best, ok bool, err error) {
	defer s.observe(ctx, "best_score", time.Now(), &err)

	q := `
		SELECT ` + bestColumns + `
		FROM   practice_sessions
		WHERE  song_id = $1
		ORDER  BY score DESC, ended_at
		LIMIT  1`

	b, err = scanBest(s.pool.QueryRow(ctx, q, songID))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Best{}, false, nil
	}
	if err != nil {
		return store.Best{}, false, fmt.Errorf("postgres store: best score: %w", err)
	}
	return b, true, nil
}

// BestScores implements [store.Store].
func (s *Store) BestScores(ctx context.Context) (out map[string]store.Best, err error) {
	defer s.observe(ctx, "best_scores", time.Now(), &err)

	q := `
		SELECT DISTINCT ON (song_id) ` + bestColumns + `
		FROM   practice_sessions
		ORDER  BY song_id, score DESC, ended_at`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres store: best scores: %w", err)
	}
	bests, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Best, error) {
		return scanBest(row)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan best scores: %w", err)
	}
	out = make(map[string]store.Best, len(bests))
	for _, b := range bests {
		out[b.SongID] = b
	}
	return out, nil
}

// ClearedSongs implements [store.Store].
func (s *Store) ClearedSongs(ctx context.Context) (ids []string, err error) {
	defer s.observe(ctx, "cleared_songs", time.Now(), &err)

	const q = `
		SELECT DISTINCT song_id
		FROM   practice_sessions
		WHERE  grade <> $1
		ORDER  BY song_id`

	rows, err := s.pool.Query(ctx, q, string(session.GradeD))
	if err != nil {
		return nil, fmt.Errorf("postgres store: cleared songs: %w", err)
	}
	ids, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan cleared songs: %w", err)
	}
	return ids, nil
}

// RecentSessions implements [store.Store].
func (s *Store) RecentSessions(ctx context.Context, songID string, limit int) (out []session.Summary, err error) {
	defer s.observe(ctx, "recent_sessions", time.Now(), &err)

	args := []any{songID}
	q := `
		SELECT id, song_id, score, final_combo, max_combo, perfect, great, good, miss,
		       total_notes, accuracy, grade, started_at, ended_at
		FROM   practice_sessions
		WHERE  $1::text = '' OR song_id = $1
		ORDER  BY ended_at DESC`
	if limit > 0 {
		args = append(args, limit)
		q += "\n\t\tLIMIT  $2"
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: recent sessions: %w", err)
	}
	out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (session.Summary, error) {
		var (
			sum   session.Summary
			grade string
		)
		if err := row.Scan(
			&sum.SessionID,
			&sum.SongID,
			&sum.Score,
			&sum.Combo,
			&sum.MaxCombo,
			&sum.Counts.Perfect,
			&sum.Counts.Great,
			&sum.Counts.Good,
			&sum.Counts.Miss,
			&sum.TotalNotes,
			&sum.Accuracy,
			&grade,
			&sum.StartedAt,
			&sum.EndedAt,
		); err != nil {
			return session.Summary{}, err
		}
		sum.Grade = session.Grade(grade)
		return sum, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan recent sessions: %w", err)
	}
	return out, nil
}

// Results loads the per-note results of one session ordered by note index.
func (s *Store) Results(ctx context.Context, sessionID string) (out []session.HitResult, err error) {
	defer s.observe(ctx, "results", time.Now(), &err)

	const q = `
		SELECT note_index, word, spoken, match_kind, rating, pronunciation_accuracy,
		       timing_accuracy, timing_delta_ns, points, finalized_at
		FROM   hit_results
		WHERE  session_id = $1
		ORDER  BY note_index`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: results: %w", err)
	}
	out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (session.HitResult, error) {
		var (
			r             session.HitResult
			match, rating int16
			deltaNS       int64
		)
		if err := row.Scan(
			&r.Index,
			&r.Word,
			&r.Spoken,
			&match,
			&rating,
			&r.PronunciationAccuracy,
			&r.TimingAccuracy,
			&deltaNS,
			&r.Points,
			&r.At,
		); err != nil {
			return session.HitResult{}, err
		}
		r.Match = scoring.MatchKind(match)
		r.Rating = scoring.Rating(rating)
		r.TimingDelta = time.Duration(deltaNS)
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan results: %w", err)
	}
	return out, nil
}

func scanBest(row pgx.Row) (store.Best, error) {
	var (
		b     store.Best
		grade string
	)
	if err := row.Scan(&b.SongID, &b.SessionID, &b.Score, &b.MaxCombo, &b.Accuracy, &grade, &b.EndedAt); err != nil {
		return store.Best{}, err
	}
	b.Grade = session.Grade(grade)
	return b, nil
}

func (s *Store) observe(ctx context.Context, op string, start time.Time, err *error) {
	s.metrics.RecordStoreOp(ctx, op, time.Since(start), *err)
}
