package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/cadence/internal/scoring"
	"github.com/MrWong99/cadence/internal/session"
	"github.com/MrWong99/cadence/internal/store"
	"github.com/MrWong99/cadence/internal/store/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if CADENCE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("CADENCE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CADENCE_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
// It calls t.Cleanup to close the store when the test finishes.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS hit_results CASCADE",
		"DROP TABLE IF EXISTS practice_sessions CASCADE",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema %q: %v", stmt, err)
		}
	}

	st, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(st.Close)
	return st
}

var t0 = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

func summary(id, song string, score int, grade session.Grade, ended time.Duration) session.Summary {
	return session.Summary{
		SessionID:  id,
		SongID:     song,
		Score:      score,
		Combo:      0,
		MaxCombo:   1,
		Counts:     session.Counts{Perfect: 1, Miss: 1},
		TotalNotes: 2,
		Accuracy:   50,
		Grade:      grade,
		StartedAt:  t0,
		EndedAt:    t0.Add(ended),
		Results: []session.HitResult{
			{
				Index: 0, Word: "cat", Spoken: "the cat", Match: scoring.MatchSubstring,
				PronunciationAccuracy: 70, TimingAccuracy: 100, TimingDelta: 120 * time.Millisecond,
				Points: score, Rating: scoring.Great, At: t0.Add(2 * time.Second),
			},
			{Index: 1, Word: "dog", Rating: scoring.Miss, At: t0.Add(5 * time.Second)},
		},
	}
}

func TestStore_SaveAndReadBack(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sum := summary("s1", "happy_vibes", 80, session.GradeD, time.Minute)
	if err := st.SaveSession(ctx, sum); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := st.SaveSession(ctx, sum); err != nil {
		t.Fatalf("SaveSession duplicate: %v", err)
	}

	results, err := st.Results(ctx, "s1")
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Results: want 2, got %d", len(results))
	}
	r := results[0]
	if r.Spoken != "the cat" || r.Match != scoring.MatchSubstring || r.Rating != scoring.Great {
		t.Errorf("result 0 = %+v", r)
	}
	if r.TimingDelta != 120*time.Millisecond {
		t.Errorf("TimingDelta: want 120ms, got %v", r.TimingDelta)
	}

	recent, err := st.RecentSessions(ctx, "", 10)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("RecentSessions: want 1, got %d", len(recent))
	}
	got := recent[0]
	if got.Score != 80 || got.Counts.Perfect != 1 || got.Grade != session.GradeD || !got.EndedAt.Equal(sum.EndedAt) {
		t.Errorf("recent session = %+v", got)
	}
}

func TestStore_RejectsUnended(t *testing.T) {
	st := newTestStore(t)
	if err := st.SaveSession(context.Background(), session.Summary{}); !errors.Is(err, store.ErrNotEnded) {
		t.Errorf("SaveSession(aborted) error = %v, want ErrNotEnded", err)
	}
}

func TestStore_BestScoresAndCleared(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for _, s := range []session.Summary{
		summary("a", "happy_vibes", 500, session.GradeB, time.Minute),
		summary("b", "happy_vibes", 900, session.GradeS, 2*time.Minute),
		summary("c", "daily_routine", 100, session.GradeD, 3*time.Minute),
	} {
		if err := st.SaveSession(ctx, s); err != nil {
			t.Fatalf("SaveSession(%s): %v", s.SessionID, err)
		}
	}

	best, ok, err := st.BestScore(ctx, "happy_vibes")
	if err != nil || !ok {
		t.Fatalf("BestScore = %v, %v", ok, err)
	}
	if best.SessionID != "b" || best.Score != 900 || best.Grade != session.GradeS {
		t.Errorf("best = %+v, want session b", best)
	}
	if _, ok, err := st.BestScore(ctx, "unknown"); ok || err != nil {
		t.Errorf("BestScore(unknown) = %v, %v; want false, nil", ok, err)
	}

	all, err := st.BestScores(ctx)
	if err != nil {
		t.Fatalf("BestScores: %v", err)
	}
	if len(all) != 2 || all["daily_routine"].SessionID != "c" {
		t.Errorf("BestScores = %+v", all)
	}

	cleared, err := st.ClearedSongs(ctx)
	if err != nil {
		t.Fatalf("ClearedSongs: %v", err)
	}
	if len(cleared) != 1 || cleared[0] != "happy_vibes" {
		t.Errorf("ClearedSongs = %v, want [happy_vibes]", cleared)
	}

	recent, err := st.RecentSessions(ctx, "happy_vibes", 1)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(recent) != 1 || recent[0].SessionID != "b" {
		t.Errorf("RecentSessions(happy_vibes, 1) = %+v, want session b", recent)
	}
	if err := st.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
