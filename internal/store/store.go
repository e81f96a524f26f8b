// Package store persists the outcome of finished practice sessions and
// answers the questions song selection needs: the best score per song and
// which songs were cleared.
//
// Only sessions that ended normally are stored. An aborted session has no
// summary and [Store.SaveSession] rejects anything that did not end.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/cadence/internal/session"
)

// ErrNotEnded is returned by SaveSession for a summary without an end time,
// which is what an aborted or still running session yields.
var ErrNotEnded = errors.New("store: session has not ended")

// Best is the highest scoring session of one song.
type Best struct {
	SongID    string
	SessionID string
	Score     int
	MaxCombo  int
	Accuracy  float64
	Grade     session.Grade
	EndedAt   time.Time
}

// Store is the result persistence contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// SaveSession persists an ended session and its per-note results. Saving
	// the same session id twice is a no-op.
	SaveSession(ctx context.Context, sum session.Summary) error

	// BestScore returns the best session of songID. The bool is false when
	// the song was never finished.
	BestScore(ctx context.Context, songID string) (Best, bool, error)

	// BestScores returns the best session of every finished song keyed by
	// song id.
	BestScores(ctx context.Context) (map[string]Best, error)

	// ClearedSongs returns the ids of songs with at least one passing grade,
	// sorted.
	ClearedSongs(ctx context.Context) ([]string, error)

	// RecentSessions returns up to limit sessions, newest first. An empty
	// songID spans all songs. Per-note results are not loaded.
	RecentSessions(ctx context.Context, songID string, limit int) ([]session.Summary, error)

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
}

// CheckSavable returns [ErrNotEnded] unless sum describes an ended session.
func CheckSavable(sum session.Summary) error {
	if sum.SessionID == "" || sum.EndedAt.IsZero() {
		return ErrNotEnded
	}
	return nil
}

// Better reports whether a beats b. Higher score wins, then the earlier
// session.
func Better(a, b Best) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.EndedAt.Before(b.EndedAt)
}

// BestOf extracts the [Best] fields of an ended session.
func BestOf(sum session.Summary) Best {
	return Best{
		SongID:    sum.SongID,
		SessionID: sum.SessionID,
		Score:     sum.Score,
		MaxCombo:  sum.MaxCombo,
		Accuracy:  sum.Accuracy,
		Grade:     sum.Grade,
		EndedAt:   sum.EndedAt,
	}
}
