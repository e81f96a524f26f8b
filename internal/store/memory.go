package store

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/cadence/internal/session"
)

var _ Store = (*MemStore)(nil)

// MemStore keeps results in process memory. It backs the CLI when no
// database is configured.
type MemStore struct {
	mu       sync.RWMutex
	sessions []session.Summary
	seen     map[string]struct{}
}

// NewMemStore returns an empty [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{seen: make(map[string]struct{})}
}

// SaveSession implements [Store].
func (m *MemStore) SaveSession(_ context.Context, sum session.Summary) error {
	if err := CheckSavable(sum); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[sum.SessionID]; ok {
		return nil
	}
	m.seen[sum.SessionID] = struct{}{}
	sum.Results = slices.Clone(sum.Results)
	m.sessions = append(m.sessions, sum)
	return nil
}

// BestScore implements [Store].
func (m *MemStore) BestScore(ctx context.Context, songID string) (Best, bool, error) {
	all, err := m.BestScores(ctx)
	if err != nil {
		return Best{}, false, err
	}
	b, ok := all[songID]
	return b, ok, nil
}

// BestScores implements [Store].
func (m *MemStore) BestScores(context.Context) (map[string]Best, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Best)
	for _, s := range m.sessions {
		b := BestOf(s)
		if cur, ok := out[s.SongID]; !ok || Better(b, cur) {
			out[s.SongID] = b
		}
	}
	return out, nil
}

// ClearedSongs implements [Store].
func (m *MemStore) ClearedSongs(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, s := range m.sessions {
		if s.Grade.Passed() && !slices.Contains(ids, s.SongID) {
			ids = append(ids, s.SongID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// RecentSessions implements [Store].
func (m *MemStore) RecentSessions(_ context.Context, songID string, limit int) ([]session.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []session.Summary
	for _, s := range m.sessions {
		if songID != "" && s.SongID != songID {
			continue
		}
		s.Results = nil
		out = append(out, s)
	}
	slices.SortStableFunc(out, func(a, b session.Summary) int { return b.EndedAt.Compare(a.EndedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping implements [Store]. It never fails.
func (m *MemStore) Ping(context.Context) error { return nil }
