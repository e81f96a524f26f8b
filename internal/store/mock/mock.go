// Package mock provides a configurable test double for [store.Store].
//
// The mock records every call and keeps saved sessions in memory through a
// [store.MemStore], so reads reflect earlier writes. Exported *Err fields
// force failures:
//
//	st := &mock.Store{SaveErr: errors.New("disk full")}
//	// inject st into the system under test …
//	if got := st.CallCount("SaveSession"); got != 1 { … }
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/cadence/internal/session"
	"github.com/MrWong99/cadence/internal/store"
)

var _ store.Store = (*Store)(nil)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a test double for [store.Store].
type Store struct {
	mu    sync.Mutex
	calls []Call
	mem   *store.MemStore

	// SaveErr is returned by SaveSession when non-nil. Nothing is saved.
	SaveErr error

	// ReadErr is returned by every read method when non-nil.
	ReadErr error

	// PingErr is returned by Ping when non-nil.
	PingErr error
}

func (s *Store) record(method string, args ...any) *store.MemStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: method, Args: args})
	if s.mem == nil {
		s.mem = store.NewMemStore()
	}
	return s.mem
}

// Calls returns a copy of all recorded calls in order.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount returns how many times method was called.
func (s *Store) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Saved returns the summaries passed to SaveSession, including failed calls.
func (s *Store) Saved() []session.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []session.Summary
	for _, c := range s.calls {
		if c.Method == "SaveSession" {
			out = append(out, c.Args[0].(session.Summary))
		}
	}
	return out
}

// SaveSession implements [store.Store].
func (s *Store) SaveSession(ctx context.Context, sum session.Summary) error {
	mem := s.record("SaveSession", sum)
	if s.SaveErr != nil {
		return s.SaveErr
	}
	return mem.SaveSession(ctx, sum)
}

// BestScore implements [store.Store].
func (s *Store) BestScore(ctx context.Context, songID string) (store.Best, bool, error) {
	mem := s.record("BestScore", songID)
	if s.ReadErr != nil {
		return store.Best{}, false, s.ReadErr
	}
	return mem.BestScore(ctx, songID)
}

// BestScores implements [store.Store].
func (s *Store) BestScores(ctx context.Context) (map[string]store.Best, error) {
	mem := s.record("BestScores")
	if s.ReadErr != nil {
		return nil, s.ReadErr
	}
	return mem.BestScores(ctx)
}

// ClearedSongs implements [store.Store].
func (s *Store) ClearedSongs(ctx context.Context) ([]string, error) {
	mem := s.record("ClearedSongs")
	if s.ReadErr != nil {
		return nil, s.ReadErr
	}
	return mem.ClearedSongs(ctx)
}

// RecentSessions implements [store.Store].
func (s *Store) RecentSessions(ctx context.Context, songID string, limit int) ([]session.Summary, error) {
	mem := s.record("RecentSessions", songID, limit)
	if s.ReadErr != nil {
		return nil, s.ReadErr
	}
	return mem.RecentSessions(ctx, songID, limit)
}

// Ping implements [store.Store].
func (s *Store) Ping(context.Context) error {
	s.record("Ping")
	return s.PingErr
}
