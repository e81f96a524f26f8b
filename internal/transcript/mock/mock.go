// Package mock provides test doubles for the transcript package.
//
// A [Source] hands out pre-built [Stream] values in order. Tests push events
// into a stream's Ch and close it (or call [Stream.Fail]) to end the
// subscription:
//
//	st := mock.NewStream(4)
//	src := &mock.Source{Streams: []*mock.Stream{st}}
//	st.Ch <- transcript.Event{Candidates: []string{"cat"}, ArrivedAt: now}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/cadence/internal/transcript"
)

// Source is a mock implementation of transcript.Source.
type Source struct {
	mu sync.Mutex

	// Streams are returned by successive Subscribe calls.
	Streams []*Stream

	// SubscribeErrs, when non-empty, are returned (and consumed) before any
	// stream is handed out.
	SubscribeErrs []error

	// BlockWhenEmpty makes Subscribe block until ctx is done once Streams is
	// used up, instead of returning transcript.ErrExhausted.
	BlockWhenEmpty bool

	// SubscribeCalls counts Subscribe invocations.
	SubscribeCalls int
}

// Subscribe returns the next scripted error or stream.
func (s *Source) Subscribe(ctx context.Context) (transcript.Stream, error) {
	s.mu.Lock()
	s.SubscribeCalls++
	if len(s.SubscribeErrs) > 0 {
		err := s.SubscribeErrs[0]
		s.SubscribeErrs = s.SubscribeErrs[1:]
		s.mu.Unlock()
		return nil, err
	}
	if len(s.Streams) > 0 {
		st := s.Streams[0]
		s.Streams = s.Streams[1:]
		s.mu.Unlock()
		return st, nil
	}
	block := s.BlockWhenEmpty
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, transcript.ErrExhausted
}

// Calls returns SubscribeCalls. Thread-safe.
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SubscribeCalls
}

var _ transcript.Source = (*Source)(nil)

// Stream is a mock implementation of transcript.Stream.
type Stream struct {
	// Ch is returned by Events. Tests send to and close it.
	Ch chan transcript.Event

	mu         sync.Mutex
	closeCalls int
}

// NewStream returns a Stream with a buffered channel of size n.
func NewStream(n int) *Stream {
	return &Stream{Ch: make(chan transcript.Event, n)}
}

// Events returns Ch.
func (s *Stream) Events() <-chan transcript.Event { return s.Ch }

// Close records the call.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return nil
}

// CloseCalls returns the number of Close calls. Thread-safe.
func (s *Stream) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

// Fail sends an error event carrying err.
func (s *Stream) Fail(err error) {
	s.Ch <- transcript.Event{Err: err}
}

var _ transcript.Stream = (*Stream)(nil)
