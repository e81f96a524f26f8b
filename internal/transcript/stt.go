package transcript

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/cadence/pkg/provider/stt"
)

// STTSource adapts a streaming [stt.Provider]. Every subscription opens a
// fresh provider session and feeds it the shared Audio channel, so audio
// keeps flowing across resubscriptions.
type STTSource struct {
	// Provider opens recognizer sessions.
	Provider stt.Provider

	// Config is passed to every StartStream call.
	Config stt.StreamConfig

	// Audio delivers raw PCM chunks. A nil channel sends no audio.
	Audio <-chan []byte

	// Now stamps ArrivedAt. Defaults to time.Now.
	Now func() time.Time
}

// Subscribe starts a provider session.
func (s *STTSource) Subscribe(ctx context.Context) (Stream, error) {
	h, err := s.Provider.StartStream(ctx, s.Config)
	if err != nil {
		return nil, fmt.Errorf("transcript: start stt stream: %w", err)
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}
	st := &sttStream{
		handle:  h,
		now:     now,
		events:  make(chan Event, 16),
		audioEr: make(chan error, 1),
		done:    make(chan struct{}),
	}
	st.wg.Add(2)
	go st.pumpAudio(s.Audio)
	go st.pumpTranscripts()
	return st, nil
}

type sttStream struct {
	handle  stt.SessionHandle
	now     func() time.Time
	events  chan Event
	audioEr chan error

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (s *sttStream) Events() <-chan Event { return s.events }

// Close stops both pumps and closes the provider session.
func (s *sttStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.handle.Close()
		s.wg.Wait()
	})
	return err
}

func (s *sttStream) pumpAudio(audio <-chan []byte) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case chunk, ok := <-audio:
			if !ok {
				return
			}
			if err := s.handle.SendAudio(chunk); err != nil {
				s.audioEr <- fmt.Errorf("%w: send audio: %v", ErrTransient, err)
				return
			}
		}
	}
}

// pumpTranscripts forwards partials as interim events and finals as ranked
// candidate events. It owns and closes the events channel.
func (s *sttStream) pumpTranscripts() {
	defer s.wg.Done()
	defer close(s.events)

	partials := s.handle.Partials()
	finals := s.handle.Finals()
	for {
		var ev Event
		select {
		case <-s.done:
			return
		case err := <-s.audioEr:
			ev = Event{ArrivedAt: s.now(), Err: err}
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if t.Text == "" {
				continue
			}
			ev = Event{Candidates: []string{t.Text}, ArrivedAt: s.now(), Interim: true}
		case t, ok := <-finals:
			if !ok {
				return
			}
			cands := t.Candidates()
			if len(cands) == 0 {
				continue
			}
			ev = Event{Candidates: cands, ArrivedAt: s.now()}
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}
