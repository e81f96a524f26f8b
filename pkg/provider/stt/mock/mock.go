// Package mock provides hand-written doubles for [stt.Provider] and
// [stt.SessionHandle].
//
// Tests own the transcript channels of a [Session]: they push the results
// the consumer should see and close the channels to end the stream.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/cadence/pkg/provider/stt"
)

var (
	_ stt.Provider      = (*Provider)(nil)
	_ stt.SessionHandle = (*Session)(nil)
)

// StartStreamCall is one recorded StartStream invocation.
type StartStreamCall struct {
	Ctx context.Context
	Cfg stt.StreamConfig
}

// Provider returns Session from StartStream, or a fresh buffered Session
// when Session is nil.
type Provider struct {
	mu sync.Mutex

	Session        stt.SessionHandle
	StartStreamErr error

	StartStreamCalls []StartStreamCall
}

func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	switch {
	case p.StartStreamErr != nil:
		return nil, p.StartStreamErr
	case p.Session != nil:
		return p.Session, nil
	}
	return &Session{
		PartialsCh: make(chan stt.Transcript, 16),
		FinalsCh:   make(chan stt.Transcript, 16),
	}, nil
}

// Session records audio, keyword updates and closes. Close does not close
// the transcript channels.
type Session struct {
	mu sync.Mutex

	PartialsCh chan stt.Transcript
	FinalsCh   chan stt.Transcript

	SendAudioErr   error
	SetKeywordsErr error
	CloseErr       error

	Audio          [][]byte
	Keywords       [][]stt.KeywordBoost
	CloseCallCount int
}

func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Audio = append(s.Audio, slices.Clone(chunk))
	return s.SendAudioErr
}

// SendAudioCallCount returns how many chunks were sent.
func (s *Session) SendAudioCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Audio)
}

func (s *Session) Partials() <-chan stt.Transcript { return s.PartialsCh }

func (s *Session) Finals() <-chan stt.Transcript { return s.FinalsCh }

func (s *Session) SetKeywords(keywords []stt.KeywordBoost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Keywords = append(s.Keywords, slices.Clone(keywords))
	return s.SetKeywordsErr
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}
