// Package stt defines the Provider interface for streaming Speech-to-Text
// backends.
//
// A provider wraps a real-time transcription service (e.g. Deepgram) behind a
// uniform streaming interface. Once opened, a [SessionHandle] accepts raw PCM
// audio frames and emits two streams of [Transcript] values: low-latency
// partials for live feedback and authoritative finals that carry the ranked
// recognition hypotheses used for matching.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrNotSupported is returned by optional operations a provider cannot
// perform.
var ErrNotSupported = errors.New("stt: operation not supported")

// StreamConfig describes the audio format and recognition hints for a new
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz (e.g. 16000).
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag (e.g. "en-US"). Empty lets the
	// provider detect the language if it can.
	Language string

	// Alternatives is the number of ranked hypotheses requested per final
	// transcript. Zero or one means only the best hypothesis.
	Alternatives int

	// Keywords raises the recognition probability of the song's target words.
	Keywords []KeywordBoost
}

// SessionHandle is an open streaming session.
//
// Callers must call Close when done. All methods must be safe for concurrent
// use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio matching the StreamConfig.
	// Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials emits interim hypotheses. They drive live display only and
	// are never matched. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals emits committed results. Closed when the session ends.
	Finals() <-chan Transcript

	// SetKeywords replaces the keyword boost list. Providers that cannot
	// update keywords mid-session return [ErrNotSupported].
	SetKeywords(keywords []KeywordBoost) error

	// Close terminates the session and releases its resources. Partials and
	// Finals are closed afterwards. Calling Close more than once returns nil.
	Close() error
}

// Provider opens streaming sessions.
type Provider interface {
	// StartStream opens a session ready to accept audio immediately. The
	// caller owns the returned handle.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
