// Package transcript turns speech recognition output into the candidate
// event stream consumed by the practice engine.
//
// A [Source] opens a [Stream] of [Event] values. Each final event carries a
// ranked list of candidate strings and the instant it arrived; interim events
// carry what the recognizer is currently hearing and are only displayed.
// Sources may fail transiently: an event with a non-nil Err, or a stream that
// closes, ends the current subscription. The [Subscriber] owns a source for
// the lifetime of a session and resubscribes with backoff until the session
// stops or the source reports [ErrExhausted].
package transcript

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrExhausted is returned by Subscribe, or carried by an event, when a
	// source will never produce events again (e.g. its input hit EOF).
	ErrExhausted = errors.New("transcript: source exhausted")

	// ErrTransient marks a recoverable recognizer failure such as "no speech
	// detected". The subscription is restarted.
	ErrTransient = errors.New("transcript: transient source error")
)

// Event is one transcription result.
type Event struct {
	// Candidates are the recognition hypotheses in rank order.
	Candidates []string

	// ArrivedAt is when the result reached cadence.
	ArrivedAt time.Time

	// Interim marks a live hypothesis that must never be matched.
	Interim bool

	// Err is set on error events, which carry no candidates.
	Err error
}

// Stream is one subscription to a Source.
type Stream interface {
	// Events is closed when the subscription ends.
	Events() <-chan Event

	// Close ends the subscription. It is safe to call more than once.
	Close() error
}

// Source opens subscriptions. At most one stream of a source is open at a
// time.
type Source interface {
	Subscribe(ctx context.Context) (Stream, error)
}
