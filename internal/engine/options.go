package engine

import (
	"log/slog"
	"time"

	"github.com/MrWong99/cadence/internal/observe"
	"github.com/MrWong99/cadence/internal/scoring"
	"github.com/MrWong99/cadence/internal/transcript"
	"github.com/MrWong99/cadence/internal/transcript/phonetic"
)

// Defaults applied by [New].
const (
	DefaultTickInterval   = 16 * time.Millisecond
	DefaultLookaheadBeats = 5.0
	DefaultGraceBeats     = 1.0
	DefaultEventQueueSize = 32
)

// NoteHandler receives every finalized note.
type NoteHandler func(NoteEvent)

// ProgressHandler receives a progress update after every tick.
type ProgressHandler func(Progress)

// HearingHandler receives interim transcription text for live display.
type HearingHandler func(text string)

// Option configures an [Engine].
type Option func(*Engine)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithTicks drives the loop from ch instead of an internal ticker. Each
// receive runs one tick at Clock.Now().
func WithTicks(ch <-chan time.Time) Option {
	return func(e *Engine) { e.ticks = ch }
}

// WithTickInterval sets the internal ticker period. Default 16ms.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) { e.tickInterval = d }
}

// WithLookahead sets how many beats before its scheduled beat a note spawns.
// Default 5.
func WithLookahead(beats float64) Option {
	return func(e *Engine) { e.lookahead = beats }
}

// WithGrace sets how many beats after its scheduled beat a note stays open.
// Default 1.
func WithGrace(beats float64) Option {
	return func(e *Engine) { e.grace = beats }
}

// WithEventQueueSize bounds the transcription event queue. Default 32.
func WithEventQueueSize(n int) Option {
	return func(e *Engine) { e.queueSize = n }
}

// WithScorer replaces the default scoring table.
func WithScorer(s *scoring.Scorer) Option {
	return func(e *Engine) { e.scorer = s }
}

// WithMatchPolicy selects the candidate match policy. Default substring.
func WithMatchPolicy(p MatchPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithPhoneticMatcher replaces the matcher used for the phonetic policy and
// near-miss logging.
func WithPhoneticMatcher(m *phonetic.Matcher) Option {
	return func(e *Engine) { e.matcher = m }
}

// WithSource attaches a transcription source. The engine owns it for the
// session and resubscribes after transient failures.
func WithSource(src transcript.Source) Option {
	return func(e *Engine) { e.source = src }
}

// WithRestartBackoff sets the resubscription backoff bounds. Defaults
// 100ms and 2s.
func WithRestartBackoff(initial, maxBackoff time.Duration) Option {
	return func(e *Engine) {
		e.backoff = initial
		e.maxBackoff = maxBackoff
	}
}

// WithNoteHandler registers the per-note callback. It runs on the engine
// goroutine and must not block.
func WithNoteHandler(h NoteHandler) Option {
	return func(e *Engine) { e.onNote = h }
}

// WithProgressHandler registers the per-tick callback. It runs on the engine
// goroutine and must not block.
func WithProgressHandler(h ProgressHandler) Option {
	return func(e *Engine) { e.onProgress = h }
}

// WithHearingHandler registers the interim transcript callback. It runs on
// the engine goroutine and must not block.
func WithHearingHandler(h HearingHandler) Option {
	return func(e *Engine) { e.onHearing = h }
}

// WithMetrics replaces [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the base logger. Defaults to the trace-aware
// [observe.Logger] of the session span.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}
