// Package engine runs one rhythm practice session.
//
// An [Engine] is an actor: a single goroutine owns the note tracker and the
// session aggregate, and every mutation reaches it as a message. Three inputs
// are reconciled:
//
//   - clock ticks, which spawn notes and time them out,
//   - transcription events, queued in a bounded channel by the subscriber
//     goroutine (or by [Engine.Post]),
//   - commands from [Engine.DrainAndEnd] and [Engine.Snapshot].
//
// Each tick first finalizes an expected note whose deadline has passed, then
// spawns the next note, then drains the transcription events queued so far.
// A note therefore can never be missed and matched within the same tick, and
// a late utterance can never reopen a missed note.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/cadence/internal/observe"
	"github.com/MrWong99/cadence/internal/scoring"
	"github.com/MrWong99/cadence/internal/session"
	"github.com/MrWong99/cadence/internal/transcript"
	"github.com/MrWong99/cadence/internal/transcript/phonetic"
	"github.com/MrWong99/cadence/pkg/song"
)

var (
	// ErrAborted is returned by [Engine.Wait] for a cancelled session. An
	// aborted session has no summary and must not be persisted.
	ErrAborted = session.ErrAborted

	// ErrAlreadyStarted is returned by a second [Engine.Start].
	ErrAlreadyStarted = errors.New("engine: already started")

	// ErrNotStarted is returned by operations that need a running session.
	ErrNotStarted = errors.New("engine: not started")

	// ErrStopped is returned by [Engine.Post] after the session finished.
	ErrStopped = errors.New("engine: session stopped")
)

// NoteEvent reports one finalized note.
type NoteEvent struct {
	Note       song.Note
	Index      int
	Rating     scoring.Rating
	Points     int
	ComboAfter int
	Result     session.HitResult
}

// Progress is emitted after every tick.
type Progress struct {
	CurrentIndex int
	Total        int
	Beat         float64

	// Upcoming lists the notes inside the lookahead window for renderers.
	Upcoming []UpcomingNote
}

// Snapshot is a consistent view of a session.
type Snapshot struct {
	Progress
	State   session.State
	Summary session.Summary
}

type cmdKind int

const (
	cmdSnapshot cmdKind = iota
	cmdEnd
)

type command struct {
	kind  cmdKind
	reply chan Snapshot
}

// Engine plays one song once. Create it with [New], then call [Engine.Start]
// or [Engine.Run]. All exported methods are safe for concurrent use.
type Engine struct {
	song *song.Song

	clock        Clock
	ticks        <-chan time.Time
	tickInterval time.Duration
	lookahead    float64
	grace        float64
	queueSize    int
	scorer       *scoring.Scorer
	policy       MatchPolicy
	matcher      *phonetic.Matcher
	source       transcript.Source
	backoff      time.Duration
	maxBackoff   time.Duration
	onNote       NoteHandler
	onProgress   ProgressHandler
	onHearing    HearingHandler
	metrics      *observe.Metrics
	log          *slog.Logger

	resolver   *Resolver
	tracker    *Tracker
	sess       *session.Session
	beat       BeatClock
	supervisor Supervisor
	events     chan transcript.Event
	cmds       chan command

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once

	// Written by the loop goroutine before done is closed.
	summary session.Summary
	err     error
	last    Snapshot
}

// New validates s and returns an idle engine for it. An invalid song is
// reported as a wrapped [song.ErrInvalidSong] and never starts.
func New(s *song.Song, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("engine: %w: nil song", song.ErrInvalidSong)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		song:         s.Clone(),
		clock:        systemClock{},
		tickInterval: DefaultTickInterval,
		lookahead:    DefaultLookaheadBeats,
		grace:        DefaultGraceBeats,
		queueSize:    DefaultEventQueueSize,
		policy:       PolicySubstring,
	}
	for _, o := range opts {
		o(e)
	}

	var errs []error
	if e.tickInterval <= 0 {
		errs = append(errs, fmt.Errorf("engine: tick interval %v must be positive", e.tickInterval))
	}
	if e.lookahead < 0 {
		errs = append(errs, fmt.Errorf("engine: lookahead %.2f beats must not be negative", e.lookahead))
	}
	if e.grace < 0 {
		errs = append(errs, fmt.Errorf("engine: grace %.2f beats must not be negative", e.grace))
	}
	if e.queueSize <= 0 {
		errs = append(errs, fmt.Errorf("engine: event queue size %d must be positive", e.queueSize))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if e.scorer == nil {
		e.scorer = scoring.Default()
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	e.resolver = NewResolver(e.policy, e.matcher)
	e.tracker = NewTracker(e.song.Notes, e.lookahead)
	e.sess = session.New(e.song.ID, len(e.song.Notes))
	e.events = make(chan transcript.Event, e.queueSize)
	e.cmds = make(chan command)
	e.done = make(chan struct{})
	return e, nil
}

// SessionID returns the unique id of the session this engine plays.
func (e *Engine) SessionID() string { return e.sess.ID() }

// Song returns a copy of the song being played.
func (e *Engine) Song() *song.Song { return e.song.Clone() }

// Start begins the session at Clock.Now() and returns immediately. The
// session ends on its own once every note is finalized; cancelling ctx or
// calling [Engine.Cancel] aborts it.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return ErrAlreadyStarted
	}
	if e.sess.State() == session.Aborted {
		return ErrAborted
	}
	e.started = true

	ctx, span := observe.StartSessionSpan(ctx, e.sess.ID(), e.song.ID)
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.begin(ctx, e.clock.Now())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.loop(gctx) })
	if e.source != nil {
		sub := transcript.NewSubscriber(transcript.SubscriberConfig{
			Source:     e.source,
			Backoff:    e.backoff,
			MaxBackoff: e.maxBackoff,
			Metrics:    e.metrics,
			Logger:     e.log,
		})
		g.Go(func() error { return sub.Run(gctx, e.events) })
	}
	go func() {
		err := g.Wait()
		cancel()
		span.End()
		e.finish(err)
	}()
	return nil
}

// Run starts the session and blocks until it ends or is aborted.
func (e *Engine) Run(ctx context.Context) (session.Summary, error) {
	if err := e.Start(ctx); err != nil {
		return session.Summary{}, err
	}
	<-e.done
	return e.result()
}

// Cancel aborts the session. The ticker and the transcription subscription
// stop and [Engine.Wait] returns [ErrAborted]. Cancelling an engine that has
// not started aborts it without starting. Calling Cancel again, or after the
// session ended, does nothing.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		e.cancel()
		return
	}
	if e.sess.Abort(e.clock.Now()) {
		e.err = ErrAborted
		e.finish(nil)
	}
}

// DrainAndEnd processes the transcription events queued so far and then ends
// the session early, returning its summary. Notes never reached count against
// accuracy. Calling it again returns the same summary.
func (e *Engine) DrainAndEnd(ctx context.Context) (session.Summary, error) {
	if err := e.checkStarted(); err != nil {
		return session.Summary{}, err
	}
	select {
	case e.cmds <- command{kind: cmdEnd, reply: make(chan Snapshot, 1)}:
	case <-e.done:
	case <-ctx.Done():
		return session.Summary{}, ctx.Err()
	}
	return e.Wait(ctx)
}

// Wait blocks until the session finished and returns its summary, or
// [ErrAborted] when it was cancelled.
func (e *Engine) Wait(ctx context.Context) (session.Summary, error) {
	if err := e.checkStarted(); err != nil {
		return session.Summary{}, err
	}
	select {
	case <-e.done:
		return e.result()
	default:
	}
	select {
	case <-e.done:
		return e.result()
	case <-ctx.Done():
		return session.Summary{}, ctx.Err()
	}
}

// Done is closed once the session ended or was aborted.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Snapshot returns the current progress and running aggregate.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := e.checkStarted(); err != nil {
		return Snapshot{}, err
	}
	reply := make(chan Snapshot, 1)
	select {
	case e.cmds <- command{kind: cmdSnapshot, reply: reply}:
	case <-e.done:
		return e.last, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Post queues a transcription event, blocking while the queue is full. It is
// the push entry point for callers that deliver recognition results through
// callbacks instead of a [transcript.Source].
func (e *Engine) Post(ctx context.Context, ev transcript.Event) error {
	select {
	case <-e.done:
		return ErrStopped
	default:
	}
	select {
	case e.events <- ev:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) checkStarted() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	if e.sess.State() == session.Aborted {
		return ErrAborted
	}
	return ErrNotStarted
}

func (e *Engine) result() (session.Summary, error) {
	if e.err != nil {
		return session.Summary{}, e.err
	}
	return e.summary, nil
}

func (e *Engine) finish(err error) {
	if err != nil && e.err == nil {
		e.err = err
	}
	e.doneOnce.Do(func() { close(e.done) })
}

// begin moves the session to Running at now and anchors the beat clock.
func (e *Engine) begin(ctx context.Context, now time.Time) {
	if e.log == nil {
		e.log = observe.Logger(ctx)
	}
	e.log = e.log.With("session_id", e.sess.ID(), "song_id", e.song.ID)

	e.sess.Start(now)
	e.beat = NewBeatClock(now, e.song.BPM)
	e.supervisor = NewSupervisor(e.beat, e.grace)
	e.metrics.ActiveSessions.Add(ctx, 1)
	e.log.Info("session started", "notes", len(e.song.Notes), "bpm", e.song.BPM, "policy", e.policy.String())
}

func (e *Engine) loop(ctx context.Context) error {
	defer e.cancel()

	ticks := e.ticks
	if ticks == nil {
		t := time.NewTicker(e.tickInterval)
		defer t.Stop()
		ticks = t.C
	}

	for {
		select {
		case <-ctx.Done():
			e.abort(context.WithoutCancel(ctx), e.clock.Now())
			return nil
		case <-ticks:
			now := e.clock.Now()
			if e.tick(ctx, now) {
				e.end(ctx, now)
				return nil
			}
		case cmd := <-e.cmds:
			now := e.clock.Now()
			switch cmd.kind {
			case cmdSnapshot:
				cmd.reply <- e.snapshot(now)
			case cmdEnd:
				e.tick(ctx, now)
				e.end(ctx, now)
				cmd.reply <- e.last
				return nil
			}
		}
	}
}

// tick runs one timing step at now and reports whether the schedule is
// exhausted.
func (e *Engine) tick(ctx context.Context, now time.Time) bool {
	started := time.Now()
	beat := e.beat.CurrentBeat(now)

	// Every note spawned here is checked against its deadline before any
	// event is drained, including one spawned after a stalled tick.
	for {
		if idx, ok := e.tracker.Expected(); ok {
			if !e.supervisor.Expired(e.tracker.Note(idx), now) {
				break
			}
			e.miss(ctx, idx, now)
		}
		if !e.spawn(beat) {
			break
		}
	}

	for range len(e.events) {
		e.handle(ctx, <-e.events, now)
	}

	if e.onProgress != nil {
		e.onProgress(e.progress(beat))
	}
	e.metrics.TickDuration.Record(ctx, time.Since(started).Seconds())
	return e.tracker.Done()
}

// spawn spawns the next note if it entered the lookahead and reports
// whether it did.
func (e *Engine) spawn(beat float64) bool {
	idx, ok := e.tracker.Spawn(beat)
	if ok {
		n := e.tracker.Note(idx)
		e.log.Debug("note spawned", "note_index", idx, "word", n.Word, "beat", beat, "deadline", e.supervisor.Deadline(n))
	}
	return ok
}

// handle resolves one transcription event against the expected note.
func (e *Engine) handle(ctx context.Context, ev transcript.Event, now time.Time) {
	if ev.Interim {
		e.metrics.RecordTranscriptEvent(ctx, observe.EventInterim)
		if e.onHearing != nil && len(ev.Candidates) > 0 {
			e.onHearing(ev.Candidates[0])
		}
		return
	}

	idx, ok := e.tracker.Expected()
	if !ok {
		e.metrics.RecordTranscriptEvent(ctx, observe.EventDiscarded)
		e.log.Debug("candidate discarded, no expected note", "candidates", ev.Candidates)
		return
	}
	note := e.tracker.Note(idx)

	m, ok := e.resolver.Resolve(ev.Candidates, note.Word)
	if !ok {
		closest, similarity := e.resolver.Closest(ev.Candidates, note.Word)
		e.metrics.RecordTranscriptEvent(ctx, observe.EventUnmatched)
		e.log.Debug("candidate did not match",
			"note_index", idx,
			"word", note.Word,
			"candidates", ev.Candidates,
			"closest", closest,
			"similarity", similarity,
		)
		return
	}

	arrived := ev.ArrivedAt
	if arrived.IsZero() {
		arrived = now
	}
	delta := arrived.Sub(e.beat.InstantOf(note.Beat))
	if delta < 0 {
		delta = -delta
	}
	res := e.scorer.Score(scoring.Input{
		Match:       m.Kind,
		TimingDelta: delta,
		Combo:       e.sess.Combo(),
		Difficulty:  note.Difficulty,
	})

	if !e.tracker.Finalize(idx, Hit) {
		return
	}
	e.metrics.RecordTranscriptEvent(ctx, observe.EventMatched)
	e.record(ctx, idx, note, session.NewHitResult(idx, note.Word, m.Candidate, m.Kind, delta, res, now), res.Combo)
}

func (e *Engine) miss(ctx context.Context, idx int, now time.Time) {
	note := e.tracker.Note(idx)
	if !e.tracker.Finalize(idx, Missed) {
		return
	}
	res := scoring.MissResult()
	e.record(ctx, idx, note, session.NewHitResult(idx, note.Word, "", scoring.MatchNone, 0, res, now), res.Combo)
}

func (e *Engine) record(ctx context.Context, idx int, note song.Note, hr session.HitResult, action scoring.ComboAction) {
	combo, ok := e.sess.Record(hr, action)
	if !ok {
		return
	}
	e.metrics.RecordNote(ctx, hr.Rating.String(), hr.Match.String(), hr.TimingDelta)
	e.log.Info("note finalized",
		"note_index", idx,
		"word", note.Word,
		"spoken", hr.Spoken,
		"rating", hr.Rating.String(),
		"points", hr.Points,
		"combo", combo,
		"timing_delta", hr.TimingDelta,
	)
	if e.onNote != nil {
		e.onNote(NoteEvent{
			Note:       note,
			Index:      idx,
			Rating:     hr.Rating,
			Points:     hr.Points,
			ComboAfter: combo,
			Result:     hr,
		})
	}
}

func (e *Engine) end(ctx context.Context, now time.Time) {
	sum, err := e.sess.End(now)
	e.summary, e.err = sum, err
	e.last = e.snapshot(now)
	if err != nil {
		return
	}
	e.metrics.ActiveSessions.Add(ctx, -1)
	e.metrics.RecordSession(ctx, "ended", string(sum.Grade))
	e.log.Info("session ended",
		"score", sum.Score,
		"max_combo", sum.MaxCombo,
		"accuracy", sum.Accuracy,
		"grade", string(sum.Grade),
		"perfect", sum.Counts.Perfect,
		"great", sum.Counts.Great,
		"good", sum.Counts.Good,
		"miss", sum.Counts.Miss,
	)
}

func (e *Engine) abort(ctx context.Context, now time.Time) {
	if !e.sess.Abort(now) {
		return
	}
	e.err = ErrAborted
	e.last = e.snapshot(now)
	e.metrics.ActiveSessions.Add(ctx, -1)
	e.metrics.RecordSession(ctx, "aborted", "")
	e.log.Info("session aborted", "current_index", e.tracker.Current())
}

func (e *Engine) progress(beat float64) Progress {
	return Progress{
		CurrentIndex: e.tracker.Current(),
		Total:        e.tracker.Len(),
		Beat:         beat,
		Upcoming:     e.tracker.Upcoming(beat, e.lookahead),
	}
}

func (e *Engine) snapshot(now time.Time) Snapshot {
	return Snapshot{
		Progress: e.progress(e.beat.CurrentBeat(now)),
		State:    e.sess.State(),
		Summary:  e.sess.Snapshot(),
	}
}
