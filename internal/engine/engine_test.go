package engine

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/cadence/internal/observe"
	"github.com/MrWong99/cadence/internal/scoring"
	"github.com/MrWong99/cadence/internal/session"
	"github.com/MrWong99/cadence/internal/transcript"
	tmock "github.com/MrWong99/cadence/internal/transcript/mock"
	"github.com/MrWong99/cadence/pkg/song"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// testSong plays at 120 BPM, so note i lands at (i+1)*2s.
func testSong(words ...string) *song.Song {
	return &song.Song{ID: "test", Title: "Test", BPM: 120, Notes: testNotes(words...)}
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

type recorder struct {
	mu       sync.Mutex
	notes    []NoteEvent
	hearing  []string
	progress []Progress
}

func (r *recorder) options() []Option {
	return []Option{
		WithNoteHandler(func(ev NoteEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.notes = append(r.notes, ev)
		}),
		WithHearingHandler(func(text string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.hearing = append(r.hearing, text)
		}),
		WithProgressHandler(func(p Progress) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.progress = append(r.progress, p)
		}),
	}
}

func (r *recorder) Notes() []NoteEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]NoteEvent(nil), r.notes...)
}

func (r *recorder) Hearing() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.hearing...)
}

// newStepEngine returns an engine that has begun at t0 but has no loop
// running, so tests drive tick directly.
func newStepEngine(t *testing.T, s *song.Song, opts ...Option) (*Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	all := append([]Option{WithClock(&fakeClock{now: t0}), WithMetrics(testMetrics(t))}, rec.options()...)
	e, err := New(s, append(all, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.begin(context.Background(), t0)
	return e, rec
}

func candidate(at time.Duration, words ...string) transcript.Event {
	return transcript.Event{Candidates: words, ArrivedAt: t0.Add(at)}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// ─── tick semantics ──────────────────────────────────────────────────────────

func TestTick_PerfectHitOnTime(t *testing.T) {
	t.Parallel()

	e, rec := newStepEngine(t, testSong("cat"))
	ctx := context.Background()

	e.tick(ctx, t0)
	if idx, ok := e.tracker.Expected(); !ok || idx != 0 {
		t.Fatalf("after first tick Expected = %d, %v; want 0, true", idx, ok)
	}

	e.events <- candidate(2100*time.Millisecond, "cat")
	if done := e.tick(ctx, t0.Add(2100*time.Millisecond)); !done {
		t.Error("tick did not report the schedule exhausted")
	}

	notes := rec.Notes()
	if len(notes) != 1 {
		t.Fatalf("got %d note events, want 1", len(notes))
	}
	ev := notes[0]
	if ev.Rating != scoring.Perfect {
		t.Errorf("Rating = %v, want perfect", ev.Rating)
	}
	if ev.Points <= 0 {
		t.Errorf("Points = %d, want > 0", ev.Points)
	}
	if ev.ComboAfter != 1 {
		t.Errorf("ComboAfter = %d, want 1", ev.ComboAfter)
	}
	if ev.Result.TimingDelta != 100*time.Millisecond {
		t.Errorf("TimingDelta = %v, want 100ms", ev.Result.TimingDelta)
	}
	if ev.Result.Match != scoring.MatchExact || ev.Result.PronunciationAccuracy != 100 {
		t.Errorf("match = %v/%d, want exact/100", ev.Result.Match, ev.Result.PronunciationAccuracy)
	}
	if e.tracker.State(0) != Hit {
		t.Errorf("note state = %v, want hit", e.tracker.State(0))
	}
}

func TestTick_EarlyCandidateScoresAbsoluteDelta(t *testing.T) {
	t.Parallel()

	e, rec := newStepEngine(t, testSong("cat"))
	ctx := context.Background()

	e.tick(ctx, t0)
	e.events <- candidate(1800*time.Millisecond, "cat")
	e.tick(ctx, t0.Add(1800*time.Millisecond))

	notes := rec.Notes()
	if len(notes) != 1 {
		t.Fatalf("got %d note events, want 1", len(notes))
	}
	if got := notes[0].Result.TimingDelta; got != 200*time.Millisecond {
		t.Errorf("TimingDelta = %v, want 200ms", got)
	}
	if got := notes[0].Result.TimingAccuracy; got != 85 {
		t.Errorf("TimingAccuracy = %d, want 85", got)
	}
}

func TestTick_MissAfterDeadline(t *testing.T) {
	t.Parallel()

	e, rec := newStepEngine(t, testSong("cat"))
	ctx := context.Background()

	e.tick(ctx, t0)
	e.tick(ctx, t0.Add(2500*time.Millisecond))
	if len(rec.Notes()) != 0 {
		t.Fatal("note finalized at its deadline, want still open")
	}
	if done := e.tick(ctx, t0.Add(2600*time.Millisecond)); !done {
		t.Error("tick did not report the schedule exhausted")
	}

	notes := rec.Notes()
	if len(notes) != 1 {
		t.Fatalf("got %d note events, want 1", len(notes))
	}
	if notes[0].Rating != scoring.Miss || notes[0].Points != 0 || notes[0].ComboAfter != 0 {
		t.Errorf("miss event = %+v, want Miss with 0 points and combo 0", notes[0])
	}
	if e.tracker.State(0) != Missed {
		t.Errorf("note state = %v, want missed", e.tracker.State(0))
	}
}

func TestTick_SubstringMatchIsReduced(t *testing.T) {
	t.Parallel()

	e, rec := newStepEngine(t, testSong("cat"))
	ctx := context.Background()

	e.tick(ctx, t0)
	e.events <- candidate(2100*time.Millisecond, "the cat")
	e.tick(ctx, t0.Add(2100*time.Millisecond))

	notes := rec.Notes()
	if len(notes) != 1 {
		t.Fatalf("got %d note events, want 1", len(notes))
	}
	res := notes[0].Result
	if res.Match != scoring.MatchSubstring || res.PronunciationAccuracy != 70 {
		t.Errorf("match = %v/%d, want substring/70", res.Match, res.PronunciationAccuracy)
	}
	if res.Spoken != "the cat" {
		t.Errorf("Spoken = %q, want %q", res.Spoken, "the cat")
	}
}

func TestTick_LateCandidateCannotReopenMissedNote(t *testing.T) {
	t.Parallel()

	e, rec := newStepEngine(t, testSong("cat", "dog"))
	ctx := context.Background()

	e.tick(ctx, t0)
	// The utterance for "cat" is queued in the same tick that times it out.
	e.events <- candidate(2600*time.Millisecond, "cat")
	e.tick(ctx, t0.Add(2600*time.Millisecond))

	notes := rec.Notes()
	if len(notes) != 1 {
		t.Fatalf("got %d note events, want 1", len(notes))
	}
	if notes[0].Index != 0 || notes[0].Rating != scoring.Miss {
		t.Errorf("event = %+v, want note 0 missed", notes[0])
	}
	if e.tracker.State(0) != Missed {
		t.Errorf("note 0 state = %v, want missed", e.tracker.State(0))
	}
	// "cat" must not have been credited to "dog" either.
	if e.tracker.State(1) != Spawned {
		t.Errorf("note 1 state = %v, want spawned", e.tracker.State(1))
	}
	if got := e.sess.Snapshot().Results; len(got) != 1 || got[0].Rating != scoring.Miss {
		t.Errorf("results = %+v, want a single miss", got)
	}
}

func TestTick_UnmatchedCandidateKeepsListening(t *testing.T) {
	t.Parallel()

	e, rec := newStepEngine(t, testSong("cat"))
	ctx := context.Background()

	e.tick(ctx, t0)
	e.events <- candidate(1900*time.Millisecond, "dog", "bird")
	e.tick(ctx, t0.Add(1900*time.Millisecond))
	if len(rec.Notes()) != 0 || e.tracker.State(0) != Spawned {
		t.Fatal("a non-matching candidate finalized the note")
	}

	e.events <- candidate(2000*time.Millisecond, "dog", "cat")
	e.tick(ctx, t0.Add(2000*time.Millisecond))
	notes := rec.Notes()
	if len(notes) != 1 || notes[0].Result.Spoken != "cat" {
		t.Fatalf("events = %+v, want one hit for the second candidate", notes)
	}
}

func TestTick_InterimOnlyReachesHearing(t *testing.T) {
	t.Parallel()

	e, rec := newStepEngine(t, testSong("cat"))
	ctx := context.Background()

	e.tick(ctx, t0)
	e.events <- transcript.Event{Candidates: []string{"cat"}, ArrivedAt: t0.Add(2 * time.Second), Interim: true}
	e.tick(ctx, t0.Add(2*time.Second))

	if len(rec.Notes()) != 0 {
		t.Error("an interim event finalized a note")
	}
	if got := rec.Hearing(); len(got) != 1 || got[0] != "cat" {
		t.Errorf("hearing = %q, want [cat]", got)
	}
}

func TestTick_CandidateBeforeSpawnIsDiscarded(t *testing.T) {
	t.Parallel()

	e, rec := newStepEngine(t, testSong("cat"), WithLookahead(1))
	ctx := context.Background()

	// Beat 0: the note at beat 4 is outside a one-beat lookahead.
	e.events <- candidate(0, "cat")
	e.tick(ctx, t0)
	if len(rec.Notes()) != 0 || e.tracker.State(0) != Scheduled {
		t.Fatal("a candidate was matched against an unspawned note")
	}
}

func TestTick_ComboGrowsAndResets(t *testing.T) {
	t.Parallel()

	e, rec := newStepEngine(t, testSong("a1", "b2", "c3"), WithLookahead(1))
	ctx := context.Background()

	at := func(d time.Duration) time.Time { return t0.Add(d) }
	e.tick(ctx, at(1600*time.Millisecond))
	e.events <- candidate(2*time.Second, "a1")
	e.tick(ctx, at(2*time.Second))
	e.tick(ctx, at(3600*time.Millisecond))
	e.events <- candidate(4*time.Second, "b2")
	e.tick(ctx, at(4*time.Second))
	e.tick(ctx, at(5600*time.Millisecond))
	e.tick(ctx, at(6600*time.Millisecond))

	notes := rec.Notes()
	want := []int{1, 2, 0}
	if len(notes) != len(want) {
		t.Fatalf("got %d note events, want %d", len(notes), len(want))
	}
	for i, ev := range notes {
		if ev.ComboAfter != want[i] {
			t.Errorf("note %d ComboAfter = %d, want %d", i, ev.ComboAfter, want[i])
		}
	}
	if got := e.sess.Snapshot().MaxCombo; got != 2 {
		t.Errorf("MaxCombo = %d, want 2", got)
	}
}

func TestTick_SkippedTicksCatchUp(t *testing.T) {
	t.Parallel()

	e, rec := newStepEngine(t, testSong("a1", "b2", "c3"))
	ctx := context.Background()

	e.tick(ctx, t0)
	// A stall past every deadline finalizes all notes in one tick.
	if done := e.tick(ctx, t0.Add(time.Minute)); !done {
		t.Fatal("tick after a long stall did not exhaust the schedule")
	}
	notes := rec.Notes()
	if len(notes) != 3 {
		t.Fatalf("got %d note events, want 3", len(notes))
	}
	for i, ev := range notes {
		if ev.Index != i || ev.Rating != scoring.Miss {
			t.Errorf("event %d = %+v, want miss for note %d", i, ev, i)
		}
	}
}

func TestTick_NoteSpawnedAfterStallStillMisses(t *testing.T) {
	t.Parallel()

	s := testSong("one", "two")
	s.Notes[1].Beat = 4.5
	e, rec := newStepEngine(t, s)
	ctx := context.Background()

	e.tick(ctx, t0)
	e.events <- candidate(2*time.Second, "one")
	e.tick(ctx, t0.Add(2*time.Second))
	if e.tracker.State(0) != Hit {
		t.Fatalf("note 0 state = %v, want hit", e.tracker.State(0))
	}

	// "two" spawns in this tick and its deadline (2.75s) has already passed,
	// so the utterance queued with it must not be credited.
	e.events <- candidate(3500*time.Millisecond, "two")
	e.tick(ctx, t0.Add(3500*time.Millisecond))

	if e.tracker.State(1) != Missed {
		t.Errorf("note 1 state = %v, want missed", e.tracker.State(1))
	}
	notes := rec.Notes()
	if len(notes) != 2 {
		t.Fatalf("got %d note events, want 2", len(notes))
	}
	if ev := notes[1]; ev.Index != 1 || ev.Rating != scoring.Miss {
		t.Errorf("event = %+v, want note 1 missed", ev)
	}
	if got := e.sess.Combo(); got != 0 {
		t.Errorf("combo = %d, want 0 after the miss", got)
	}
}

func TestTick_AtMostOneExpectedNote(t *testing.T) {
	t.Parallel()

	words := []string{"one", "two", "three", "four", "five", "six"}
	e, _ := newStepEngine(t, testSong(words...))
	ctx := context.Background()

	for step := 0; step < 200; step++ {
		now := t0.Add(time.Duration(step) * 75 * time.Millisecond)
		if step%7 == 0 {
			if idx, ok := e.tracker.Expected(); ok {
				e.events <- transcript.Event{Candidates: []string{words[idx]}, ArrivedAt: now}
			}
		}
		done := e.tick(ctx, now)

		spawned := 0
		for i := range words {
			st := e.tracker.State(i)
			switch {
			case st == Spawned:
				spawned++
			case i < e.tracker.Current() && !st.Terminal():
				t.Fatalf("step %d: note %d before current is %v", step, i, st)
			case i > e.tracker.Current() && st != Scheduled:
				t.Fatalf("step %d: note %d after current is %v", step, i, st)
			}
		}
		if spawned > 1 {
			t.Fatalf("step %d: %d notes spawned at once", step, spawned)
		}
		if done {
			break
		}
	}
	if !e.tracker.Done() {
		t.Fatal("schedule not exhausted after 15s of ticks")
	}
	if got := len(e.sess.Snapshot().Results); got != len(words) {
		t.Errorf("recorded %d results, want %d", got, len(words))
	}
}

func TestTick_ProgressReportsUpcoming(t *testing.T) {
	t.Parallel()

	e, rec := newStepEngine(t, testSong("cat", "dog"))
	e.tick(context.Background(), t0)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.progress) != 1 {
		t.Fatalf("got %d progress updates, want 1", len(rec.progress))
	}
	p := rec.progress[0]
	if p.CurrentIndex != 0 || p.Total != 2 || p.Beat != 0 {
		t.Errorf("progress = %+v, want index 0 of 2 at beat 0", p)
	}
	if len(p.Upcoming) != 1 || p.Upcoming[0].Word != "cat" {
		t.Errorf("upcoming = %+v, want only cat within five beats", p.Upcoming)
	}
}

func TestEnd_SummaryAfterExhaustion(t *testing.T) {
	t.Parallel()

	e, _ := newStepEngine(t, testSong("cat", "dog"))
	ctx := context.Background()

	e.tick(ctx, t0)
	e.events <- candidate(2*time.Second, "cat")
	e.tick(ctx, t0.Add(2*time.Second))
	e.tick(ctx, t0.Add(3*time.Second))
	if done := e.tick(ctx, t0.Add(5*time.Second)); !done {
		t.Fatal("schedule not exhausted")
	}
	e.end(ctx, t0.Add(5*time.Second))

	sum := e.summary
	if e.err != nil {
		t.Fatalf("end error: %v", e.err)
	}
	if sum.Counts.Perfect != 1 || sum.Counts.Miss != 1 {
		t.Errorf("counts = %+v, want 1 perfect and 1 miss", sum.Counts)
	}
	if sum.Accuracy != 50 {
		t.Errorf("Accuracy = %v, want 50", sum.Accuracy)
	}
	if sum.TotalNotes != 2 || sum.SongID != "test" {
		t.Errorf("summary = %+v, want 2 notes of song test", sum)
	}
	if e.sess.State() != session.Ended {
		t.Errorf("State = %v, want ended", e.sess.State())
	}

	again, err := e.sess.End(t0.Add(time.Hour))
	if err != nil || !reflect.DeepEqual(again, sum) {
		t.Errorf("second End = %+v, %v; want identical summary", again, err)
	}
}

// ─── construction ────────────────────────────────────────────────────────────

func TestNew_RejectsInvalidInput(t *testing.T) {
	t.Parallel()

	if _, err := New(nil); !errors.Is(err, song.ErrInvalidSong) {
		t.Errorf("New(nil) error = %v, want ErrInvalidSong", err)
	}
	if _, err := New(&song.Song{ID: "x", BPM: 120}); !errors.Is(err, song.ErrNoNotes) {
		t.Errorf("New(no notes) error = %v, want ErrNoNotes", err)
	}
	if _, err := New(&song.Song{ID: "x", Notes: testNotes("a")}); !errors.Is(err, song.ErrInvalidTempo) {
		t.Errorf("New(bpm 0) error = %v, want ErrInvalidTempo", err)
	}

	opts := []Option{WithGrace(-1), WithLookahead(-1), WithEventQueueSize(0), WithTickInterval(0)}
	if _, err := New(testSong("a"), opts...); err == nil {
		t.Error("New with invalid options succeeded")
	}
}

func TestNew_CopiesSong(t *testing.T) {
	t.Parallel()

	s := testSong("cat")
	e, err := New(s)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Notes[0].Word = "dog"
	if got := e.Song().Notes[0].Word; got != "cat" {
		t.Errorf("engine song word = %q after caller mutation, want cat", got)
	}
	if e.SessionID() == "" {
		t.Error("SessionID is empty")
	}
}

// ─── actor lifecycle ─────────────────────────────────────────────────────────

type actorHarness struct {
	t     *testing.T
	e     *Engine
	clock *fakeClock
	ticks chan time.Time
	rec   *recorder
}

func newActor(t *testing.T, s *song.Song, opts ...Option) *actorHarness {
	t.Helper()
	h := &actorHarness{t: t, clock: &fakeClock{now: t0}, ticks: make(chan time.Time), rec: &recorder{}}
	all := append([]Option{
		WithClock(h.clock),
		WithTicks(h.ticks),
		WithMetrics(testMetrics(t)),
		WithRestartBackoff(time.Millisecond, 5*time.Millisecond),
	}, h.rec.options()...)
	e, err := New(s, append(all, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.e = e
	t.Cleanup(e.Cancel)
	return h
}

// tickAt advances the clock and blocks until the loop finished the tick. The
// snapshot round-trip keeps the clock fixed while the tick reads it.
func (h *actorHarness) tickAt(d time.Duration) {
	h.t.Helper()
	h.clock.Set(t0.Add(d))
	h.ticks <- t0.Add(d)
	if _, err := h.e.Snapshot(context.Background()); err != nil {
		h.t.Fatalf("Snapshot after tick: %v", err)
	}
}

func TestEngine_RunsToCompletionWithSource(t *testing.T) {
	t.Parallel()

	st := tmock.NewStream(4)
	src := &tmock.Source{Streams: []*tmock.Stream{st}, BlockWhenEmpty: true}
	h := newActor(t, testSong("cat", "dog"), WithSource(src))
	ctx := context.Background()

	if err := h.e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.e.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start error = %v, want ErrAlreadyStarted", err)
	}

	h.tickAt(0)
	st.Ch <- candidate(2*time.Second, "cat")
	waitFor(t, "event queued", func() bool { return len(h.e.events) == 1 })
	h.tickAt(2 * time.Second)
	h.tickAt(3 * time.Second)
	h.tickAt(5 * time.Second)

	sum, err := h.e.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if sum.Counts.Perfect != 1 || sum.Counts.Miss != 1 || sum.Accuracy != 50 {
		t.Errorf("summary = %+v, want one perfect and one miss", sum)
	}
	if sum.Score != 100 {
		t.Errorf("Score = %d, want 100", sum.Score)
	}
	if sum.SessionID != h.e.SessionID() {
		t.Errorf("SessionID = %q, want %q", sum.SessionID, h.e.SessionID())
	}
	waitFor(t, "stream closed", func() bool { return st.CloseCalls() > 0 })

	if err := h.e.Post(ctx, candidate(0, "late")); !errors.Is(err, ErrStopped) {
		t.Errorf("Post after end error = %v, want ErrStopped", err)
	}
}

func TestEngine_CancelAborts(t *testing.T) {
	t.Parallel()

	st := tmock.NewStream(1)
	src := &tmock.Source{Streams: []*tmock.Stream{st}, BlockWhenEmpty: true}
	h := newActor(t, testSong("cat"), WithSource(src))
	ctx := context.Background()

	if err := h.e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.tickAt(0)
	h.e.Cancel()
	h.e.Cancel()

	if _, err := h.e.Wait(ctx); !errors.Is(err, ErrAborted) {
		t.Fatalf("Wait error = %v, want ErrAborted", err)
	}
	if _, err := h.e.DrainAndEnd(ctx); !errors.Is(err, ErrAborted) {
		t.Errorf("DrainAndEnd after abort error = %v, want ErrAborted", err)
	}
	snap, err := h.e.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.State != session.Aborted {
		t.Errorf("State = %v, want aborted", snap.State)
	}
	waitFor(t, "stream closed", func() bool { return st.CloseCalls() > 0 })
	if len(h.rec.Notes()) != 0 {
		t.Error("a note was finalized after cancellation")
	}
}

func TestEngine_ContextCancelAborts(t *testing.T) {
	t.Parallel()

	h := newActor(t, testSong("cat"))
	ctx, cancel := context.WithCancel(context.Background())

	if err := h.e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	if _, err := h.e.Wait(context.Background()); !errors.Is(err, ErrAborted) {
		t.Fatalf("Wait error = %v, want ErrAborted", err)
	}
}

func TestEngine_CancelBeforeStart(t *testing.T) {
	t.Parallel()

	h := newActor(t, testSong("cat"))
	ctx := context.Background()

	if _, err := h.e.Wait(ctx); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Wait before Start error = %v, want ErrNotStarted", err)
	}
	h.e.Cancel()
	if err := h.e.Start(ctx); !errors.Is(err, ErrAborted) {
		t.Errorf("Start after Cancel error = %v, want ErrAborted", err)
	}
	if _, err := h.e.Wait(ctx); !errors.Is(err, ErrAborted) {
		t.Errorf("Wait error = %v, want ErrAborted", err)
	}
	select {
	case <-h.e.Done():
	default:
		t.Error("Done not closed after Cancel")
	}
}

func TestEngine_DrainAndEnd(t *testing.T) {
	t.Parallel()

	h := newActor(t, testSong("cat", "dog"))
	ctx := context.Background()

	if _, err := h.e.DrainAndEnd(ctx); !errors.Is(err, ErrNotStarted) {
		t.Errorf("DrainAndEnd before Start error = %v, want ErrNotStarted", err)
	}
	if err := h.e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.tickAt(0)
	if err := h.e.Post(ctx, candidate(2*time.Second, "cat")); err != nil {
		t.Fatalf("Post: %v", err)
	}
	h.clock.Set(t0.Add(2 * time.Second))

	first, err := h.e.DrainAndEnd(ctx)
	if err != nil {
		t.Fatalf("DrainAndEnd: %v", err)
	}
	if first.Counts.Perfect != 1 || first.Counts.Miss != 0 {
		t.Errorf("counts = %+v, want the queued hit drained and nothing missed", first.Counts)
	}
	if first.Accuracy != 50 {
		t.Errorf("Accuracy = %v, want 50 with one of two notes reached", first.Accuracy)
	}

	second, err := h.e.DrainAndEnd(ctx)
	if err != nil {
		t.Fatalf("second DrainAndEnd: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("second summary %+v differs from first %+v", second, first)
	}

	snap, err := h.e.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.State != session.Ended || snap.Summary.Score != first.Score {
		t.Errorf("snapshot = %+v, want ended with score %d", snap, first.Score)
	}
}

func TestEngine_SnapshotWhileRunning(t *testing.T) {
	t.Parallel()

	h := newActor(t, testSong("cat", "dog"))
	ctx := context.Background()

	if _, err := h.e.Snapshot(ctx); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Snapshot before Start error = %v, want ErrNotStarted", err)
	}
	if err := h.e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.tickAt(0)
	h.clock.Set(t0.Add(time.Second))

	snap, err := h.e.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.State != session.Running {
		t.Errorf("State = %v, want running", snap.State)
	}
	if snap.CurrentIndex != 0 || snap.Total != 2 || snap.Beat != 2 {
		t.Errorf("progress = %+v, want index 0 of 2 at beat 2", snap.Progress)
	}
	if len(snap.Upcoming) != 1 || snap.Upcoming[0].State != Spawned {
		t.Errorf("upcoming = %+v, want only the spawned cat", snap.Upcoming)
	}
}

func TestEngine_ResubscribesAfterTransientError(t *testing.T) {
	t.Parallel()

	first := tmock.NewStream(2)
	second := tmock.NewStream(2)
	src := &tmock.Source{Streams: []*tmock.Stream{first, second}, BlockWhenEmpty: true}
	h := newActor(t, testSong("cat"), WithSource(src))
	ctx := context.Background()

	if err := h.e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.tickAt(0)
	first.Fail(transcript.ErrTransient)
	waitFor(t, "resubscribe", func() bool { return src.Calls() >= 2 })

	second.Ch <- candidate(2*time.Second, "cat")
	waitFor(t, "event queued", func() bool { return len(h.e.events) == 1 })
	h.tickAt(2 * time.Second)

	sum, err := h.e.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if sum.Counts.Perfect != 1 {
		t.Errorf("counts = %+v, want the hit delivered by the second stream", sum.Counts)
	}
}
