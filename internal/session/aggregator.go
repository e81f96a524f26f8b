// Package session aggregates the results of one playthrough: the
// append-only hit history, running score, combo and the final summary.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/cadence/internal/scoring"
)

// Lifecycle errors.
var (
	// ErrAborted is returned by [Session.End] once a session was aborted.
	// An aborted session has no summary.
	ErrAborted = errors.New("session: aborted")

	// ErrNotStarted is returned by [Session.End] on a session that never ran.
	ErrNotStarted = errors.New("session: not started")
)

// State is the lifecycle state of a [Session].
type State int

const (
	Idle State = iota
	Running
	Ended
	Aborted
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Ended:
		return "ended"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Ended || s == Aborted }

// HitResult is the immutable record of one finalized note.
type HitResult struct {
	// Index is the note's position in the song schedule.
	Index int

	// Word is the target word.
	Word string

	// Spoken is the accepted candidate. Empty for a timed-out note.
	Spoken string

	// Match is how Spoken matched Word.
	Match scoring.MatchKind

	PronunciationAccuracy int
	TimingAccuracy        int

	// TimingDelta is the absolute distance between the utterance and the
	// note's scheduled instant. Zero for a timed-out note.
	TimingDelta time.Duration

	Points int
	Rating scoring.Rating

	// At is when the note was finalized.
	At time.Time
}

// NewHitResult builds a HitResult from a scoring outcome.
func NewHitResult(index int, word, spoken string, match scoring.MatchKind, delta time.Duration, res scoring.Result, at time.Time) HitResult {
	return HitResult{
		Index:                 index,
		Word:                  word,
		Spoken:                spoken,
		Match:                 match,
		PronunciationAccuracy: res.PronunciationAccuracy,
		TimingAccuracy:        res.TimingAccuracy,
		TimingDelta:           delta,
		Points:                res.Points,
		Rating:                res.Rating,
		At:                    at,
	}
}

// Counts holds the number of notes finalized with each rating.
type Counts struct {
	Perfect int
	Great   int
	Good    int
	Miss    int
}

// Of returns the count for r.
func (c Counts) Of(r scoring.Rating) int {
	switch r {
	case scoring.Perfect:
		return c.Perfect
	case scoring.Great:
		return c.Great
	case scoring.Good:
		return c.Good
	default:
		return c.Miss
	}
}

// Hits is the number of non-Miss ratings.
func (c Counts) Hits() int { return c.Perfect + c.Great + c.Good }

func (c *Counts) add(r scoring.Rating) {
	switch r {
	case scoring.Perfect:
		c.Perfect++
	case scoring.Great:
		c.Great++
	case scoring.Good:
		c.Good++
	default:
		c.Miss++
	}
}

// Summary is the immutable outcome of a session. While a session runs,
// [Session.Snapshot] returns a provisional Summary with a zero EndedAt.
type Summary struct {
	SessionID  string
	SongID     string
	Score      int
	Combo      int
	MaxCombo   int
	Counts     Counts
	TotalNotes int

	// Accuracy is the share of non-Miss notes over TotalNotes, in percent.
	Accuracy float64
	Grade    Grade

	StartedAt time.Time
	EndedAt   time.Time
	Results   []HitResult
}

// Duration is the wall-clock length of the session.
func (s Summary) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Session aggregates the finalized notes of one playthrough.
//
// Recording is append-only and ignores any note index that was already
// recorded, as well as anything recorded outside the Running state.
// All methods are safe for concurrent use.
type Session struct {
	id         string
	songID     string
	totalNotes int

	mu        sync.Mutex
	state     State
	results   []HitResult
	recorded  map[int]struct{}
	score     int
	combo     int
	maxCombo  int
	counts    Counts
	startedAt time.Time
	endedAt   time.Time
	summary   *Summary
}

// New returns an Idle session for a song with totalNotes notes.
func New(songID string, totalNotes int) *Session {
	return &Session{
		id:         uuid.NewString(),
		songID:     songID,
		totalNotes: totalNotes,
		recorded:   make(map[int]struct{}, totalNotes),
		results:    make([]HitResult, 0, totalNotes),
	}
}

// ID returns the unique session id.
func (s *Session) ID() string { return s.id }

// SongID returns the id of the song being played.
func (s *Session) SongID() string { return s.songID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Combo returns the current combo.
func (s *Session) Combo() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.combo
}

// Start moves the session from Idle to Running. It reports false if the
// session was not Idle.
func (s *Session) Start(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return false
	}
	s.state = Running
	s.startedAt = now
	return true
}

// Record appends r and applies the combo action. It returns the combo after
// the update and whether r was recorded.
func (s *Session) Record(r HitResult, action scoring.ComboAction) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		return s.combo, false
	}
	if _, dup := s.recorded[r.Index]; dup {
		return s.combo, false
	}
	s.recorded[r.Index] = struct{}{}

	s.results = append(s.results, r)
	if r.Points > 0 {
		s.score += r.Points
	}
	if action == scoring.ComboReset || r.Rating == scoring.Miss {
		s.combo = 0
	} else {
		s.combo++
	}
	s.maxCombo = max(s.maxCombo, s.combo)
	s.counts.add(r.Rating)
	return s.combo, true
}

// End finalizes a Running session and returns its summary. Calling End again
// returns the same summary.
func (s *Session) End(now time.Time) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Idle:
		return Summary{}, ErrNotStarted
	case Aborted:
		return Summary{}, ErrAborted
	case Ended:
		return *s.summary, nil
	}
	s.state = Ended
	s.endedAt = now
	sum := s.summaryLocked()
	s.summary = &sum
	return sum, nil
}

// Abort moves a non-terminal session to Aborted. It reports false if the
// session had already ended or aborted.
func (s *Session) Abort(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.state = Aborted
	s.endedAt = now
	return true
}

// Snapshot returns the current aggregate without changing state.
func (s *Session) Snapshot() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary != nil {
		return *s.summary
	}
	return s.summaryLocked()
}

func (s *Session) summaryLocked() Summary {
	acc := Accuracy(s.counts, s.totalNotes)
	results := make([]HitResult, len(s.results))
	copy(results, s.results)
	return Summary{
		SessionID:  s.id,
		SongID:     s.songID,
		Score:      s.score,
		Combo:      s.combo,
		MaxCombo:   s.maxCombo,
		Counts:     s.counts,
		TotalNotes: s.totalNotes,
		Accuracy:   acc,
		Grade:      GradeFor(acc),
		StartedAt:  s.startedAt,
		EndedAt:    s.endedAt,
		Results:    results,
	}
}

// Accuracy returns the non-Miss share of total in percent.
func Accuracy(c Counts, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(c.Hits()) / float64(total) * 100
}
