package engine

import (
	"fmt"

	"github.com/MrWong99/cadence/pkg/song"
)

// NoteState is the lifecycle state of one note.
type NoteState int

const (
	Scheduled NoteState = iota
	Spawned
	Hit
	Missed
)

// String returns the lower-case state name.
func (s NoteState) String() string {
	switch s {
	case Scheduled:
		return "scheduled"
	case Spawned:
		return "spawned"
	case Hit:
		return "hit"
	case Missed:
		return "missed"
	default:
		return fmt.Sprintf("NoteState(%d)", int(s))
	}
}

// Terminal reports whether s is Hit or Missed.
func (s NoteState) Terminal() bool { return s == Hit || s == Missed }

// UpcomingNote is a note inside the visual lookahead window.
type UpcomingNote struct {
	Index    int
	Word     string
	Phonetic string
	Beat     float64
	State    NoteState
}

// Tracker walks a song's notes strictly in order. Only the note at the
// current index can be spawned, and it is the only note that can ever be
// expected. Tracker is not safe for concurrent use; the engine loop owns it.
type Tracker struct {
	notes     []song.Note
	states    []NoteState
	current   int
	lookahead float64
}

// NewTracker returns a tracker with every note Scheduled. A note spawns once
// the beat reaches its scheduled beat minus lookahead.
func NewTracker(notes []song.Note, lookahead float64) *Tracker {
	return &Tracker{
		notes:     notes,
		states:    make([]NoteState, len(notes)),
		lookahead: lookahead,
	}
}

// Current returns the index of the first non-terminal note. It equals Len
// once every note is terminal.
func (t *Tracker) Current() int { return t.current }

// Len returns the number of notes.
func (t *Tracker) Len() int { return len(t.notes) }

// Done reports whether the schedule is exhausted.
func (t *Tracker) Done() bool { return t.current >= len(t.notes) }

// State returns the state of note i.
func (t *Tracker) State(i int) NoteState { return t.states[i] }

// Note returns note i.
func (t *Tracker) Note(i int) song.Note { return t.notes[i] }

// Spawn moves the current note to Spawned if beat has reached its spawn
// position. It returns the index and true when a transition happened.
func (t *Tracker) Spawn(beat float64) (int, bool) {
	if t.Done() || t.states[t.current] != Scheduled {
		return 0, false
	}
	if beat < t.notes[t.current].Beat-t.lookahead {
		return 0, false
	}
	t.states[t.current] = Spawned
	return t.current, true
}

// Expected returns the note currently open for matching.
func (t *Tracker) Expected() (int, bool) {
	if t.Done() || t.states[t.current] != Spawned {
		return 0, false
	}
	return t.current, true
}

// Finalize moves the expected note i to the terminal state to and advances.
// It is a no-op returning false when i is not the expected note, including
// when i is already terminal.
func (t *Tracker) Finalize(i int, to NoteState) bool {
	if !to.Terminal() {
		return false
	}
	if cur, ok := t.Expected(); !ok || cur != i {
		return false
	}
	t.states[i] = to
	t.current++
	return true
}

// Upcoming returns the non-terminal notes whose beat lies in
// [beat, beat+window], together with the expected note if any.
func (t *Tracker) Upcoming(beat, window float64) []UpcomingNote {
	var out []UpcomingNote
	for i := t.current; i < len(t.notes); i++ {
		n := t.notes[i]
		if n.Beat > beat+window {
			break
		}
		if t.states[i] != Spawned && n.Beat < beat {
			continue
		}
		out = append(out, UpcomingNote{
			Index:    i,
			Word:     n.Word,
			Phonetic: n.Phonetic,
			Beat:     n.Beat,
			State:    t.states[i],
		})
	}
	return out
}
