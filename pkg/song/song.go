// Package song defines the immutable note schedule a practice session plays
// through.
//
// A [Song] is a tempo plus an ordered list of [Note] values. Each note names a
// target word the player must speak when the timeline reaches the note's
// scheduled beat. Songs are plain values: the runtime lifecycle of a note
// (spawned, hit, missed) is tracked by the engine, never stored on the song,
// so one Song may back any number of concurrent sessions.
package song

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Validation errors returned (wrapped) by [Song.Validate]. Callers should test
// with errors.Is against [ErrInvalidSong] or one of the specific sentinels.
var (
	ErrInvalidSong  = errors.New("song: invalid song")
	ErrNoNotes      = fmt.Errorf("%w: song has no notes", ErrInvalidSong)
	ErrInvalidTempo = fmt.Errorf("%w: tempo must be greater than zero", ErrInvalidSong)
)

// Difficulty is the tier of a single note's target word.
type Difficulty int

const (
	Easy Difficulty = iota + 1
	Medium
	Hard
)

// String returns the lower-case tier name.
func (d Difficulty) String() string {
	switch d {
	case Easy:
		return "easy"
	case Medium:
		return "medium"
	case Hard:
		return "hard"
	default:
		return "unknown"
	}
}

// IsValid reports whether d is one of the defined tiers.
func (d Difficulty) IsValid() bool {
	return d >= Easy && d <= Hard
}

// ParseDifficulty maps a tier name ("easy", "medium", "hard") to its value.
func ParseDifficulty(s string) (Difficulty, error) {
	switch s {
	case "easy":
		return Easy, nil
	case "medium":
		return Medium, nil
	case "hard":
		return Hard, nil
	}
	return 0, fmt.Errorf("song: unknown difficulty %q", s)
}

// Note is one target word scheduled at a beat position.
type Note struct {
	// Word is the target word the player must speak.
	Word string

	// Phonetic is an IPA-style pronunciation hint shown next to the word.
	Phonetic string

	// Definition is an optional short meaning shown by renderers.
	Definition string

	// Beat is the scheduled beat position (>= 0).
	Beat float64

	// Difficulty is the note's tier; it scales the points awarded for a hit.
	Difficulty Difficulty
}

// Song is an ordered note schedule played at a fixed tempo.
type Song struct {
	// ID uniquely identifies the song (e.g. "happy_vibes").
	ID string

	// Title is the human-readable title.
	Title string

	// Category groups songs in listings (e.g. "Emotions").
	Category string

	// Stars is the overall song difficulty from 1 to 5.
	Stars int

	// BPM is the tempo in beats per minute.
	BPM float64

	// Duration is the length of the backing track. Informational.
	Duration time.Duration

	// MusicURL references the backing track. Playback is external.
	MusicURL string

	// UnlockedBy names a song that must be cleared before this one becomes
	// available. Empty means the song is always available.
	UnlockedBy string

	// Notes is the schedule, ordered by non-decreasing Beat.
	Notes []Note
}

// Validate reports every structural problem with s joined into one error.
// A song that fails validation must never be played.
func (s *Song) Validate() error {
	var errs []error
	if len(s.Notes) == 0 {
		errs = append(errs, ErrNoNotes)
	}
	if !finite(s.BPM) || s.BPM <= 0 {
		errs = append(errs, ErrInvalidTempo)
	}
	prev := 0.0
	for i, n := range s.Notes {
		if strings.TrimSpace(n.Word) == "" {
			errs = append(errs, fmt.Errorf("%w: notes[%d] has an empty word", ErrInvalidSong, i))
		}
		if !finite(n.Beat) {
			errs = append(errs, fmt.Errorf("%w: notes[%d] beat %v is not finite", ErrInvalidSong, i, n.Beat))
			continue
		}
		if n.Beat < 0 {
			errs = append(errs, fmt.Errorf("%w: notes[%d] beat %.2f is negative", ErrInvalidSong, i, n.Beat))
		}
		if n.Beat < prev {
			errs = append(errs, fmt.Errorf("%w: notes[%d] beat %.2f is before notes[%d] beat %.2f", ErrInvalidSong, i, n.Beat, i-1, prev))
		}
		if !n.Difficulty.IsValid() {
			errs = append(errs, fmt.Errorf("%w: notes[%d] has invalid difficulty %d", ErrInvalidSong, i, n.Difficulty))
		}
		prev = n.Beat
	}
	return errors.Join(errs...)
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// BeatDuration is the wall-clock length of one beat.
func (s *Song) BeatDuration() time.Duration {
	return time.Duration(float64(time.Minute) / s.BPM)
}

// NotesInRange returns the indices of the notes whose beat lies in
// [startBeat, endBeat].
func (s *Song) NotesInRange(startBeat, endBeat float64) []int {
	var out []int
	for i, n := range s.Notes {
		if n.Beat < startBeat {
			continue
		}
		if n.Beat > endBeat {
			break
		}
		out = append(out, i)
	}
	return out
}

// Words returns the target words in schedule order.
func (s *Song) Words() []string {
	words := make([]string, len(s.Notes))
	for i, n := range s.Notes {
		words[i] = n.Word
	}
	return words
}

// Clone returns a deep copy of s so that callers cannot mutate a song that a
// session is playing.
func (s *Song) Clone() *Song {
	c := *s
	c.Notes = make([]Note, len(s.Notes))
	copy(c.Notes, s.Notes)
	return &c
}
