package engine

import (
	"time"

	"github.com/MrWong99/cadence/pkg/song"
)

// Supervisor decides when an expected note has run out of time. A note's
// deadline is its scheduled beat plus a grace window, both in beats.
type Supervisor struct {
	clock BeatClock
	grace float64
}

// NewSupervisor returns a Supervisor for clock with grace beats of slack.
func NewSupervisor(clock BeatClock, grace float64) Supervisor {
	return Supervisor{clock: clock, grace: grace}
}

// Deadline returns the instant after which n counts as missed.
func (s Supervisor) Deadline(n song.Note) time.Time {
	return s.clock.InstantOf(n.Beat + s.grace)
}

// Expired reports whether now is past n's deadline.
func (s Supervisor) Expired(n song.Note, now time.Time) bool {
	return now.After(s.Deadline(n))
}
