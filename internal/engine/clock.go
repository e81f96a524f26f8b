package engine

import "time"

// Clock supplies wall-clock instants. It must be monotonic for the lifetime
// of a session.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// BeatClock converts wall-clock instants into fractional beat positions for
// a fixed tempo. Every call derives the position from the elapsed time since
// start, so no error accumulates across ticks.
type BeatClock struct {
	start time.Time
	bpm   float64
}

// NewBeatClock returns a clock whose beat 0 is start. bpm must be positive.
func NewBeatClock(start time.Time, bpm float64) BeatClock {
	return BeatClock{start: start, bpm: bpm}
}

// Start returns the instant of beat 0.
func (c BeatClock) Start() time.Time { return c.start }

// CurrentBeat returns (now - start) * bpm / 1min. Instants before start map
// to beat 0.
func (c BeatClock) CurrentBeat(now time.Time) float64 {
	elapsed := now.Sub(c.start)
	if elapsed <= 0 {
		return 0
	}
	return float64(elapsed) * c.bpm / float64(time.Minute)
}

// InstantOf returns the wall-clock instant of beat.
func (c BeatClock) InstantOf(beat float64) time.Time {
	return c.start.Add(time.Duration(beat * float64(time.Minute) / c.bpm))
}
