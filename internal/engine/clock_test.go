package engine

import (
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestBeatClock_CurrentBeat(t *testing.T) {
	t.Parallel()

	c := NewBeatClock(t0, 120)
	tests := []struct {
		name string
		at   time.Duration
		want float64
	}{
		{"start", 0, 0},
		{"before start clamps", -time.Second, 0},
		{"one beat", 500 * time.Millisecond, 1},
		{"fractional", 750 * time.Millisecond, 1.5},
		{"one minute", time.Minute, 120},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := c.CurrentBeat(t0.Add(tt.at)); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CurrentBeat(+%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestBeatClock_InstantOfRoundTrip(t *testing.T) {
	t.Parallel()

	c := NewBeatClock(t0, 100)
	if got := c.InstantOf(4); !got.Equal(t0.Add(2400 * time.Millisecond)) {
		t.Errorf("InstantOf(4) = %v, want start+2.4s", got.Sub(t0))
	}
	for _, beat := range []float64{0, 1, 7.5, 64} {
		if got := c.CurrentBeat(c.InstantOf(beat)); math.Abs(got-beat) > 1e-6 {
			t.Errorf("CurrentBeat(InstantOf(%v)) = %v", beat, got)
		}
	}
	if !c.Start().Equal(t0) {
		t.Errorf("Start() = %v, want %v", c.Start(), t0)
	}
}

func TestSupervisor_Deadline(t *testing.T) {
	t.Parallel()

	sup := NewSupervisor(NewBeatClock(t0, 120), 1)
	n := testNotes("cat")[0]
	n.Beat = 4

	if got, want := sup.Deadline(n), t0.Add(2500*time.Millisecond); !got.Equal(want) {
		t.Errorf("Deadline = %v, want %v", got.Sub(t0), want.Sub(t0))
	}
	if sup.Expired(n, t0.Add(2500*time.Millisecond)) {
		t.Error("Expired at the deadline itself, want open until after it")
	}
	if !sup.Expired(n, t0.Add(2501*time.Millisecond)) {
		t.Error("not Expired after the deadline")
	}
}
