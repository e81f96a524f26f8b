// Package audio holds the 16-bit PCM helpers shared by the speech providers
// and the command line: WAV framing, channel and rate conversion, energy
// measurement and real-time pacing.
//
// All PCM is signed 16-bit little-endian, interleaved when multi-channel.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// BytesPerSample is the size of one 16-bit sample.
const BytesPerSample = 2

// Format describes interleaved 16-bit PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// Speech is the mono 16 kHz format speech providers expect by default.
var Speech = Format{SampleRate: 16000, Channels: 1}

// String returns e.g. "48000Hz stereo".
func (f Format) String() string {
	ch := fmt.Sprintf("%dch", f.Channels)
	switch f.Channels {
	case 1:
		ch = "mono"
	case 2:
		ch = "stereo"
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// FrameBytes is the byte size of one sample for every channel.
func (f Format) FrameBytes() int { return f.Channels * BytesPerSample }

// BytesFor returns the byte length of d worth of audio, rounded down to a
// whole frame.
func (f Format) BytesFor(d time.Duration) int {
	frames := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	return frames * f.FrameBytes()
}

// Duration returns the play time of n bytes.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	frames := n / f.FrameBytes()
	return time.Duration(int64(frames) * int64(time.Second) / int64(f.SampleRate))
}

// RMS returns the root-mean-square level of pcm in sample units
// (0 to 32768). It returns 0 for buffers shorter than one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(sample(pcm, i))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

func sample(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
}

func putSample(pcm []byte, i int, v int16) {
	binary.LittleEndian.PutUint16(pcm[i*BytesPerSample:], uint16(v))
}
