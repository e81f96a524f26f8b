package whisper

import (
	"time"

	"github.com/MrWong99/cadence/pkg/audio"
)

// utterance is one buffered stretch of speech.
type utterance struct {
	pcm   []byte
	start time.Duration
}

// segmenter splits a PCM stream into utterances with an energy gate.
// Leading silence is dropped; an utterance ends after silence of the
// configured length or when it reaches maxLen.
type segmenter struct {
	format    audio.Format
	threshold float64
	silence   time.Duration
	maxLen    time.Duration

	buf      []byte
	speaking bool
	quiet    time.Duration
	offset   time.Duration
	start    time.Duration
}

// push consumes one chunk and returns a completed utterance, if any.
func (s *segmenter) push(chunk []byte) (utterance, bool) {
	d := s.format.Duration(len(chunk))
	at := s.offset
	s.offset += d

	if audio.RMS(chunk) < s.threshold {
		if !s.speaking {
			return utterance{}, false
		}
		s.buf = append(s.buf, chunk...)
		s.quiet += d
		if s.quiet >= s.silence {
			return s.flush()
		}
		return utterance{}, false
	}

	if !s.speaking {
		s.speaking = true
		s.start = at
	}
	s.quiet = 0
	s.buf = append(s.buf, chunk...)
	if s.maxLen > 0 && s.format.Duration(len(s.buf)) >= s.maxLen {
		return s.flush()
	}
	return utterance{}, false
}

// flush returns the pending utterance and resets the gate.
func (s *segmenter) flush() (utterance, bool) {
	if !s.speaking {
		s.buf = nil
		return utterance{}, false
	}
	u := utterance{pcm: s.buf, start: s.start}
	s.buf = nil
	s.speaking = false
	s.quiet = 0
	return u, true
}
