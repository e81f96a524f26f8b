package transcript

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// LineSource reads utterances from text, one per line:
//
//	the cat|cat|hat    final event with three ranked candidates
//	~ca                interim event ("hearing" text)
//	!no speech         transient error event
//
// Blank lines are skipped. The reader is consumed by a single goroutine that
// is started on the first Subscribe and lives until the reader returns an
// error or EOF; a blocking reader such as stdin cannot be interrupted.
type LineSource struct {
	r   io.Reader
	now func() time.Time

	start sync.Once
	lines chan Event
	done  chan struct{}
}

// NewLineSource returns a LineSource reading r. now stamps ArrivedAt and
// defaults to time.Now.
func NewLineSource(r io.Reader, now func() time.Time) *LineSource {
	if now == nil {
		now = time.Now
	}
	return &LineSource{
		r:     r,
		now:   now,
		lines: make(chan Event),
		done:  make(chan struct{}),
	}
}

// Subscribe returns a stream fed by the shared reader goroutine. Once the
// reader reached EOF, Subscribe returns [ErrExhausted].
func (l *LineSource) Subscribe(ctx context.Context) (Stream, error) {
	l.start.Do(func() { go l.read() })
	select {
	case <-l.done:
		return nil, ErrExhausted
	default:
	}

	s := &lineStream{
		events: make(chan Event),
		closed: make(chan struct{}),
	}
	go s.forward(ctx, l.lines, l.done)
	return s, nil
}

func (l *LineSource) read() {
	defer close(l.done)
	sc := bufio.NewScanner(l.r)
	for sc.Scan() {
		ev, ok := ParseLine(sc.Text(), l.now())
		if !ok {
			continue
		}
		l.lines <- ev
	}
}

// ParseLine converts one line of the text format into an event. It reports
// false for lines that carry nothing.
func ParseLine(line string, at time.Time) (Event, bool) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return Event{}, false
	case strings.HasPrefix(line, "!"):
		return Event{ArrivedAt: at, Err: fmt.Errorf("%w: %s", ErrTransient, strings.TrimSpace(line[1:]))}, true
	case strings.HasPrefix(line, "~"):
		text := strings.TrimSpace(line[1:])
		if text == "" {
			return Event{}, false
		}
		return Event{Candidates: []string{text}, ArrivedAt: at, Interim: true}, true
	}

	var cands []string
	for _, c := range strings.Split(line, "|") {
		if c = strings.TrimSpace(c); c != "" {
			cands = append(cands, c)
		}
	}
	if len(cands) == 0 {
		return Event{}, false
	}
	return Event{Candidates: cands, ArrivedAt: at}, true
}

type lineStream struct {
	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *lineStream) Events() <-chan Event { return s.events }

func (s *lineStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *lineStream) forward(ctx context.Context, lines <-chan Event, done <-chan struct{}) {
	defer close(s.events)
	for {
		select {
		case <-s.closed:
			return
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		case <-done:
			select {
			case s.events <- Event{Err: ErrExhausted}:
			case <-s.closed:
			case <-ctx.Done():
			}
			return
		case ev := <-lines:
			select {
			case s.events <- ev:
			case <-s.closed:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}
