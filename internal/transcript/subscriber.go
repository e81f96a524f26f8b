package transcript

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrWong99/cadence/internal/observe"
)

// Default resubscription backoff.
const (
	defaultBackoff    = 100 * time.Millisecond
	defaultMaxBackoff = 2 * time.Second
)

// SubscriberConfig configures a [Subscriber].
type SubscriberConfig struct {
	// Source is owned exclusively by the subscriber while Run executes.
	Source Source

	// Backoff is the first delay before resubscribing. It doubles after each
	// consecutive failure up to MaxBackoff and resets once a candidate event
	// is delivered. Defaults to 100ms.
	Backoff time.Duration

	// MaxBackoff caps the delay. Defaults to 2s.
	MaxBackoff time.Duration

	// Metrics records events and restarts. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Logger defaults to [slog.Default].
	Logger *slog.Logger
}

// Subscriber keeps a Source subscribed for as long as its context lives.
type Subscriber struct {
	src        Source
	backoff    time.Duration
	maxBackoff time.Duration
	metrics    *observe.Metrics
	log        *slog.Logger
}

// NewSubscriber returns a Subscriber with defaults applied.
func NewSubscriber(cfg SubscriberConfig) *Subscriber {
	s := &Subscriber{
		src:        cfg.Source,
		backoff:    cfg.Backoff,
		maxBackoff: cfg.MaxBackoff,
		metrics:    cfg.Metrics,
		log:        cfg.Logger,
	}
	if s.backoff <= 0 {
		s.backoff = defaultBackoff
	}
	if s.maxBackoff <= 0 {
		s.maxBackoff = defaultMaxBackoff
	}
	if s.maxBackoff < s.backoff {
		s.maxBackoff = s.backoff
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Run forwards events into out until ctx is cancelled or the source is
// exhausted. Transient failures never end Run; it only returns nil.
func (s *Subscriber) Run(ctx context.Context, out chan<- Event) error {
	delay := s.backoff
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return nil
		}

		stream, err := s.src.Subscribe(ctx)
		switch {
		case errors.Is(err, ErrExhausted):
			s.log.Info("transcription source exhausted")
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("transcription subscribe failed", "attempt", attempt, "backoff", delay, "err", err)
			s.metrics.RecordStreamRestart(ctx, "subscribe_failed")
		default:
			reason, delivered := s.pump(ctx, stream, out)
			_ = stream.Close()
			if ctx.Err() != nil || reason == reasonExhausted {
				return nil
			}
			if delivered {
				delay = s.backoff
				attempt = 1
			}
			s.log.Debug("transcription stream restarting", "reason", reason, "backoff", delay)
			s.metrics.RecordStreamRestart(ctx, reason)
		}

		if !sleep(ctx, delay) {
			return nil
		}
		delay = min(delay*2, s.maxBackoff)
	}
}

const (
	reasonError     = "error"
	reasonClosed    = "closed"
	reasonExhausted = "exhausted"
	reasonCancelled = "cancelled"
)

// pump forwards events from one stream until it ends. It reports why it
// ended and whether any candidate event was delivered.
func (s *Subscriber) pump(ctx context.Context, stream Stream, out chan<- Event) (string, bool) {
	delivered := false
	events := stream.Events()
	for {
		select {
		case <-ctx.Done():
			return reasonCancelled, delivered
		case ev, ok := <-events:
			if !ok {
				return reasonClosed, delivered
			}
			if ev.Err != nil {
				if errors.Is(ev.Err, ErrExhausted) {
					s.log.Info("transcription source exhausted")
					return reasonExhausted, delivered
				}
				s.log.Warn("transcription error", "err", ev.Err)
				s.metrics.RecordTranscriptEvent(ctx, observe.EventError)
				return reasonError, delivered
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return reasonCancelled, delivered
			}
			if !ev.Interim {
				delivered = true
			}
		}
	}
}

// sleep waits d or until ctx is done. It reports whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
