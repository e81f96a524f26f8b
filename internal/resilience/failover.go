package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/cadence/internal/observe"
	"github.com/MrWong99/cadence/pkg/provider/stt"
)

// ErrAllFailed is returned when no provider in an [STTFailover] could open
// a stream.
var ErrAllFailed = errors.New("resilience: all stt providers failed")

var _ stt.Provider = (*STTFailover)(nil)

type member struct {
	name     string
	provider stt.Provider
	breaker  *Breaker
}

// STTFailover implements [stt.Provider] over an ordered list of providers.
// StartStream uses the first provider whose breaker admits the call and
// whose StartStream succeeds. Once a stream is open it is not migrated; the
// transcript subscriber resubscribes through StartStream on failure.
type STTFailover struct {
	cfg     BreakerConfig
	metrics *observe.Metrics
	members []member
}

// NewSTTFailover returns a failover chain with primary as the preferred
// provider. cfg is applied to the breaker of every member.
func NewSTTFailover(primaryName string, primary stt.Provider, cfg BreakerConfig, metrics *observe.Metrics) *STTFailover {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	f := &STTFailover{cfg: cfg, metrics: metrics}
	f.Add(primaryName, primary)
	return f
}

// Add appends a fallback provider. It must not be called concurrently with
// StartStream.
func (f *STTFailover) Add(name string, p stt.Provider) {
	cfg := f.cfg
	cfg.Name = name
	f.members = append(f.members, member{name: name, provider: p, breaker: NewBreaker(cfg)})
}

// Names returns the provider names in failover order.
func (f *STTFailover) Names() []string {
	out := make([]string, len(f.members))
	for i, m := range f.members {
		out[i] = m.name
	}
	return out
}

// States returns the breaker state of every member keyed by name.
func (f *STTFailover) States() map[string]State {
	out := make(map[string]State, len(f.members))
	for _, m := range f.members {
		out[m.name] = m.breaker.State()
	}
	return out
}

// StartStream opens a stream on the first healthy provider.
func (f *STTFailover) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	var errs []error
	for _, m := range f.members {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var h stt.SessionHandle
		err := m.breaker.Do(func() error {
			var err error
			h, err = m.provider.StartStream(ctx, cfg)
			return err
		})
		if err == nil {
			return h, nil
		}
		if errors.Is(err, ErrOpen) {
			slog.Debug("skipping stt provider, circuit open", "provider", m.name)
			f.metrics.RecordProviderError(ctx, m.name, "circuit_open")
		} else {
			slog.Warn("stt provider failed to start, trying next", "provider", m.name, "err", err)
			f.metrics.RecordProviderError(ctx, m.name, "start")
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
	}
	return nil, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
