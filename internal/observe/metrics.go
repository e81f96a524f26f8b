// Package observe provides the observability primitives of cadence:
// OpenTelemetry metrics and tracing, trace-aware structured logging, and the
// HTTP surface (/metrics, /healthz, /readyz) that exposes them.
//
// Metrics are recorded through the OpenTelemetry Metrics API and bridged to
// Prometheus by [InitProvider]. [DefaultMetrics] returns a package-level
// instance bound to the global meter provider; tests should use [NewMetrics]
// with their own [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all cadence metrics.
const meterName = "github.com/MrWong99/cadence"

// Transcript event statuses used with [Metrics.RecordTranscriptEvent].
const (
	EventMatched   = "matched"
	EventUnmatched = "unmatched"
	EventDiscarded = "discarded"
	EventInterim   = "interim"
	EventError     = "error"
)

// Metrics holds every OpenTelemetry instrument of the application. All fields
// are safe for concurrent use.
type Metrics struct {
	// NotesFinalized counts finalized notes. Attributes: rating, match.
	NotesFinalized metric.Int64Counter

	// TimingDelta tracks the distance between an accepted utterance and its
	// note's scheduled instant.
	TimingDelta metric.Float64Histogram

	// TranscriptEvents counts transcription events by status.
	TranscriptEvents metric.Int64Counter

	// StreamRestarts counts transcription stream resubscriptions. Attribute:
	// reason ("error", "closed", "subscribe_failed").
	StreamRestarts metric.Int64Counter

	// Sessions counts finished sessions. Attributes: outcome, grade.
	Sessions metric.Int64Counter

	// ActiveSessions tracks the number of running sessions.
	ActiveSessions metric.Int64UpDownCounter

	// TickDuration tracks the time spent in one engine tick.
	TickDuration metric.Float64Histogram

	// ProviderErrors counts STT provider failures. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// StoreDuration tracks result store operations. Attributes: op, status.
	StoreDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// timingBuckets are in seconds and follow the scoring tiers.
var timingBuckets = []float64{
	0.05, 0.1, 0.15, 0.2, 0.3, 0.45, 0.6, 1, 2,
}

// tickBuckets are in seconds; a tick only does in-memory work.
var tickBuckets = []float64{
	0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.016,
}

var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates every instrument using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.NotesFinalized, err = m.Int64Counter("cadence.notes.finalized",
		metric.WithDescription("Total finalized notes by rating and match kind."),
	); err != nil {
		return nil, err
	}
	if met.TimingDelta, err = m.Float64Histogram("cadence.notes.timing_delta",
		metric.WithDescription("Distance between an accepted utterance and the note's scheduled instant."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(timingBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptEvents, err = m.Int64Counter("cadence.transcript.events",
		metric.WithDescription("Total transcription events by status."),
	); err != nil {
		return nil, err
	}
	if met.StreamRestarts, err = m.Int64Counter("cadence.transcript.restarts",
		metric.WithDescription("Total transcription stream resubscriptions by reason."),
	); err != nil {
		return nil, err
	}
	if met.Sessions, err = m.Int64Counter("cadence.sessions",
		metric.WithDescription("Total finished sessions by outcome and grade."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("cadence.active_sessions",
		metric.WithDescription("Number of running practice sessions."),
	); err != nil {
		return nil, err
	}
	if met.TickDuration, err = m.Float64Histogram("cadence.engine.tick.duration",
		metric.WithDescription("Time spent processing one engine tick."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(tickBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("cadence.provider.errors",
		metric.WithDescription("Total STT provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.StoreDuration, err = m.Float64Histogram("cadence.store.duration",
		metric.WithDescription("Latency of result store operations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("cadence.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from [otel.GetMeterProvider]. Call it after [InitProvider] so the
// instruments bind to the Prometheus-backed provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordNote counts a finalized note. delta is recorded only for notes that
// were matched (match != "none").
func (m *Metrics) RecordNote(ctx context.Context, rating, match string, delta time.Duration) {
	m.NotesFinalized.Add(ctx, 1, metric.WithAttributes(Attr("rating", rating), Attr("match", match)))
	if match != "none" {
		m.TimingDelta.Record(ctx, delta.Seconds())
	}
}

// RecordTranscriptEvent counts one transcription event.
func (m *Metrics) RecordTranscriptEvent(ctx context.Context, status string) {
	m.TranscriptEvents.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}

// RecordStreamRestart counts one resubscription.
func (m *Metrics) RecordStreamRestart(ctx context.Context, reason string) {
	m.StreamRestarts.Add(ctx, 1, metric.WithAttributes(Attr("reason", reason)))
}

// RecordSession counts one finished session. grade is empty for aborted
// sessions.
func (m *Metrics) RecordSession(ctx context.Context, outcome, grade string) {
	attrs := []attribute.KeyValue{Attr("outcome", outcome)}
	if grade != "" {
		attrs = append(attrs, Attr("grade", grade))
	}
	m.Sessions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordProviderError counts one STT provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("kind", kind)))
}

// RecordStoreOp records the latency of one store operation.
func (m *Metrics) RecordStoreOp(ctx context.Context, op string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StoreDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("op", op), Attr("status", status)))
}
