package observe

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestProviders(t *testing.T, cfg ProviderConfig) (*Providers, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	cfg.Registerer = reg
	p, err := NewProviders(cfg)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, reg
}

func TestNewProviders_ExportsSessionMetricsWithResource(t *testing.T) {
	t.Parallel()

	p, reg := newTestProviders(t, ProviderConfig{MatchPolicy: "phonetic", STTProvider: "deepgram"})
	m, err := NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordNote(context.Background(), "Perfect", "exact", 80*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var notes, policy, stt bool
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "cadence_notes_finalized") {
			notes = true
		}
		if mf.GetName() != "target_info" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, l := range metric.GetLabel() {
				switch {
				case l.GetName() == "cadence_match_policy" && l.GetValue() == "phonetic":
					policy = true
				case l.GetName() == "cadence_stt_provider" && l.GetValue() == "deepgram":
					stt = true
				}
			}
		}
	}
	if !notes {
		t.Error("cadence_notes_finalized was not exported")
	}
	if !policy || !stt {
		t.Errorf("target_info match policy=%v stt provider=%v, want both labels", policy, stt)
	}
}

func TestNewProviders_SampleRatio(t *testing.T) {
	t.Parallel()

	p, _ := newTestProviders(t, ProviderConfig{})
	_, span := p.Tracer.Tracer("test").Start(context.Background(), "session")
	span.End()
	if !span.SpanContext().IsSampled() {
		t.Error("default ratio did not sample the session span")
	}

	p, _ = newTestProviders(t, ProviderConfig{TraceSampleRatio: 1e-12})
	_, span = p.Tracer.Tracer("test").Start(context.Background(), "session")
	span.End()
	if span.SpanContext().IsSampled() {
		t.Error("a near-zero ratio sampled the session span")
	}
}

func TestNewProviders_RejectsBadRatio(t *testing.T) {
	t.Parallel()

	for _, ratio := range []float64{-0.1, 1.5} {
		if _, err := NewProviders(ProviderConfig{TraceSampleRatio: ratio, Registerer: prometheus.NewRegistry()}); err == nil {
			t.Errorf("NewProviders(ratio %v) succeeded", ratio)
		}
	}
}
