package stt

import "time"

// Transcript is one partial or final speech-to-text result.
type Transcript struct {
	// Text is the best hypothesis.
	Text string

	// Alternatives holds lower-ranked hypotheses in rank order, excluding
	// Text. Empty when the provider returned a single hypothesis.
	Alternatives []string

	// IsFinal distinguishes committed results from interim ones.
	IsFinal bool

	// Confidence of Text in [0, 1]. Zero when not reported.
	Confidence float64

	// Words carries per-word detail when the provider reports it.
	Words []WordDetail

	// Timestamp is the utterance start relative to session start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// Candidates returns Text followed by Alternatives, skipping empty and
// duplicate entries.
func (t Transcript) Candidates() []string {
	out := make([]string, 0, 1+len(t.Alternatives))
	seen := make(map[string]struct{}, 1+len(t.Alternatives))
	for _, c := range append([]string{t.Text}, t.Alternatives...) {
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// WordDetail holds per-word timing and confidence.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a word whose recognition the provider should favour.
type KeywordBoost struct {
	Keyword string

	// Boost is the provider-specific intensity.
	Boost float64
}
