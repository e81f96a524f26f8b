// Package phonetic scores how closely a spoken candidate sounds like a target
// word.
//
// Two signals are combined:
//
//  1. Double Metaphone codes are computed for every token of the candidate and
//     the target. A shared code marks the pair as phonetically equivalent.
//  2. Jaro-Winkler similarity on the lower-cased strings ranks the pair. The
//     best of the full strings, the space-stripped strings and any token pair
//     is used, so "the kat" still scores high against "cat".
//
// A pair is accepted when it shares a code and reaches the phonetic threshold
// (default 0.70), or shares no code but reaches the stricter fuzzy threshold
// (default 0.85).
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum similarity for a pair sharing a
// Double Metaphone code. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum similarity for a pair sharing no code.
// Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher compares candidates against target words. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Comparison is the outcome of comparing one candidate with one target.
type Comparison struct {
	// Similarity is the best Jaro-Winkler score in [0, 1].
	Similarity float64

	// SharesCode reports whether any Double Metaphone code overlapped.
	SharesCode bool

	// Accepted reports whether the pair passes the configured thresholds.
	Accepted bool
}

// Compare scores spoken against target. Empty input never matches.
func (m *Matcher) Compare(spoken, target string) Comparison {
	spokenTokens := strings.Fields(strings.ToLower(spoken))
	targetTokens := strings.Fields(strings.ToLower(target))
	if len(spokenTokens) == 0 || len(targetTokens) == 0 {
		return Comparison{}
	}

	c := Comparison{
		Similarity: similarity(spokenTokens, targetTokens),
		SharesCode: overlaps(codes(spokenTokens), codes(targetTokens)),
	}
	if c.SharesCode {
		c.Accepted = c.Similarity >= m.phoneticThreshold
	} else {
		c.Accepted = c.Similarity >= m.fuzzyThreshold
	}
	return c
}

// Match reports whether spoken sounds like target, with the similarity score.
func (m *Matcher) Match(spoken, target string) (float64, bool) {
	c := m.Compare(spoken, target)
	return c.Similarity, c.Accepted
}

// codes returns the union of primary and secondary Double Metaphone codes of
// tokens, skipping empty codes.
func codes(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			out[p] = struct{}{}
		}
		if s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity is the maximum Jaro-Winkler score over the joined strings, the
// space-stripped strings and every token pair.
func similarity(a, b []string) float64 {
	best := matchr.JaroWinkler(strings.Join(a, " "), strings.Join(b, " "), false)
	if len(a) > 1 || len(b) > 1 {
		best = max(best, matchr.JaroWinkler(strings.Join(a, ""), strings.Join(b, ""), false))
	}
	for _, x := range a {
		for _, y := range b {
			best = max(best, matchr.JaroWinkler(x, y, false))
		}
	}
	return best
}
