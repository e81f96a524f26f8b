package engine

import (
	"fmt"
	"strings"

	"github.com/MrWong99/cadence/internal/scoring"
	"github.com/MrWong99/cadence/internal/transcript/phonetic"
)

// MatchPolicy selects how forgiving candidate matching is.
type MatchPolicy int

const (
	// PolicySubstring accepts exact matches and containment in either
	// direction. Short targets such as "a" match many candidates.
	PolicySubstring MatchPolicy = iota

	// PolicyPhonetic additionally accepts candidates that sound like the
	// target when no candidate passes the substring rule.
	PolicyPhonetic
)

// String returns the config name of the policy.
func (p MatchPolicy) String() string {
	switch p {
	case PolicySubstring:
		return "substring"
	case PolicyPhonetic:
		return "phonetic"
	default:
		return fmt.Sprintf("MatchPolicy(%d)", int(p))
	}
}

// ParseMatchPolicy maps a config name to a policy. Empty means substring.
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch s {
	case "", "substring":
		return PolicySubstring, nil
	case "phonetic":
		return PolicyPhonetic, nil
	}
	return 0, fmt.Errorf("engine: unknown match policy %q", s)
}

// Match is an accepted candidate.
type Match struct {
	Candidate string
	Kind      scoring.MatchKind
}

// Resolver decides whether any candidate of an event names the target word.
// It is stateless apart from its configuration.
type Resolver struct {
	policy  MatchPolicy
	matcher *phonetic.Matcher
}

// NewResolver returns a Resolver. matcher may be nil, in which case a default
// phonetic matcher is used for PolicyPhonetic and near-miss reporting.
func NewResolver(policy MatchPolicy, matcher *phonetic.Matcher) *Resolver {
	if matcher == nil {
		matcher = phonetic.New()
	}
	return &Resolver{policy: policy, matcher: matcher}
}

// Resolve scans candidates in rank order and returns the first accepted one.
// The phonetic pass runs only after every candidate failed the substring rule.
func (r *Resolver) Resolve(candidates []string, target string) (Match, bool) {
	t := Normalize(target)
	if t == "" {
		return Match{}, false
	}
	for _, c := range candidates {
		n := Normalize(c)
		if n == "" {
			continue
		}
		switch {
		case n == t:
			return Match{Candidate: c, Kind: scoring.MatchExact}, true
		case strings.Contains(n, t) || strings.Contains(t, n):
			return Match{Candidate: c, Kind: scoring.MatchSubstring}, true
		}
	}
	if r.policy != PolicyPhonetic {
		return Match{}, false
	}
	for _, c := range candidates {
		n := Normalize(c)
		if n == "" {
			continue
		}
		if _, ok := r.matcher.Match(n, t); ok {
			return Match{Candidate: c, Kind: scoring.MatchPhonetic}, true
		}
	}
	return Match{}, false
}

// Closest returns the candidate that sounds most like target and its
// similarity, for near-miss feedback.
func (r *Resolver) Closest(candidates []string, target string) (string, float64) {
	var best string
	var score float64
	for _, c := range candidates {
		if s, _ := r.matcher.Match(Normalize(c), Normalize(target)); s > score {
			best, score = c, s
		}
	}
	return best, score
}

// Normalize lower-cases s and trims surrounding whitespace. Punctuation is
// kept, so "cat." only matches "cat" as a substring.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
