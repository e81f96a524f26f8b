package phonetic_test

import (
	"testing"

	"github.com/MrWong99/cadence/internal/transcript/phonetic"
)

func TestMatcher_SoundsAlike(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	tests := []struct {
		spoken, target string
	}{
		{"kat", "cat"},
		{"the kat", "cat"},
		{"seashels", "seashells"},
		{"fantastik", "fantastic"},
	}
	for _, tt := range tests {
		score, ok := m.Match(tt.spoken, tt.target)
		if !ok {
			t.Errorf("Match(%q, %q) = %f, false; want true", tt.spoken, tt.target, score)
		}
	}
}

func TestMatcher_Different(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	tests := []struct {
		spoken, target string
	}{
		{"budget", "presentation"},
		{"hello", "woodchuck"},
		{"", "cat"},
		{"cat", "   "},
	}
	for _, tt := range tests {
		if score, ok := m.Match(tt.spoken, tt.target); ok {
			t.Errorf("Match(%q, %q) = %f, true; want false", tt.spoken, tt.target, score)
		}
	}
}

func TestMatcher_CompareIdentical(t *testing.T) {
	t.Parallel()

	c := phonetic.New().Compare("Cat", "cat")
	if c.Similarity < 0.99 || !c.SharesCode || !c.Accepted {
		t.Errorf("Compare(Cat, cat) = %+v, want similarity ~1, shared code, accepted", c)
	}
}

func TestMatcher_Thresholds(t *testing.T) {
	t.Parallel()

	strict := phonetic.New(phonetic.WithPhoneticThreshold(1.0), phonetic.WithFuzzyThreshold(1.0))
	if _, ok := strict.Match("kat", "cat"); ok {
		t.Error("strict Match(kat, cat) accepted, want rejected")
	}
}
