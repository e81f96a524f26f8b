// Package scoring maps a resolved (or missed) note to a rating and a point
// value.
//
// [Scorer.Score] is a pure function of its [Input]: it reads no shared state
// and is safe to call from any goroutine. The caller owns the combo counter and
// applies the returned [ComboAction].
package scoring

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MrWong99/cadence/pkg/song"
)

// Rating is the discrete quality bucket of a finalized note.
type Rating int

const (
	Miss Rating = iota
	Good
	Great
	Perfect
)

// Ratings lists every rating from best to worst.
var Ratings = []Rating{Perfect, Great, Good, Miss}

// String returns the rating name as shown to players.
func (r Rating) String() string {
	switch r {
	case Perfect:
		return "Perfect"
	case Great:
		return "Great"
	case Good:
		return "Good"
	case Miss:
		return "Miss"
	default:
		return fmt.Sprintf("Rating(%d)", int(r))
	}
}

// MatchKind describes how a spoken candidate matched the target word.
type MatchKind int

const (
	// MatchNone means nothing was spoken in time.
	MatchNone MatchKind = iota
	// MatchExact means the normalized candidate equals the target.
	MatchExact
	// MatchSubstring means one of candidate and target contains the other.
	MatchSubstring
	// MatchPhonetic means the candidate only sounds like the target.
	MatchPhonetic
)

// String returns the lower-case kind name.
func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchSubstring:
		return "substring"
	case MatchPhonetic:
		return "phonetic"
	default:
		return "none"
	}
}

// ComboAction tells the caller how to update its combo counter.
type ComboAction int

const (
	ComboIncrement ComboAction = iota
	ComboReset
)

// TimingTier awards Accuracy to any timing delta at or below Within.
type TimingTier struct {
	Within   time.Duration `yaml:"within"`
	Accuracy int           `yaml:"accuracy"`
}

// Config holds every scoring constant. Start from [DefaultConfig] or
// [Overrides.Config]: a zero field means zero.
type Config struct {
	ExactAccuracy     int `yaml:"exact_accuracy"`
	SubstringAccuracy int `yaml:"substring_accuracy"`
	PhoneticAccuracy  int `yaml:"phonetic_accuracy"`

	// TimingTiers must be ordered by ascending Within.
	TimingTiers  []TimingTier `yaml:"timing_tiers"`
	LateAccuracy int          `yaml:"late_accuracy"`

	PronunciationWeight float64 `yaml:"pronunciation_weight"`
	TimingWeight        float64 `yaml:"timing_weight"`

	PerfectThreshold float64 `yaml:"perfect_threshold"`
	GreatThreshold   float64 `yaml:"great_threshold"`
	GoodThreshold    float64 `yaml:"good_threshold"`

	BaseEasy   int `yaml:"base_easy"`
	BaseMedium int `yaml:"base_medium"`
	BaseHard   int `yaml:"base_hard"`

	PerfectMultiplier float64 `yaml:"perfect_multiplier"`
	GreatMultiplier   float64 `yaml:"great_multiplier"`
	GoodMultiplier    float64 `yaml:"good_multiplier"`

	// ComboStep is the combo length that earns one ComboBonus increment, up
	// to ComboMaxSteps increments.
	ComboStep     int     `yaml:"combo_step"`
	ComboBonus    float64 `yaml:"combo_bonus"`
	ComboMaxSteps int     `yaml:"combo_max_steps"`
}

// DefaultConfig returns the standard scoring table.
func DefaultConfig() Config {
	return Config{
		ExactAccuracy:     100,
		SubstringAccuracy: 70,
		PhoneticAccuracy:  50,
		TimingTiers: []TimingTier{
			{Within: 150 * time.Millisecond, Accuracy: 100},
			{Within: 300 * time.Millisecond, Accuracy: 85},
			{Within: 600 * time.Millisecond, Accuracy: 65},
		},
		LateAccuracy:        30,
		PronunciationWeight: 0.4,
		TimingWeight:        0.6,
		PerfectThreshold:    90,
		GreatThreshold:      75,
		GoodThreshold:       50,
		BaseEasy:            100,
		BaseMedium:          150,
		BaseHard:            200,
		PerfectMultiplier:   1.0,
		GreatMultiplier:     0.8,
		GoodMultiplier:      0.5,
		ComboStep:           5,
		ComboBonus:          0.1,
		ComboMaxSteps:       10,
	}
}

// Overrides is the configurable subset of [Config]. A nil field keeps its
// [DefaultConfig] value and a non-nil one replaces it, zero included.
type Overrides struct {
	ExactAccuracy     *int `yaml:"exact_accuracy"`
	SubstringAccuracy *int `yaml:"substring_accuracy"`
	PhoneticAccuracy  *int `yaml:"phonetic_accuracy"`

	TimingTiers  []TimingTier `yaml:"timing_tiers"`
	LateAccuracy *int         `yaml:"late_accuracy"`

	PronunciationWeight *float64 `yaml:"pronunciation_weight"`
	TimingWeight        *float64 `yaml:"timing_weight"`

	PerfectThreshold *float64 `yaml:"perfect_threshold"`
	GreatThreshold   *float64 `yaml:"great_threshold"`
	GoodThreshold    *float64 `yaml:"good_threshold"`

	BaseEasy   *int `yaml:"base_easy"`
	BaseMedium *int `yaml:"base_medium"`
	BaseHard   *int `yaml:"base_hard"`

	PerfectMultiplier *float64 `yaml:"perfect_multiplier"`
	GreatMultiplier   *float64 `yaml:"great_multiplier"`
	GoodMultiplier    *float64 `yaml:"good_multiplier"`

	ComboStep     *int     `yaml:"combo_step"`
	ComboBonus    *float64 `yaml:"combo_bonus"`
	ComboMaxSteps *int     `yaml:"combo_max_steps"`
}

// Config returns [DefaultConfig] with every non-nil override applied.
func (o Overrides) Config() Config {
	c := DefaultConfig()
	if o.TimingTiers != nil {
		c.TimingTiers = o.TimingTiers
	}
	set(&c.ExactAccuracy, o.ExactAccuracy)
	set(&c.SubstringAccuracy, o.SubstringAccuracy)
	set(&c.PhoneticAccuracy, o.PhoneticAccuracy)
	set(&c.LateAccuracy, o.LateAccuracy)
	set(&c.BaseEasy, o.BaseEasy)
	set(&c.BaseMedium, o.BaseMedium)
	set(&c.BaseHard, o.BaseHard)
	set(&c.ComboStep, o.ComboStep)
	set(&c.ComboMaxSteps, o.ComboMaxSteps)
	set(&c.PronunciationWeight, o.PronunciationWeight)
	set(&c.TimingWeight, o.TimingWeight)
	set(&c.PerfectThreshold, o.PerfectThreshold)
	set(&c.GreatThreshold, o.GreatThreshold)
	set(&c.GoodThreshold, o.GoodThreshold)
	set(&c.PerfectMultiplier, o.PerfectMultiplier)
	set(&c.GreatMultiplier, o.GreatMultiplier)
	set(&c.GoodMultiplier, o.GoodMultiplier)
	set(&c.ComboBonus, o.ComboBonus)
	return c
}

func set[T int | float64](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Validate reports every inconsistent constant in c joined into one error.
func (c Config) Validate() error {
	var errs []error
	for name, v := range map[string]int{
		"exact_accuracy":     c.ExactAccuracy,
		"substring_accuracy": c.SubstringAccuracy,
		"phonetic_accuracy":  c.PhoneticAccuracy,
		"late_accuracy":      c.LateAccuracy,
	} {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Errorf("scoring: %s %d is outside [0, 100]", name, v))
		}
	}
	var prev time.Duration
	for i, tier := range c.TimingTiers {
		if tier.Within <= prev {
			errs = append(errs, fmt.Errorf("scoring: timing_tiers[%d] within %v must be greater than %v", i, tier.Within, prev))
		}
		if tier.Accuracy < 0 || tier.Accuracy > 100 {
			errs = append(errs, fmt.Errorf("scoring: timing_tiers[%d] accuracy %d is outside [0, 100]", i, tier.Accuracy))
		}
		prev = tier.Within
	}
	if c.PronunciationWeight < 0 || c.TimingWeight < 0 || math.Abs(c.PronunciationWeight+c.TimingWeight-1) > 1e-9 {
		errs = append(errs, fmt.Errorf("scoring: pronunciation_weight %.2f and timing_weight %.2f must be non-negative and sum to 1",
			c.PronunciationWeight, c.TimingWeight))
	}
	if !(c.PerfectThreshold >= c.GreatThreshold && c.GreatThreshold >= c.GoodThreshold) {
		errs = append(errs, errors.New("scoring: thresholds must satisfy perfect >= great >= good"))
	}
	if c.BaseEasy < 0 || c.BaseMedium < 0 || c.BaseHard < 0 {
		errs = append(errs, errors.New("scoring: base values must be non-negative"))
	}
	if c.PerfectMultiplier < 0 || c.GreatMultiplier < 0 || c.GoodMultiplier < 0 || c.ComboBonus < 0 {
		errs = append(errs, errors.New("scoring: multipliers must be non-negative"))
	}
	if c.ComboStep <= 0 || c.ComboMaxSteps < 0 {
		errs = append(errs, errors.New("scoring: combo_step must be positive and combo_max_steps non-negative"))
	}
	return errors.Join(errs...)
}

// Input is everything the scorer needs about one note.
type Input struct {
	Match       MatchKind
	TimingDelta time.Duration
	Combo       int
	Difficulty  song.Difficulty
}

// Result is the scored outcome of one note.
type Result struct {
	PronunciationAccuracy int
	TimingAccuracy        int
	Combined              float64
	Rating                Rating
	Points                int
	Combo                 ComboAction
}

// Scorer applies a validated [Config].
type Scorer struct {
	cfg Config
}

// New returns a Scorer for cfg after validating it.
func New(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

// Default returns a Scorer using [DefaultConfig].
func Default() *Scorer {
	return &Scorer{cfg: DefaultConfig()}
}

// Config returns the effective configuration.
func (s *Scorer) Config() Config { return s.cfg }

// Score rates one note. MatchNone always yields a zero Miss.
func (s *Scorer) Score(in Input) Result {
	if in.Match == MatchNone {
		return MissResult()
	}
	pron := s.PronunciationAccuracy(in.Match)
	timing := s.TimingAccuracy(in.TimingDelta)
	combined := s.cfg.PronunciationWeight*float64(pron) + s.cfg.TimingWeight*float64(timing)
	rating := s.RatingFor(combined)

	res := Result{
		PronunciationAccuracy: pron,
		TimingAccuracy:        timing,
		Combined:              combined,
		Rating:                rating,
		Combo:                 ComboIncrement,
	}
	if rating == Miss {
		res.Combo = ComboReset
		return res
	}
	pts := float64(s.BaseValue(in.Difficulty)) * s.RatingMultiplier(rating) * s.ComboMultiplier(in.Combo)
	res.Points = int(math.Round(pts))
	return res
}

// MissResult is the zero-accuracy outcome of a note that timed out.
func MissResult() Result {
	return Result{Rating: Miss, Combo: ComboReset}
}

// PronunciationAccuracy returns the 0–100 score for a match kind.
func (s *Scorer) PronunciationAccuracy(k MatchKind) int {
	switch k {
	case MatchExact:
		return s.cfg.ExactAccuracy
	case MatchSubstring:
		return s.cfg.SubstringAccuracy
	case MatchPhonetic:
		return s.cfg.PhoneticAccuracy
	default:
		return 0
	}
}

// TimingAccuracy returns the 0–100 score for an absolute timing delta.
func (s *Scorer) TimingAccuracy(delta time.Duration) int {
	if delta < 0 {
		delta = -delta
	}
	for _, tier := range s.cfg.TimingTiers {
		if delta <= tier.Within {
			return tier.Accuracy
		}
	}
	return s.cfg.LateAccuracy
}

// RatingFor buckets a combined accuracy.
func (s *Scorer) RatingFor(combined float64) Rating {
	switch {
	case combined >= s.cfg.PerfectThreshold:
		return Perfect
	case combined >= s.cfg.GreatThreshold:
		return Great
	case combined >= s.cfg.GoodThreshold:
		return Good
	default:
		return Miss
	}
}

// BaseValue returns the points a Perfect hit is worth before combo bonus.
func (s *Scorer) BaseValue(d song.Difficulty) int {
	switch d {
	case song.Medium:
		return s.cfg.BaseMedium
	case song.Hard:
		return s.cfg.BaseHard
	default:
		return s.cfg.BaseEasy
	}
}

// RatingMultiplier scales the base value. Miss is always 0.
func (s *Scorer) RatingMultiplier(r Rating) float64 {
	switch r {
	case Perfect:
		return s.cfg.PerfectMultiplier
	case Great:
		return s.cfg.GreatMultiplier
	case Good:
		return s.cfg.GoodMultiplier
	default:
		return 0
	}
}

// ComboMultiplier grows by ComboBonus for every ComboStep consecutive
// non-Miss notes, capped at ComboMaxSteps steps.
func (s *Scorer) ComboMultiplier(combo int) float64 {
	if combo <= 0 {
		return 1
	}
	steps := min(combo/s.cfg.ComboStep, s.cfg.ComboMaxSteps)
	return 1 + s.cfg.ComboBonus*float64(steps)
}
