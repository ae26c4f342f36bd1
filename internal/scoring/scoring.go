package scoring

import (
	"math"
	"sort"
)

// MaxAnswer is the top of the 1..5 confidence scale.
const MaxAnswer = 5

// AnswerSet maps question code to the selected value for one level and pass.
type AnswerSet map[string]int

// ValidAnswer reports whether v is on the 1..5 scale.
func ValidAnswer(v int) bool { return v >= 1 && v <= MaxAnswer }

// Clone returns an independent copy.
func (a AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// LevelScore is the mean answer as a percentage of the maximum. Out-of-range
// values count as zero; an empty set scores 0.
func LevelScore(answers AnswerSet) float64 {
	if len(answers) == 0 {
		return 0
	}
	sum := 0
	for _, v := range answers {
		if ValidAnswer(v) {
			sum += v
		}
	}
	avg := float64(sum) / float64(len(answers))
	return avg / MaxAnswer * 100
}

// Gleams is the raw point total: every answer earns its share of the level's
// per-question ceiling.
func Gleams(answers AnswerSet, pointsPerQuestion float64) float64 {
	total := 0.0
	for _, v := range answers {
		if ValidAnswer(v) {
			total += float64(v) / MaxAnswer * pointsPerQuestion
		}
	}
	return total
}

// Alicorns converts Gleams to the display unit, rounded to 2 decimals.
func Alicorns(gleams float64) float64 {
	return math.Round(gleams/100*100) / 100
}

// Cumulative averages level percentages; it does not grow with the number
// of levels completed.
func Cumulative(percentages []float64) float64 {
	if len(percentages) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range percentages {
		sum += p
	}
	return sum / float64(len(percentages))
}

// Gap is how far the aspiration sits above current reality.
func Gap(current, aspirational float64) float64 {
	return aspirational - current
}

// Result is the derived score of one answer set.
type Result struct {
	Percentage float64 `json:"percentage"`
	Gleams     float64 `json:"gleams"`
	Alicorns   float64 `json:"alicorns"`
}

// Option configures an Aggregator.
type Option func(*config)

type config struct {
	ceilings       func(levelID string) float64
	defaultCeiling float64
}

// WithCeilings installs the per-level points-per-question lookup.
func WithCeilings(f func(levelID string) float64) Option {
	return func(c *config) { c.ceilings = f }
}

// WithDefaultCeiling is used when the lookup returns 0 for a level.
func WithDefaultCeiling(points float64) Option {
	return func(c *config) { c.defaultCeiling = points }
}

// Aggregator scores answer sets against a ceiling table.
type Aggregator struct {
	cfg config
}

func NewAggregator(opts ...Option) *Aggregator {
	cfg := config{defaultCeiling: 10}
	for _, o := range opts {
		o(&cfg)
	}
	return &Aggregator{cfg: cfg}
}

func (a *Aggregator) Ceiling(levelID string) float64 {
	if a.cfg.ceilings != nil {
		if c := a.cfg.ceilings(levelID); c > 0 {
			return c
		}
	}
	return a.cfg.defaultCeiling
}

// Score computes the full result for one level's answers.
func (a *Aggregator) Score(levelID string, answers AnswerSet) Result {
	g := Gleams(answers, a.Ceiling(levelID))
	return Result{
		Percentage: LevelScore(answers),
		Gleams:     g,
		Alicorns:   Alicorns(g),
	}
}

// Set is one finalized answer set handed to Summarize.
type Set struct {
	Level        string
	Ordinal      int
	Aspirational bool
	Answers      AnswerSet
}

type LevelResult struct {
	Level        string `json:"level"`
	Aspirational bool   `json:"aspirational"`
	Result
}

// Summary is the results-page view across every finalized set.
type Summary struct {
	Levels                 []LevelResult `json:"levels"`
	CumulativeCurrent      float64       `json:"cumulative_current"`
	CumulativeAspirational float64       `json:"cumulative_aspirational"`
	TotalGleams            float64       `json:"total_gleams"`
	TotalAlicorns          float64       `json:"total_alicorns"`
	Gap                    float64       `json:"gap"`
}

// Summarize scores every set. Percentages are averaged per pass while Gleams
// add up across all sets.
func (a *Aggregator) Summarize(sets []Set) Summary {
	sorted := append([]Set(nil), sets...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Ordinal != sorted[j].Ordinal {
			return sorted[i].Ordinal < sorted[j].Ordinal
		}
		return !sorted[i].Aspirational && sorted[j].Aspirational
	})

	var s Summary
	var cur, asp []float64
	for _, set := range sorted {
		r := a.Score(set.Level, set.Answers)
		s.Levels = append(s.Levels, LevelResult{Level: set.Level, Aspirational: set.Aspirational, Result: r})
		s.TotalGleams += r.Gleams
		if set.Aspirational {
			asp = append(asp, r.Percentage)
		} else {
			cur = append(cur, r.Percentage)
		}
	}
	s.CumulativeCurrent = Cumulative(cur)
	s.CumulativeAspirational = Cumulative(asp)
	s.TotalAlicorns = Alicorns(s.TotalGleams)
	if len(cur) > 0 && len(asp) > 0 {
		s.Gap = Gap(s.CumulativeCurrent, s.CumulativeAspirational)
	}
	return s
}
