package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

var ErrUnknownLevel = errors.New("unknown level")

type document struct {
	Levels []levelDoc `yaml:"levels"`
}

type levelDoc struct {
	Level     `yaml:",inline"`
	Questions []Question `yaml:"questions"`
}

// Catalog is the read-only set of levels and their questions.
type Catalog struct {
	levels    []Level
	byID      map[string]int
	questions map[string][]Question
}

// Default returns the embedded catalog. It panics only if the embedded file is
// broken, which the package tests guard against.
func Default() *Catalog {
	c, err := Parse(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded default: %v", err))
	}
	return c
}

// Load reads a YAML catalog from path.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML catalog.
func Parse(raw []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	c := &Catalog{
		byID:      map[string]int{},
		questions: map[string][]Question{},
	}
	for _, ld := range doc.Levels {
		c.levels = append(c.levels, ld.Level)
		qs := make([]Question, 0, len(ld.Questions))
		for _, q := range ld.Questions {
			q.LevelID = ld.ID
			qs = append(qs, q)
		}
		c.questions[ld.ID] = qs
	}
	sort.SliceStable(c.levels, func(i, j int) bool { return c.levels[i].Ordinal < c.levels[j].Ordinal })
	for i, l := range c.levels {
		c.byID[l.ID] = i
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the structural rules the wizard relies on.
func (c *Catalog) Validate() error {
	if len(c.levels) == 0 {
		return errors.New("catalog has no levels")
	}
	seenID := map[string]bool{}
	seenOrd := map[int]bool{}
	for _, l := range c.levels {
		if l.ID == "" {
			return errors.New("level with empty id")
		}
		if seenID[l.ID] {
			return fmt.Errorf("duplicate level id %q", l.ID)
		}
		if seenOrd[l.Ordinal] {
			return fmt.Errorf("duplicate ordinal %d (level %q)", l.Ordinal, l.ID)
		}
		seenID[l.ID], seenOrd[l.Ordinal] = true, true
		if l.PointsPerQuestion <= 0 {
			return fmt.Errorf("level %q: points_per_question must be positive", l.ID)
		}
		qs := c.questions[l.ID]
		if len(qs) == 0 {
			return fmt.Errorf("level %q has no questions", l.ID)
		}
		codes := map[string]bool{}
		for _, q := range qs {
			if q.Code == "" {
				return fmt.Errorf("level %q: question with empty code", l.ID)
			}
			if codes[q.Code] {
				return fmt.Errorf("level %q: duplicate question code %q", l.ID, q.Code)
			}
			codes[q.Code] = true
			if !q.Category.Valid() {
				return fmt.Errorf("level %q question %q: unknown category %q", l.ID, q.Code, q.Category)
			}
			for st := range q.Text {
				if !st.Valid() {
					return fmt.Errorf("level %q question %q: unknown stakeholder %q", l.ID, q.Code, st)
				}
			}
			if q.TextFor(DefaultStakeholder) == "" {
				return fmt.Errorf("level %q question %q has no text", l.ID, q.Code)
			}
		}
	}
	return nil
}

// Levels returns all levels in ordinal order.
func (c *Catalog) Levels() []Level {
	out := make([]Level, len(c.levels))
	copy(out, c.levels)
	return out
}

func (c *Catalog) Level(id string) (Level, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Level{}, false
	}
	return c.levels[i], true
}

func (c *Catalog) Questions(levelID string) []Question {
	qs := c.questions[levelID]
	out := make([]Question, len(qs))
	copy(out, qs)
	return out
}

func (c *Catalog) QuestionCount(levelID string) int {
	return len(c.questions[levelID])
}

// HasQuestion reports whether code belongs to the level.
func (c *Catalog) HasQuestion(levelID, code string) bool {
	for _, q := range c.questions[levelID] {
		if q.Code == code {
			return true
		}
	}
	return false
}

// Compare orders two levels by ordinal: -1, 0 or 1.
func (c *Catalog) Compare(a, b string) (int, error) {
	la, ok := c.Level(a)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, a)
	}
	lb, ok := c.Level(b)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, b)
	}
	switch {
	case la.Ordinal < lb.Ordinal:
		return -1, nil
	case la.Ordinal > lb.Ordinal:
		return 1, nil
	}
	return 0, nil
}

// Earlier lists the levels strictly below levelID.
func (c *Catalog) Earlier(levelID string) []Level {
	ref, ok := c.Level(levelID)
	if !ok {
		return nil
	}
	var out []Level
	for _, l := range c.levels {
		if l.Ordinal < ref.Ordinal {
			out = append(out, l)
		}
	}
	return out
}

// Ceiling is the per-question point ceiling for levelID, 0 when unknown.
func (c *Catalog) Ceiling(levelID string) float64 {
	l, ok := c.Level(levelID)
	if !ok {
		return 0
	}
	return l.PointsPerQuestion
}
