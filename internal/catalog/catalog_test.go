package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	c := Default()
	levels := c.Levels()
	require.Len(t, levels, 9)
	for i, l := range levels {
		assert.Equal(t, i, l.Ordinal)
		assert.Greater(t, l.PointsPerQuestion, 0.0)
	}
	assert.Equal(t, 3, c.QuestionCount("L1"))
	assert.Equal(t, 10.0, c.Ceiling("L0"))
	assert.Equal(t, 100.0, c.Ceiling("L8"))
	assert.Zero(t, c.Ceiling("L42"))
}

func TestCompareAndEarlier(t *testing.T) {
	c := Default()

	cmp, err := c.Compare("L1", "L3")
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	cmp, err = c.Compare("L3", "L3")
	require.NoError(t, err)
	assert.Equal(t, 0, cmp)

	_, err = c.Compare("L1", "nope")
	assert.ErrorIs(t, err, ErrUnknownLevel)

	earlier := c.Earlier("L3")
	require.Len(t, earlier, 3)
	assert.Equal(t, "L0", earlier[0].ID)
	assert.Equal(t, "L2", earlier[2].ID)
	assert.Empty(t, c.Earlier("L0"))
}

func TestTextForFallsBackToDefaultStakeholder(t *testing.T) {
	q := Question{Text: map[Stakeholder]string{
		Founder:  "founder text",
		Investor: "investor text",
	}}
	assert.Equal(t, "investor text", q.TextFor(Investor))
	assert.Equal(t, "founder text", q.TextFor(Advisor))

	q = Question{Text: map[Stakeholder]string{TeamMember: "team text"}}
	assert.Equal(t, "team text", q.TextFor(Investor))
}

func TestParseStakeholder(t *testing.T) {
	cases := map[string]Stakeholder{
		"founder":           Founder,
		"Founder":           Founder,
		"Team Member":       TeamMember,
		"team-member":       TeamMember,
		" ECOSYSTEM_PARTNER": EcosystemPartner,
	}
	for in, want := range cases {
		got, ok := ParseStakeholder(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseStakeholder("astronaut")
	assert.False(t, ok)
	assert.Equal(t, "Team Member", TeamMember.DisplayName())
}

func TestParseRejectsBrokenCatalogs(t *testing.T) {
	cases := map[string]string{
		"no levels": `levels: []`,
		"duplicate ordinal": `
levels:
  - {id: A, ordinal: 0, points_per_question: 1, questions: [{code: Q1, category: risk, text: {founder: x}}]}
  - {id: B, ordinal: 0, points_per_question: 1, questions: [{code: Q1, category: risk, text: {founder: x}}]}`,
		"duplicate code": `
levels:
  - {id: A, ordinal: 0, points_per_question: 1, questions: [{code: Q1, category: risk, text: {founder: x}}, {code: Q1, category: risk, text: {founder: y}}]}`,
		"bad category": `
levels:
  - {id: A, ordinal: 0, points_per_question: 1, questions: [{code: Q1, category: vibes, text: {founder: x}}]}`,
		"zero ceiling": `
levels:
  - {id: A, ordinal: 0, points_per_question: 0, questions: [{code: Q1, category: risk, text: {founder: x}}]}`,
		"unknown stakeholder": `
levels:
  - {id: A, ordinal: 0, points_per_question: 1, questions: [{code: Q1, category: risk, text: {pirate: x}}]}`,
		"empty level": `
levels:
  - {id: A, ordinal: 0, points_per_question: 1, questions: []}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadSortsByOrdinal(t *testing.T) {
	doc := `
levels:
  - {id: Phase2, ordinal: 2, points_per_question: 20, questions: [{code: B1, category: dimension, text: {investor: later}}]}
  - {id: Phase1, ordinal: 1, points_per_question: 10, questions: [{code: A1, category: dimension, text: {founder: first}}]}
`
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	levels := c.Levels()
	require.Len(t, levels, 2)
	assert.Equal(t, "Phase1", levels[0].ID)
	assert.True(t, c.HasQuestion("Phase2", "B1"))
	assert.False(t, c.HasQuestion("Phase1", "B1"))
	assert.Equal(t, "Phase2", c.Questions("Phase2")[0].LevelID)
	assert.Equal(t, "later", c.Questions("Phase2")[0].TextFor(Founder))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
