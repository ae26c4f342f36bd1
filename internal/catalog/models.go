package catalog

import (
	"sort"
	"strings"
)

// Stakeholder is the perspective a player answers from. It changes question
// wording only, never scoring.
type Stakeholder string

const (
	Founder          Stakeholder = "founder"
	Investor         Stakeholder = "investor"
	Advisor          Stakeholder = "advisor"
	TeamMember       Stakeholder = "team_member"
	EcosystemPartner Stakeholder = "ecosystem_partner"
)

// DefaultStakeholder is the wording variant used when a question has no text
// for the selected role.
const DefaultStakeholder = Founder

var stakeholders = []Stakeholder{Founder, Investor, Advisor, TeamMember, EcosystemPartner}

var stakeholderNames = map[Stakeholder]string{
	Founder:          "Founder",
	Investor:         "Investor",
	Advisor:          "Advisor",
	TeamMember:       "Team Member",
	EcosystemPartner: "Ecosystem Partner",
}

// Stakeholders lists every known role in display order.
func Stakeholders() []Stakeholder {
	out := make([]Stakeholder, len(stakeholders))
	copy(out, stakeholders)
	return out
}

// ParseStakeholder accepts the wire value or the display name, case-insensitive.
func ParseStakeholder(s string) (Stakeholder, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	for _, st := range stakeholders {
		if string(st) == norm {
			return st, true
		}
	}
	return "", false
}

func (s Stakeholder) Valid() bool {
	_, ok := stakeholderNames[s]
	return ok
}

// DisplayName returns the human label, e.g. "Team Member".
func (s Stakeholder) DisplayName() string {
	if n, ok := stakeholderNames[s]; ok {
		return n
	}
	return stakeholderNames[DefaultStakeholder]
}

type Category string

const (
	CategoryDimension Category = "dimension"
	CategoryRisk      Category = "risk"
)

func (c Category) Valid() bool {
	return c == CategoryDimension || c == CategoryRisk
}

type Level struct {
	ID                string  `json:"id" yaml:"id"`
	Ordinal           int     `json:"ordinal" yaml:"ordinal"`
	DisplayName       string  `json:"display_name" yaml:"name"`
	Focus             string  `json:"focus" yaml:"focus"`
	PointsPerQuestion float64 `json:"points_per_question" yaml:"points_per_question"`
}

type Question struct {
	Code     string                 `json:"code" yaml:"code"`
	Category Category               `json:"category" yaml:"category"`
	LevelID  string                 `json:"level_id" yaml:"-"`
	Text     map[Stakeholder]string `json:"text,omitempty" yaml:"text"`
}

// TextFor returns the wording for s, falling back to the default stakeholder
// and then to the first variant in stakeholder order.
func (q Question) TextFor(s Stakeholder) string {
	if t := q.Text[s]; t != "" {
		return t
	}
	if t := q.Text[DefaultStakeholder]; t != "" {
		return t
	}
	for _, st := range stakeholders {
		if t := q.Text[st]; t != "" {
			return t
		}
	}
	keys := make([]string, 0, len(q.Text))
	for k := range q.Text {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		if t := q.Text[Stakeholder(k)]; t != "" {
			return t
		}
	}
	return ""
}
