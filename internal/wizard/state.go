package wizard

import (
	"strings"
	"time"

	"github.com/mind-engage/valuejourney/internal/catalog"
	"github.com/mind-engage/valuejourney/internal/scoring"
)

// Step is the wizard screen the player is on.
type Step string

const (
	StepWelcome            Step = "welcome"
	StepStakeholder        Step = "stakeholder"
	StepStakeholderConfirm Step = "stakeholder_confirm"
	StepCurrentLevel       Step = "current_level"
	StepAspirationalLevel  Step = "aspirational_level"
	StepAssessment         Step = "assessment"
	StepPaused             Step = "paused"
	StepEarlierLevel       Step = "earlier_level"
	StepResults            Step = "results"
)

var steps = []Step{
	StepWelcome, StepStakeholder, StepStakeholderConfirm, StepCurrentLevel,
	StepAspirationalLevel, StepAssessment, StepPaused, StepEarlierLevel, StepResults,
}

// ParseStep maps unknown values to StepWelcome.
func ParseStep(s string) Step {
	for _, st := range steps {
		if string(st) == s {
			return st
		}
	}
	return StepWelcome
}

// Kind says which pass an answer set belongs to.
type Kind string

const (
	KindCurrent      Kind = "current"
	KindAspirational Kind = "aspirational"
)

// SetKey identifies one answer set: a level assessed as current reality or
// as aspiration.
type SetKey struct {
	Level string
	Kind  Kind
}

func (k SetKey) String() string { return k.Level + ":" + string(k.Kind) }

func ParseSetKey(s string) (SetKey, bool) {
	i := strings.LastIndex(s, ":")
	if i <= 0 {
		return SetKey{}, false
	}
	k := SetKey{Level: s[:i], Kind: Kind(s[i+1:])}
	if k.Kind != KindCurrent && k.Kind != KindAspirational {
		return SetKey{}, false
	}
	return k, true
}

// PauseState is captured when the player takes a break mid-assessment.
type PauseState struct {
	StartedAt     time.Time
	Duration      time.Duration
	Level         string
	QuestionIndex int
	Resume        Step
}

func (p PauseState) ExpiresAt() time.Time { return p.StartedAt.Add(p.Duration) }

// State is the complete in-memory wizard state. Only Machine transitions
// mutate it.
type State struct {
	Step              Step
	Stakeholder       catalog.Stakeholder
	CurrentLevel      string
	AspirationalLevel string
	// Aspirational is set while the aspirational pass is active.
	Aspirational bool
	// EarlierLevel is non-empty while re-assessing a level below the current one.
	EarlierLevel string

	Draft     scoring.AnswerSet
	Finalized map[SetKey]scoring.AnswerSet

	QuestionIndex int
	Streak        int
	LastAnswerAt  time.Time

	CurrentDone      bool
	AspirationalDone bool
	LevelStartedAt   time.Time

	Pause *PauseState
}

// New returns a clean wizard on the welcome screen.
func New() State {
	return State{
		Step:      StepWelcome,
		Draft:     scoring.AnswerSet{},
		Finalized: map[SetKey]scoring.AnswerSet{},
	}
}

// Answering reports whether the player is on a question screen.
func (s *State) Answering() bool {
	return s.Step == StepAssessment || s.Step == StepEarlierLevel
}

// ActiveKey is the answer set currently being filled.
func (s *State) ActiveKey() SetKey {
	switch {
	case s.EarlierLevel != "":
		return SetKey{Level: s.EarlierLevel, Kind: KindCurrent}
	case s.Aspirational:
		return SetKey{Level: s.AspirationalLevel, Kind: KindAspirational}
	default:
		return SetKey{Level: s.CurrentLevel, Kind: KindCurrent}
	}
}

func (s *State) ActiveLevel() string { return s.ActiveKey().Level }

// Clone deep-copies the answer maps and pause state.
func (s State) Clone() State {
	out := s
	out.Draft = s.Draft.Clone()
	out.Finalized = make(map[SetKey]scoring.AnswerSet, len(s.Finalized))
	for k, v := range s.Finalized {
		out.Finalized[k] = v.Clone()
	}
	if s.Pause != nil {
		p := *s.Pause
		out.Pause = &p
	}
	return out
}
