package wizard

import (
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/valuejourney/internal/catalog"
	"github.com/mind-engage/valuejourney/internal/scoring"
)

var (
	ErrIllegalTransition    = errors.New("illegal transition")
	ErrInvalidAnswer        = errors.New("answer must be between 1 and 5")
	ErrUnanswered           = errors.New("current question has no answer")
	ErrUnknownLevel         = errors.New("unknown level")
	ErrUnknownStakeholder   = errors.New("unknown stakeholder")
	ErrAspirationalNotAbove = errors.New("aspirational level must be above the current level")
	ErrNotEarlierLevel      = errors.New("level is not below the current level")
	ErrInvalidDuration      = errors.New("invalid pause duration")
)

// DefaultStreakWindow is how close two answers must be to extend a streak.
const DefaultStreakWindow = 10 * time.Second

// Completion describes an answer set that was just finalized.
type Completion struct {
	Key     SetKey
	Answers scoring.AnswerSet
	Result  scoring.Result
	// Earlier is set when the set came from the earlier-level branch.
	Earlier bool
}

// Outcome reports what a transition did beyond changing the state.
type Outcome struct {
	Advanced  bool
	Completed *Completion
}

// Machine holds the transition rules. It keeps no per-player data and is
// safe to share.
type Machine struct {
	cat          *catalog.Catalog
	agg          *scoring.Aggregator
	streakWindow time.Duration
}

type MachineOption func(*Machine)

func WithStreakWindow(d time.Duration) MachineOption {
	return func(m *Machine) {
		if d > 0 {
			m.streakWindow = d
		}
	}
}

func NewMachine(cat *catalog.Catalog, opts ...MachineOption) *Machine {
	m := &Machine{
		cat:          cat,
		agg:          scoring.NewAggregator(scoring.WithCeilings(cat.Ceiling)),
		streakWindow: DefaultStreakWindow,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Machine) Catalog() *catalog.Catalog       { return m.cat }
func (m *Machine) Aggregator() *scoring.Aggregator { return m.agg }

func illegal(s *State, op string) error {
	return fmt.Errorf("%w: %s from %s", ErrIllegalTransition, op, s.Step)
}

func (m *Machine) Start(s *State) error {
	if s.Step != StepWelcome {
		return illegal(s, "start")
	}
	s.Step = StepStakeholder
	return nil
}

// SelectStakeholder may be repeated on the confirm screen to change the choice.
func (m *Machine) SelectStakeholder(s *State, st catalog.Stakeholder) error {
	if s.Step != StepStakeholder && s.Step != StepStakeholderConfirm {
		return illegal(s, "select stakeholder")
	}
	if !st.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStakeholder, st)
	}
	s.Stakeholder = st
	s.Step = StepStakeholderConfirm
	return nil
}

func (m *Machine) LockStakeholder(s *State) error {
	if s.Step != StepStakeholderConfirm {
		return illegal(s, "lock stakeholder")
	}
	s.Step = StepCurrentLevel
	return nil
}

// SelectCurrentLevel starts a fresh journey for level: cursor and pass flags
// are reset and the level timer starts at now.
func (m *Machine) SelectCurrentLevel(s *State, level string, now time.Time) error {
	if s.Step != StepCurrentLevel {
		return illegal(s, "select current level")
	}
	if _, ok := m.cat.Level(level); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	s.CurrentLevel = level
	if s.AspirationalLevel != "" {
		if cmp, err := m.cat.Compare(s.AspirationalLevel, level); err != nil || cmp <= 0 {
			s.AspirationalLevel = ""
		}
	}
	s.Aspirational = false
	s.CurrentDone = false
	s.AspirationalDone = false
	s.Draft = scoring.AnswerSet{}
	s.QuestionIndex = 0
	s.LevelStartedAt = now
	s.Step = StepAspirationalLevel
	return nil
}

// SelectAspirationalLevel enters the assessment. When the current pass is
// already finalized it resumes straight into the aspirational pass.
func (m *Machine) SelectAspirationalLevel(s *State, level string) error {
	if s.Step != StepAspirationalLevel {
		return illegal(s, "select aspirational level")
	}
	if _, ok := m.cat.Level(level); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	cmp, err := m.cat.Compare(level, s.CurrentLevel)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownLevel, err)
	}
	if cmp <= 0 {
		return fmt.Errorf("%w: %s <= %s", ErrAspirationalNotAbove, level, s.CurrentLevel)
	}
	s.AspirationalLevel = level
	s.Aspirational = s.CurrentDone
	s.AspirationalDone = false
	s.Draft = scoring.AnswerSet{}
	s.QuestionIndex = 0
	s.Step = StepAssessment
	return nil
}

// CurrentQuestion returns the question under the cursor.
func (m *Machine) CurrentQuestion(s *State) (catalog.Question, bool) {
	qs := m.cat.Questions(s.ActiveLevel())
	if len(qs) == 0 {
		return catalog.Question{}, false
	}
	return qs[clamp(s.QuestionIndex, len(qs))], true
}

// Record stores value for the current question and updates the streak. It
// does not move the cursor.
func (m *Machine) Record(s *State, value int, now time.Time) error {
	if !s.Answering() {
		return illegal(s, "answer")
	}
	if !scoring.ValidAnswer(value) {
		return fmt.Errorf("%w: got %d", ErrInvalidAnswer, value)
	}
	q, ok := m.CurrentQuestion(s)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLevel, s.ActiveLevel())
	}
	if s.Draft == nil {
		s.Draft = scoring.AnswerSet{}
	}
	s.Draft[q.Code] = value

	if gap := now.Sub(s.LastAnswerAt); !s.LastAnswerAt.IsZero() && gap >= 0 && gap <= m.streakWindow {
		s.Streak++
	} else {
		s.Streak = 1
	}
	s.LastAnswerAt = now
	return nil
}

// Advance moves past the answered current question, finalizing the set on
// the last one.
func (m *Machine) Advance(s *State) (Outcome, error) {
	if !s.Answering() {
		return Outcome{}, illegal(s, "advance")
	}
	q, ok := m.CurrentQuestion(s)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownLevel, s.ActiveLevel())
	}
	if _, answered := s.Draft[q.Code]; !answered {
		return Outcome{}, ErrUnanswered
	}
	count := m.cat.QuestionCount(s.ActiveLevel())
	s.QuestionIndex = clamp(s.QuestionIndex, count)
	if s.QuestionIndex < count-1 {
		s.QuestionIndex++
		return Outcome{Advanced: true}, nil
	}
	return Outcome{Advanced: true, Completed: m.finalize(s)}, nil
}

func (m *Machine) finalize(s *State) *Completion {
	key := s.ActiveKey()
	answers := scoring.AnswerSet{}
	for code, v := range s.Draft {
		if m.cat.HasQuestion(key.Level, code) && scoring.ValidAnswer(v) {
			answers[code] = v
		}
	}
	if s.Finalized == nil {
		s.Finalized = map[SetKey]scoring.AnswerSet{}
	}
	s.Finalized[key] = answers
	done := &Completion{
		Key:     key,
		Answers: answers.Clone(),
		Result:  m.agg.Score(key.Level, answers),
		Earlier: s.EarlierLevel != "",
	}

	s.Draft = scoring.AnswerSet{}
	s.QuestionIndex = 0
	switch {
	case s.EarlierLevel != "":
		s.EarlierLevel = ""
		s.Step = StepResults
	case !s.Aspirational:
		s.CurrentDone = true
		s.Aspirational = true
	default:
		s.AspirationalDone = true
		s.Step = StepResults
	}
	return done
}

// Answer records value and advances in one step.
func (m *Machine) Answer(s *State, value int, now time.Time) (Outcome, error) {
	if err := m.Record(s, value, now); err != nil {
		return Outcome{}, err
	}
	return m.Advance(s)
}

// Back moves to the previous screen or question.
func (m *Machine) Back(s *State) error {
	switch s.Step {
	case StepStakeholder:
		s.Step = StepWelcome
	case StepStakeholderConfirm:
		s.Step = StepStakeholder
	case StepCurrentLevel:
		s.Step = StepStakeholderConfirm
	case StepAspirationalLevel:
		s.Step = StepCurrentLevel
	case StepAssessment:
		if s.QuestionIndex > 0 {
			s.QuestionIndex--
			return nil
		}
		s.Draft = scoring.AnswerSet{}
		if s.Aspirational {
			s.Step = StepAspirationalLevel
		} else {
			s.Step = StepCurrentLevel
		}
	case StepEarlierLevel:
		if s.QuestionIndex > 0 {
			s.QuestionIndex--
			return nil
		}
		s.Draft = scoring.AnswerSet{}
		s.EarlierLevel = ""
		s.Step = StepResults
	case StepResults:
		s.Step = StepAspirationalLevel
	default:
		return illegal(s, "back")
	}
	return nil
}

// Pause suspends the question flow for d, keeping the draft.
func (m *Machine) Pause(s *State, d time.Duration, now time.Time) error {
	if !s.Answering() {
		return illegal(s, "pause")
	}
	if d <= 0 {
		return ErrInvalidDuration
	}
	s.Pause = &PauseState{
		StartedAt:     now,
		Duration:      d,
		Level:         s.ActiveLevel(),
		QuestionIndex: s.QuestionIndex,
		Resume:        s.Step,
	}
	s.Step = StepPaused
	return nil
}

// Extend lengthens the current pause; nothing else changes.
func (m *Machine) Extend(s *State, d time.Duration) error {
	if s.Step != StepPaused || s.Pause == nil {
		return illegal(s, "extend pause")
	}
	if d <= 0 {
		return ErrInvalidDuration
	}
	s.Pause.Duration += d
	return nil
}

// Resume returns to the question that was showing when the pause began.
func (m *Machine) Resume(s *State) error {
	if s.Step != StepPaused || s.Pause == nil {
		return illegal(s, "resume")
	}
	resume := s.Pause.Resume
	if resume != StepEarlierLevel {
		resume = StepAssessment
	}
	s.Step = resume
	s.QuestionIndex = clamp(s.Pause.QuestionIndex, m.cat.QuestionCount(s.ActiveLevel()))
	s.Pause = nil
	return nil
}

// StartEarlierLevel re-assesses a level below the current one, as current
// reality only.
func (m *Machine) StartEarlierLevel(s *State, level string) error {
	if s.Step != StepResults {
		return illegal(s, "start earlier level")
	}
	cmp, err := m.cat.Compare(level, s.CurrentLevel)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	if cmp >= 0 {
		return fmt.Errorf("%w: %s >= %s", ErrNotEarlierLevel, level, s.CurrentLevel)
	}
	s.EarlierLevel = level
	s.Draft = scoring.AnswerSet{}
	s.QuestionIndex = 0
	s.Step = StepEarlierLevel
	return nil
}

// Reset abandons the in-progress set and returns to the welcome screen.
// Finalized sets and the chosen role and levels survive.
func (m *Machine) Reset(s *State) {
	s.Draft = scoring.AnswerSet{}
	s.Pause = nil
	s.EarlierLevel = ""
	s.Aspirational = false
	s.CurrentDone = false
	s.AspirationalDone = false
	s.QuestionIndex = 0
	s.Streak = 0
	s.LastAnswerAt = time.Time{}
	s.Step = StepWelcome
}

// Summary scores every finalized set.
func (m *Machine) Summary(s *State) scoring.Summary {
	sets := make([]scoring.Set, 0, len(s.Finalized))
	for k, answers := range s.Finalized {
		lvl, _ := m.cat.Level(k.Level)
		sets = append(sets, scoring.Set{
			Level:        k.Level,
			Ordinal:      lvl.Ordinal,
			Aspirational: k.Kind == KindAspirational,
			Answers:      answers,
		})
	}
	return m.agg.Summarize(sets)
}

func clamp(i, count int) int {
	if count <= 0 || i < 0 {
		return 0
	}
	if i > count-1 {
		return count - 1
	}
	return i
}
