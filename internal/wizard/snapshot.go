package wizard

import (
	"encoding/json"
	"time"

	"github.com/mind-engage/valuejourney/internal/catalog"
	"github.com/mind-engage/valuejourney/internal/scoring"
)

const snapshotVersion = 1

// snapshot is the persisted JSON form of State. Times are unix milliseconds.
type snapshot struct {
	Version               int                       `json:"version"`
	Step                  string                    `json:"step"`
	Stakeholder           string                    `json:"stakeholder,omitempty"`
	CurrentLevel          string                    `json:"current_level,omitempty"`
	AspirationalLevel     string                    `json:"aspirational_level,omitempty"`
	IsAspirational        bool                      `json:"is_aspirational"`
	EarlierLevel          string                    `json:"earlier_level,omitempty"`
	Draft                 map[string]int            `json:"draft,omitempty"`
	Answers               map[string]map[string]int `json:"answers"`
	CurrentQuestionIndex  int                       `json:"current_question_index"`
	Streak                int                       `json:"streak"`
	LastAnswerTime        int64                     `json:"last_answer_time,omitempty"`
	CurrentCompleted      bool                      `json:"current_completed"`
	AspirationalCompleted bool                      `json:"aspirational_completed"`
	LevelStartedAt        int64                     `json:"level_started_at,omitempty"`
	Pause                 *pauseSnapshot            `json:"pause,omitempty"`
	Totals                *totals                   `json:"totals,omitempty"`
}

type pauseSnapshot struct {
	StartedAt     int64  `json:"started_at"`
	DurationMs    int64  `json:"duration_ms"`
	Level         string `json:"level"`
	QuestionIndex int    `json:"question_index"`
	Resume        string `json:"resume,omitempty"`
}

// totals are derived values stored for readers of the raw record; Restore
// ignores them.
type totals struct {
	Gleams            float64 `json:"gleams"`
	Alicorns          float64 `json:"alicorns"`
	CumulativeCurrent float64 `json:"cumulative_current"`
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Marshal encodes s together with its derived totals.
func (m *Machine) Marshal(s State) ([]byte, error) {
	snap := snapshot{
		Version:               snapshotVersion,
		Step:                  string(s.Step),
		Stakeholder:           string(s.Stakeholder),
		CurrentLevel:          s.CurrentLevel,
		AspirationalLevel:     s.AspirationalLevel,
		IsAspirational:        s.Aspirational,
		EarlierLevel:          s.EarlierLevel,
		Draft:                 s.Draft,
		Answers:               make(map[string]map[string]int, len(s.Finalized)),
		CurrentQuestionIndex:  s.QuestionIndex,
		Streak:                s.Streak,
		LastAnswerTime:        toMillis(s.LastAnswerAt),
		CurrentCompleted:      s.CurrentDone,
		AspirationalCompleted: s.AspirationalDone,
		LevelStartedAt:        toMillis(s.LevelStartedAt),
	}
	for k, v := range s.Finalized {
		snap.Answers[k.String()] = v
	}
	if p := s.Pause; p != nil {
		snap.Pause = &pauseSnapshot{
			StartedAt:     toMillis(p.StartedAt),
			DurationMs:    p.Duration.Milliseconds(),
			Level:         p.Level,
			QuestionIndex: p.QuestionIndex,
			Resume:        string(p.Resume),
		}
	}
	sum := m.Summary(&s)
	snap.Totals = &totals{
		Gleams:            sum.TotalGleams,
		Alicorns:          sum.TotalAlicorns,
		CumulativeCurrent: sum.CumulativeCurrent,
	}
	return json.Marshal(snap)
}

// Restore decodes a snapshot. It never fails: unreadable data yields a fresh
// wizard, and values the catalog no longer supports are dropped or clamped.
func (m *Machine) Restore(data []byte) State {
	var snap snapshot
	if len(data) == 0 || json.Unmarshal(data, &snap) != nil {
		return New()
	}

	s := New()
	s.Step = ParseStep(snap.Step)
	if st, ok := catalog.ParseStakeholder(snap.Stakeholder); ok {
		s.Stakeholder = st
	}
	s.CurrentLevel = m.knownLevel(snap.CurrentLevel)
	s.AspirationalLevel = m.knownLevel(snap.AspirationalLevel)
	s.EarlierLevel = m.knownLevel(snap.EarlierLevel)
	s.Aspirational = snap.IsAspirational
	s.QuestionIndex = snap.CurrentQuestionIndex
	s.Streak = max(snap.Streak, 0)
	s.LastAnswerAt = fromMillis(snap.LastAnswerTime)
	s.CurrentDone = snap.CurrentCompleted
	s.AspirationalDone = snap.AspirationalCompleted
	s.LevelStartedAt = fromMillis(snap.LevelStartedAt)

	for raw, answers := range snap.Answers {
		key, ok := ParseSetKey(raw)
		if !ok || m.knownLevel(key.Level) == "" {
			continue
		}
		s.Finalized[key] = m.cleanAnswers(key.Level, answers)
	}
	if p := snap.Pause; p != nil {
		s.Pause = &PauseState{
			StartedAt:     fromMillis(p.StartedAt),
			Duration:      time.Duration(p.DurationMs) * time.Millisecond,
			Level:         p.Level,
			QuestionIndex: p.QuestionIndex,
			Resume:        ParseStep(p.Resume),
		}
	}

	m.normalize(&s)
	if s.Answering() || s.Step == StepPaused {
		s.Draft = m.cleanAnswers(s.ActiveLevel(), snap.Draft)
	}
	s.QuestionIndex = clamp(s.QuestionIndex, m.cat.QuestionCount(s.ActiveLevel()))
	if s.Pause != nil {
		s.Pause.QuestionIndex = clamp(s.Pause.QuestionIndex, m.cat.QuestionCount(s.ActiveLevel()))
	}
	return s
}

func (m *Machine) knownLevel(id string) string {
	if _, ok := m.cat.Level(id); ok {
		return id
	}
	return ""
}

func (m *Machine) cleanAnswers(level string, in map[string]int) scoring.AnswerSet {
	out := scoring.AnswerSet{}
	for code, v := range in {
		if scoring.ValidAnswer(v) && m.cat.HasQuestion(level, code) {
			out[code] = v
		}
	}
	return out
}

// normalize walks the step back until every field it depends on is present.
func (m *Machine) normalize(s *State) {
	if s.Step != StepWelcome && s.Step != StepStakeholder && s.Stakeholder == "" {
		s.Step = StepStakeholder
	}
	needsCurrent := map[Step]bool{
		StepAspirationalLevel: true, StepAssessment: true, StepPaused: true,
		StepEarlierLevel: true, StepResults: true,
	}
	if needsCurrent[s.Step] && s.CurrentLevel == "" {
		s.Step = StepCurrentLevel
	}
	if s.AspirationalLevel != "" && s.CurrentLevel != "" {
		if cmp, _ := m.cat.Compare(s.AspirationalLevel, s.CurrentLevel); cmp <= 0 {
			s.AspirationalLevel = ""
		}
	}
	if s.EarlierLevel != "" {
		if cmp, err := m.cat.Compare(s.EarlierLevel, s.CurrentLevel); err != nil || cmp >= 0 {
			s.EarlierLevel = ""
		}
	}

	if s.Step == StepPaused {
		switch {
		case s.Pause == nil:
			s.Step = StepAssessment
		case s.Pause.Resume == StepEarlierLevel && s.EarlierLevel == "":
			s.Pause = nil
			s.Step = StepResults
		case s.Pause.Resume != StepEarlierLevel:
			s.Pause.Resume = StepAssessment
		}
	} else {
		s.Pause = nil
	}

	if (s.Step == StepAssessment || s.Step == StepResults || s.Step == StepPaused) && s.AspirationalLevel == "" {
		s.Step = StepAspirationalLevel
		s.Pause = nil
	}
	if s.Step == StepEarlierLevel && s.EarlierLevel == "" {
		s.Step = StepResults
	}
	if s.Step != StepEarlierLevel && !(s.Step == StepPaused && s.Pause != nil && s.Pause.Resume == StepEarlierLevel) {
		s.EarlierLevel = ""
	}
	if s.Pause != nil {
		s.Pause.Level = s.ActiveLevel()
	}
}
