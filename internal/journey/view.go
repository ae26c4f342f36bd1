package journey

import (
	"sort"
	"time"

	"github.com/mind-engage/valuejourney/internal/catalog"
	"github.com/mind-engage/valuejourney/internal/scoring"
	"github.com/mind-engage/valuejourney/internal/wizard"
)

type NoticeKind string

const (
	NoticeSubmission NoticeKind = "submission"
	NoticeSave       NoticeKind = "save"
)

// Notice is a soft, retryable problem reported alongside a normal response.
type Notice struct {
	Kind      NoticeKind `json:"kind"`
	Level     string     `json:"level,omitempty"`
	Message   string     `json:"message"`
	Retryable bool       `json:"retryable"`
}

type PauseView struct {
	StartedAt     time.Time `json:"started_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	Level         string    `json:"level"`
	QuestionIndex int       `json:"question_index"`
}

// View is the client-facing wizard state.
type View struct {
	ID                    string               `json:"id"`
	DisplayName           string               `json:"display_name"`
	Step                  wizard.Step          `json:"step"`
	Stakeholder           catalog.Stakeholder  `json:"stakeholder,omitempty"`
	CurrentLevel          string               `json:"current_level,omitempty"`
	AspirationalLevel     string               `json:"aspirational_level,omitempty"`
	Aspirational          bool                 `json:"is_aspirational"`
	EarlierLevel          string               `json:"earlier_level,omitempty"`
	QuestionIndex         int                  `json:"current_question_index"`
	QuestionCount         int                  `json:"question_count"`
	Streak                int                  `json:"streak"`
	Advancing             bool                 `json:"advancing"`
	CurrentCompleted      bool                 `json:"current_completed"`
	AspirationalCompleted bool                 `json:"aspirational_completed"`
	Pause                 *PauseView           `json:"pause,omitempty"`
	Sets                  []string             `json:"sets"`
	Completed             *scoring.LevelResult `json:"completed,omitempty"`
	Notices               []Notice             `json:"notices,omitempty"`
}

// QuestionView is one question worded for the player's role with its options
// in their stable shuffled order.
type QuestionView struct {
	Level    string           `json:"level"`
	Code     string           `json:"code"`
	Category catalog.Category `json:"category"`
	Text     string           `json:"text"`
	Index    int              `json:"index"`
	Count    int              `json:"count"`
	Options  []int            `json:"options"`
	Selected int              `json:"selected,omitempty"`
}

type Results struct {
	Step    wizard.Step     `json:"step"`
	Summary scoring.Summary `json:"summary"`
	// Earlier lists the levels that can still be assessed below the current one.
	Earlier []catalog.Level `json:"earlier_levels"`
}

func buildView(id, name string, st wizard.State, cat *catalog.Catalog, advancing bool) View {
	v := View{
		ID:                    id,
		DisplayName:           name,
		Step:                  st.Step,
		Stakeholder:           st.Stakeholder,
		CurrentLevel:          st.CurrentLevel,
		AspirationalLevel:     st.AspirationalLevel,
		Aspirational:          st.Aspirational,
		EarlierLevel:          st.EarlierLevel,
		QuestionIndex:         st.QuestionIndex,
		Streak:                st.Streak,
		Advancing:             advancing,
		CurrentCompleted:      st.CurrentDone,
		AspirationalCompleted: st.AspirationalDone,
		Sets:                  make([]string, 0, len(st.Finalized)),
	}
	if st.Answering() || st.Step == wizard.StepPaused {
		v.QuestionCount = cat.QuestionCount(st.ActiveLevel())
	}
	if p := st.Pause; p != nil {
		v.Pause = &PauseView{
			StartedAt:     p.StartedAt,
			ExpiresAt:     p.ExpiresAt(),
			Level:         p.Level,
			QuestionIndex: p.QuestionIndex,
		}
	}
	for k := range st.Finalized {
		v.Sets = append(v.Sets, k.String())
	}
	sort.Strings(v.Sets)
	return v
}
