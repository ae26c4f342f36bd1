package journey

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mind-engage/valuejourney/internal/catalog"
	"github.com/mind-engage/valuejourney/internal/leaderboard"
	"github.com/mind-engage/valuejourney/internal/shuffle"
	"github.com/mind-engage/valuejourney/internal/wizard"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakePublisher struct {
	mu      sync.Mutex
	fail    error
	entries []leaderboard.Entry
}

func (f *fakePublisher) Publish(_ context.Context, e leaderboard.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakePublisher) published() []leaderboard.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]leaderboard.Entry(nil), f.entries...)
}

func newTestService(t *testing.T, store Store, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithAdvanceDelay(0)}, opts...)
	svc, err := NewService(wizard.NewMachine(catalog.Default()), store, opts...)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func apply(t *testing.T, svc *Service, id string, evs ...Event) View {
	t.Helper()
	var v View
	var err error
	for _, ev := range evs {
		v, err = svc.Apply(context.Background(), id, ev)
		require.NoError(t, err, "event %s", ev.Type)
	}
	return v
}

func toQuestions(t *testing.T, svc *Service, id string) View {
	t.Helper()
	return apply(t, svc, id,
		Event{Type: EventStart},
		Event{Type: EventSelectStakeholder, Stakeholder: "Founder"},
		Event{Type: EventLockStakeholder},
		Event{Type: EventSelectCurrentLevel, Level: "L1"},
		Event{Type: EventSelectAspirationalLevel, Level: "L2"},
	)
}

func answerN(t *testing.T, svc *Service, id string, n, value int) View {
	t.Helper()
	var v View
	for i := 0; i < n; i++ {
		v = apply(t, svc, id, Event{Type: EventAnswer, Value: value})
	}
	return v
}

func TestJourneyEndToEnd(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc := newTestService(t, NewInMemoryStore(), WithPublisher(pub))

	v, err := svc.Open(ctx, "j1", "Ada", false)
	require.NoError(t, err)
	assert.Equal(t, wizard.StepWelcome, v.Step)
	assert.Equal(t, "Ada", v.DisplayName)

	v = toQuestions(t, svc, "j1")
	assert.Equal(t, wizard.StepAssessment, v.Step)
	assert.Equal(t, 3, v.QuestionCount)

	v = answerN(t, svc, "j1", 3, 5)
	require.NotNil(t, v.Completed)
	assert.Equal(t, "L1", v.Completed.Level)
	assert.InDelta(t, 100.0, v.Completed.Percentage, 1e-9)
	assert.True(t, v.Aspirational)
	assert.Equal(t, 0, v.QuestionIndex)
	assert.Equal(t, 4, v.QuestionCount)
	assert.Equal(t, []string{"L1:current"}, v.Sets)

	v = answerN(t, svc, "j1", 4, 4)
	assert.Equal(t, wizard.StepResults, v.Step)
	assert.Equal(t, []string{"L1:current", "L2:aspirational"}, v.Sets)

	res, err := svc.Results(ctx, "j1")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, res.Summary.CumulativeCurrent, 1e-9)
	assert.InDelta(t, 80.0, res.Summary.CumulativeAspirational, 1e-9)
	assert.InDelta(t, -20.0, res.Summary.Gap, 1e-9)
	assert.InDelta(t, 45.0+64.0, res.Summary.TotalGleams, 1e-9)
	require.Len(t, res.Earlier, 1)
	assert.Equal(t, "L0", res.Earlier[0].ID)

	require.Eventually(t, func() bool { return len(pub.published()) == 2 }, time.Second, 5*time.Millisecond)
	got := pub.published()
	byLevel := map[string]leaderboard.Entry{}
	for _, e := range got {
		byLevel[e.Level] = e
	}
	assert.Equal(t, "Ada", byLevel["L1"].DisplayName)
	assert.Equal(t, "founder", byLevel["L1"].Stakeholder)
	assert.False(t, byLevel["L1"].Aspirational)
	assert.True(t, byLevel["L2"].Aspirational)
	assert.InDelta(t, 0.45, byLevel["L1"].Alicorns, 1e-9)
	assert.NotEqual(t, byLevel["L1"].ID, byLevel["L2"].ID)
}

func TestJourneyRestoresAcrossServices(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	first := newTestService(t, store)
	_, err := first.Open(ctx, "j1", "", false)
	require.NoError(t, err)
	toQuestions(t, first, "j1")
	answerN(t, first, "j1", 2, 3)
	apply(t, first, "j1", Event{Type: EventPause, Minutes: 10})
	first.Close()

	second := newTestService(t, store)
	v, err := second.Open(ctx, "j1", "", false)
	require.NoError(t, err)
	assert.Equal(t, wizard.StepPaused, v.Step)
	require.NotNil(t, v.Pause)
	assert.Equal(t, 2, v.Pause.QuestionIndex)
	assert.Equal(t, anonymousName, v.DisplayName)

	v = apply(t, second, "j1", Event{Type: EventResume})
	assert.Equal(t, wizard.StepAssessment, v.Step)
	assert.Equal(t, 2, v.QuestionIndex)

	v, err = second.Open(ctx, "j1", "", true)
	require.NoError(t, err)
	assert.Equal(t, wizard.StepWelcome, v.Step)
	assert.Empty(t, v.Sets)

	third := newTestService(t, store)
	v, err = third.View(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, wizard.StepWelcome, v.Step)
}

func TestJourneySubmissionFailureIsANotice(t *testing.T) {
	pub := &fakePublisher{fail: errors.New("progress service down")}
	svc := newTestService(t, NewInMemoryStore(), WithPublisher(pub))
	_, err := svc.Open(context.Background(), "j1", "", false)
	require.NoError(t, err)
	toQuestions(t, svc, "j1")
	v := answerN(t, svc, "j1", 3, 2)
	require.NotNil(t, v.Completed)
	assert.True(t, v.Aspirational, "wizard keeps going when submission fails")

	var notices []Notice
	require.Eventually(t, func() bool {
		v, err := svc.View(context.Background(), "j1")
		require.NoError(t, err)
		notices = append(notices, v.Notices...)
		return len(notices) > 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, NoticeSubmission, notices[0].Kind)
	assert.Equal(t, "L1", notices[0].Level)
	assert.True(t, notices[0].Retryable)

	// notices are reported once
	v, err = svc.View(context.Background(), "j1")
	require.NoError(t, err)
	assert.Empty(t, v.Notices)
}

type failingStore struct{ Store }

func (failingStore) Save(context.Context, Record) error { return errors.New("disk full") }

func TestJourneySaveFailureIsANotice(t *testing.T) {
	store := failingStore{Store: NewInMemoryStore()}
	svc := newTestService(t, store)

	v, err := svc.Open(context.Background(), "j1", "", false)
	require.NoError(t, err)
	require.Len(t, v.Notices, 1)
	assert.Equal(t, NoticeSave, v.Notices[0].Kind)

	v, err = svc.Apply(context.Background(), "j1", Event{Type: EventStart})
	require.NoError(t, err)
	assert.Equal(t, wizard.StepStakeholder, v.Step)
	require.Len(t, v.Notices, 1)
	assert.Equal(t, NoticeSave, v.Notices[0].Kind)
}

func TestJourneyErrors(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, NewInMemoryStore())

	_, err := svc.View(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Open(ctx, "", "", false)
	assert.ErrorIs(t, err, ErrMissingID)

	_, err = svc.Open(ctx, "j1", "", false)
	require.NoError(t, err)

	_, err = svc.Apply(ctx, "j1", Event{Type: "dance"})
	assert.ErrorIs(t, err, ErrUnknownEvent)
	_, err = svc.Apply(ctx, "j1", Event{Type: EventAnswer, Value: 3})
	assert.ErrorIs(t, err, wizard.ErrIllegalTransition)
	_, err = svc.CurrentQuestion(ctx, "j1")
	assert.ErrorIs(t, err, ErrNoQuestion)

	apply(t, svc, "j1", Event{Type: EventStart})
	_, err = svc.Apply(ctx, "j1", Event{Type: EventSelectStakeholder, Stakeholder: "astronaut"})
	assert.ErrorIs(t, err, wizard.ErrUnknownStakeholder)
}

func TestJourneyPauseDurationBounds(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, NewInMemoryStore())
	_, err := svc.Open(ctx, "j1", "", false)
	require.NoError(t, err)
	toQuestions(t, svc, "j1")

	for _, minutes := range []int{-1, MaxPauseMinutes + 1, 1 << 40} {
		_, err = svc.Apply(ctx, "j1", Event{Type: EventPause, Minutes: minutes})
		assert.ErrorIs(t, err, wizard.ErrInvalidDuration, "minutes %d", minutes)
	}
	v, err := svc.View(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, wizard.StepAssessment, v.Step)

	v = apply(t, svc, "j1", Event{Type: EventPause, Minutes: MaxPauseMinutes})
	require.NotNil(t, v.Pause)
	assert.Equal(t, 24*time.Hour, v.Pause.ExpiresAt.Sub(v.Pause.StartedAt))

	_, err = svc.Apply(ctx, "j1", Event{Type: EventExtendPause, Minutes: 1 << 40})
	assert.ErrorIs(t, err, wizard.ErrInvalidDuration)
	v = apply(t, svc, "j1", Event{Type: EventExtendPause})
	require.NotNil(t, v.Pause)
	assert.Equal(t, 24*time.Hour+DefaultPauseMinutes*time.Minute, v.Pause.ExpiresAt.Sub(v.Pause.StartedAt))
}

func TestJourneyForget(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	svc := newTestService(t, store)

	_, err := svc.Open(ctx, "j1", "Ada", false)
	require.NoError(t, err)
	toQuestions(t, svc, "j1")

	require.NoError(t, svc.Forget(ctx, "j1"))
	_, err = store.Load(ctx, "j1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.View(ctx, "j1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, svc.Forget(ctx, "j1"), ErrNotFound)
	assert.ErrorIs(t, svc.Forget(ctx, ""), ErrMissingID)
}

func TestJourneyCurrentQuestion(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, NewInMemoryStore())
	_, err := svc.Open(ctx, "j1", "", false)
	require.NoError(t, err)
	apply(t, svc, "j1",
		Event{Type: EventStart},
		Event{Type: EventSelectStakeholder, Stakeholder: "investor"},
		Event{Type: EventLockStakeholder},
		Event{Type: EventSelectCurrentLevel, Level: "L0"},
		Event{Type: EventSelectAspirationalLevel, Level: "L3"},
	)

	q, err := svc.CurrentQuestion(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "L0", q.Level)
	assert.Equal(t, "Q1", q.Code)
	assert.Equal(t, "How clearly can the founders describe the problem they want to solve?", q.Text)
	assert.Equal(t, shuffle.Options("L0", "Q1", catalog.Investor), q.Options)
	assert.ElementsMatch(t, shuffle.Scale, q.Options)
	assert.Zero(t, q.Selected)

	apply(t, svc, "j1", Event{Type: EventAnswer, Value: 4}, Event{Type: EventBack})
	q, err = svc.CurrentQuestion(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 4, q.Selected)
	assert.Equal(t, 0, q.Index)
	assert.Equal(t, 3, q.Count)
}

func TestJourneyEvictionReloadsFromStore(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, NewInMemoryStore(), WithCacheSize(1))

	_, err := svc.Open(ctx, "a", "", false)
	require.NoError(t, err)
	apply(t, svc, "a", Event{Type: EventStart})

	_, err = svc.Open(ctx, "b", "", false)
	require.NoError(t, err)
	assert.False(t, svc.live.Contains("a"))

	var wg sync.WaitGroup
	views := make([]View, 8)
	errs := make([]error, 8)
	for i := range views {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			views[i], errs[i] = svc.View(ctx, "a")
		}(i)
	}
	wg.Wait()
	for i := range views {
		require.NoError(t, errs[i])
		assert.Equal(t, wizard.StepStakeholder, views[i].Step)
	}
}

func TestJourneyDeferredAdvance(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, NewInMemoryStore(), WithAdvanceDelay(10*time.Millisecond))
	_, err := svc.Open(ctx, "j1", "", false)
	require.NoError(t, err)
	toQuestions(t, svc, "j1")

	v := apply(t, svc, "j1", Event{Type: EventAnswer, Value: 3})
	assert.True(t, v.Advancing)
	assert.Equal(t, 0, v.QuestionIndex)

	_, err = svc.Apply(ctx, "j1", Event{Type: EventAnswer, Value: 3})
	assert.ErrorIs(t, err, wizard.ErrAdvancing)

	require.Eventually(t, func() bool {
		v, err := svc.View(ctx, "j1")
		return err == nil && v.QuestionIndex == 1 && !v.Advancing
	}, time.Second, 5*time.Millisecond)
}
