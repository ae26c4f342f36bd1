package wizard

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mind-engage/valuejourney/internal/catalog"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder collects completions reported through the change hook.
type recorder struct {
	mu   sync.Mutex
	done []Completion
	n    int
}

func (r *recorder) onChange(_ State, out Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n++
	if out.Completed != nil {
		r.done = append(r.done, *out.Completed)
	}
}

func (r *recorder) completions() []Completion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Completion(nil), r.done...)
}

func newTestController(t *testing.T, opts ...ControllerOption) *Controller {
	t.Helper()
	m := testMachine(t)
	c := NewController(m, New(), opts...)
	t.Cleanup(c.Close)
	require.NoError(t, c.Start())
	require.NoError(t, c.SelectStakeholder(catalog.Founder))
	require.NoError(t, c.LockStakeholder())
	require.NoError(t, c.SelectCurrentLevel("L1"))
	require.NoError(t, c.SelectAspirationalLevel("L2"))
	return c
}

func TestControllerSynchronousAdvance(t *testing.T) {
	rec := &recorder{}
	c := newTestController(t, WithAdvanceDelay(0), WithOnChange(rec.onChange))

	for i := 0; i < 2; i++ {
		out, err := c.Answer(5)
		require.NoError(t, err)
		assert.True(t, out.Advanced)
		assert.Nil(t, out.Completed)
	}
	out, err := c.Answer(5)
	require.NoError(t, err)
	require.NotNil(t, out.Completed)
	assert.Equal(t, SetKey{Level: "L1", Kind: KindCurrent}, out.Completed.Key)

	s := c.State()
	assert.True(t, s.Aspirational)
	assert.Equal(t, 0, s.QuestionIndex)
	assert.Len(t, rec.completions(), 1)
}

func TestControllerDeferredAdvance(t *testing.T) {
	rec := &recorder{}
	c := newTestController(t, WithAdvanceDelay(20*time.Millisecond), WithOnChange(rec.onChange))

	out, err := c.Answer(4)
	require.NoError(t, err)
	assert.False(t, out.Advanced)
	assert.True(t, c.Pending())
	assert.Equal(t, 0, c.State().QuestionIndex)
	assert.Equal(t, 4, c.State().Draft["A1"])

	_, err = c.Answer(2)
	assert.ErrorIs(t, err, ErrAdvancing)
	assert.ErrorIs(t, c.Start(), ErrAdvancing)

	assert.Eventually(t, func() bool { return !c.Pending() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, c.State().QuestionIndex)
	assert.Equal(t, 4, c.State().Draft["A1"])
}

func TestControllerDeferredAdvanceFinalizesOnce(t *testing.T) {
	rec := &recorder{}
	c := newTestController(t, WithAdvanceDelay(5*time.Millisecond), WithOnChange(rec.onChange))

	for i := 0; i < 3; i++ {
		_, err := c.Answer(3)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return !c.Pending() }, time.Second, time.Millisecond)
	}
	done := rec.completions()
	require.Len(t, done, 1)
	assert.Equal(t, SetKey{Level: "L1", Kind: KindCurrent}, done[0].Key)
	assert.InDelta(t, 60.0, done[0].Result.Percentage, 1e-9)
}

func TestControllerBackCancelsPendingAdvance(t *testing.T) {
	c := newTestController(t, WithAdvanceDelay(30*time.Millisecond))

	_, err := c.Answer(5)
	require.NoError(t, err)
	_, err = c.Answer(0)
	assert.ErrorIs(t, err, ErrAdvancing)

	require.True(t, c.Pending())
	require.NoError(t, c.Back())
	assert.False(t, c.Pending())
	assert.Equal(t, StepCurrentLevel, c.State().Step)

	time.Sleep(60 * time.Millisecond)
	s := c.State()
	assert.Equal(t, StepCurrentLevel, s.Step)
	assert.Equal(t, 0, s.QuestionIndex)
}

func TestControllerCloseCancelsTimers(t *testing.T) {
	rec := &recorder{}
	c := newTestController(t, WithAdvanceDelay(20*time.Millisecond), WithOnChange(rec.onChange))
	_, err := c.Answer(5)
	require.NoError(t, err)

	rec.mu.Lock()
	before := rec.n
	rec.mu.Unlock()

	c.Close()
	time.Sleep(50 * time.Millisecond)

	rec.mu.Lock()
	assert.Equal(t, before, rec.n)
	rec.mu.Unlock()
	assert.Equal(t, 0, c.State().QuestionIndex)

	_, err = c.Answer(3)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Back(), ErrClosed)
	assert.ErrorIs(t, c.Resume(), ErrClosed)
}

func TestControllerPauseFlushesPendingAdvance(t *testing.T) {
	c := newTestController(t, WithAdvanceDelay(time.Hour))
	_, err := c.Answer(5)
	require.NoError(t, err)

	_, err = c.Pause(time.Hour)
	require.NoError(t, err)
	assert.False(t, c.Pending())

	s := c.State()
	assert.Equal(t, StepPaused, s.Step)
	require.NotNil(t, s.Pause)
	assert.Equal(t, 1, s.Pause.QuestionIndex)

	require.NoError(t, c.Resume())
	assert.Equal(t, 1, c.State().QuestionIndex)
	assert.Equal(t, StepAssessment, c.State().Step)
}

func TestControllerAlarmAutoResumes(t *testing.T) {
	c := newTestController(t, WithAdvanceDelay(0))
	_, err := c.Answer(2)
	require.NoError(t, err)

	_, err = c.Pause(20 * time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, StepPaused, c.State().Step)

	assert.Eventually(t, func() bool { return c.State().Step == StepAssessment }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, c.State().QuestionIndex)
}

func TestControllerExtendRearmsAlarm(t *testing.T) {
	c := newTestController(t, WithAdvanceDelay(0))
	_, err := c.Pause(30 * time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, c.Extend(time.Hour))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, StepPaused, c.State().Step)

	require.NoError(t, c.Resume())
	assert.Equal(t, StepAssessment, c.State().Step)
}

func TestControllerRestoredPauseRearms(t *testing.T) {
	m := testMachine(t)
	s := toAssessment(t, m, "L1", "L2")
	now := time.Now()
	require.NoError(t, m.Pause(&s, 10*time.Millisecond, now.Add(-time.Minute)))

	c := NewController(m, s, WithAdvanceDelay(0))
	defer c.Close()
	assert.Eventually(t, func() bool { return c.State().Step == StepAssessment }, time.Second, 5*time.Millisecond)
}

func TestControllerResetCancelsEverything(t *testing.T) {
	c := newTestController(t, WithAdvanceDelay(time.Hour))
	_, err := c.Answer(5)
	require.NoError(t, err)
	c.Reset()
	assert.False(t, c.Pending())

	s := c.State()
	assert.Equal(t, StepWelcome, s.Step)
	assert.Empty(t, s.Draft)
	require.NoError(t, c.Start())
}

func TestControllerStateIsACopy(t *testing.T) {
	c := newTestController(t, WithAdvanceDelay(0))
	_, err := c.Answer(5)
	require.NoError(t, err)

	s := c.State()
	s.Draft["A1"] = 1
	assert.Equal(t, 5, c.State().Draft["A1"])
}
