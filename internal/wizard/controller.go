package wizard

import (
	"errors"
	"sync"
	"time"

	"github.com/mind-engage/valuejourney/internal/catalog"
)

var (
	// ErrAdvancing rejects input while an auto-advance is still pending.
	ErrAdvancing = errors.New("previous answer is still advancing")
	ErrClosed    = errors.New("wizard closed")
)

// DefaultAdvanceDelay lets the player see their selection before the next
// question appears.
const DefaultAdvanceDelay = 600 * time.Millisecond

// ChangeFunc observes every applied transition. It runs while the controller
// lock is held, so it must not call back into the controller.
type ChangeFunc func(s State, out Outcome)

// Controller owns one player's State. It serializes transitions and owns the
// deferred auto-advance and the pause alarm, both of which are cancelled when
// the player navigates away or the controller is closed.
type Controller struct {
	mu    sync.Mutex
	m     *Machine
	state State

	now          func() time.Time
	advanceDelay time.Duration
	onChange     ChangeFunc

	advanceGen uint64
	alarmGen   uint64
	advance    *time.Timer
	alarm      *time.Timer
	closed     bool
}

type ControllerOption func(*Controller)

func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

// WithAdvanceDelay sets the auto-advance delay; 0 advances synchronously.
func WithAdvanceDelay(d time.Duration) ControllerOption {
	return func(c *Controller) { c.advanceDelay = d }
}

func WithOnChange(f ChangeFunc) ControllerOption {
	return func(c *Controller) { c.onChange = f }
}

// NewController takes ownership of s. A restored paused state re-arms its
// alarm for the remaining time.
func NewController(m *Machine, s State, opts ...ControllerOption) *Controller {
	c := &Controller{
		m:            m,
		state:        s.Clone(),
		now:          time.Now,
		advanceDelay: DefaultAdvanceDelay,
	}
	for _, o := range opts {
		o(c)
	}
	if c.state.Step == StepPaused && c.state.Pause != nil {
		c.mu.Lock()
		c.armAlarmLocked()
		c.mu.Unlock()
	}
	return c
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Pending reports whether an auto-advance is scheduled.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advance != nil
}

// CurrentQuestion returns the question under the cursor.
func (c *Controller) CurrentQuestion() (catalog.Question, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m.CurrentQuestion(&c.state)
}

func (c *Controller) apply(f func(s *State) (Outcome, error)) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Outcome{}, ErrClosed
	}
	if c.advance != nil {
		return Outcome{}, ErrAdvancing
	}
	out, err := f(&c.state)
	if err != nil {
		return Outcome{}, err
	}
	c.notifyLocked(out)
	return out, nil
}

func (c *Controller) notifyLocked(out Outcome) {
	if c.onChange != nil {
		c.onChange(c.state.Clone(), out)
	}
}

func noOutcome(err error) (Outcome, error) { return Outcome{}, err }

func (c *Controller) Start() error {
	_, err := c.apply(func(s *State) (Outcome, error) { return noOutcome(c.m.Start(s)) })
	return err
}

func (c *Controller) SelectStakeholder(st catalog.Stakeholder) error {
	_, err := c.apply(func(s *State) (Outcome, error) { return noOutcome(c.m.SelectStakeholder(s, st)) })
	return err
}

func (c *Controller) LockStakeholder() error {
	_, err := c.apply(func(s *State) (Outcome, error) { return noOutcome(c.m.LockStakeholder(s)) })
	return err
}

func (c *Controller) SelectCurrentLevel(level string) error {
	_, err := c.apply(func(s *State) (Outcome, error) {
		return noOutcome(c.m.SelectCurrentLevel(s, level, c.now()))
	})
	return err
}

func (c *Controller) SelectAspirationalLevel(level string) error {
	_, err := c.apply(func(s *State) (Outcome, error) { return noOutcome(c.m.SelectAspirationalLevel(s, level)) })
	return err
}

func (c *Controller) StartEarlierLevel(level string) error {
	_, err := c.apply(func(s *State) (Outcome, error) { return noOutcome(c.m.StartEarlierLevel(s, level)) })
	return err
}

// Answer records value immediately. The cursor moves after the advance
// delay; with a zero delay it moves before Answer returns and the outcome
// reports any completed set.
func (c *Controller) Answer(value int) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Outcome{}, ErrClosed
	}
	if c.advance != nil {
		return Outcome{}, ErrAdvancing
	}
	if err := c.m.Record(&c.state, value, c.now()); err != nil {
		return Outcome{}, err
	}
	if c.advanceDelay <= 0 {
		out, err := c.m.Advance(&c.state)
		if err != nil {
			return Outcome{}, err
		}
		c.notifyLocked(out)
		return out, nil
	}
	c.notifyLocked(Outcome{})
	c.advanceGen++
	gen := c.advanceGen
	c.advance = time.AfterFunc(c.advanceDelay, func() { c.fireAdvance(gen) })
	return Outcome{}, nil
}

func (c *Controller) fireAdvance(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.advance == nil || gen != c.advanceGen {
		return
	}
	c.advance = nil
	c.advanceLocked()
}

func (c *Controller) advanceLocked() {
	out, err := c.m.Advance(&c.state)
	if err != nil {
		return
	}
	c.notifyLocked(out)
}

// cancelAdvanceLocked drops a pending auto-advance so it cannot fire
// against a state the player has left.
func (c *Controller) cancelAdvanceLocked() bool {
	if c.advance == nil {
		return false
	}
	c.advance.Stop()
	c.advance = nil
	c.advanceGen++
	return true
}

// Back cancels any pending auto-advance before navigating.
func (c *Controller) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.cancelAdvanceLocked()
	if err := c.m.Back(&c.state); err != nil {
		return err
	}
	c.notifyLocked(Outcome{})
	return nil
}

// Pause completes a pending advance first so the cursor is stable, then
// suspends the flow and arms the resume alarm.
func (c *Controller) Pause(d time.Duration) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Outcome{}, ErrClosed
	}
	var out Outcome
	if c.cancelAdvanceLocked() {
		o, err := c.m.Advance(&c.state)
		if err == nil {
			out = o
			c.notifyLocked(o)
		}
	}
	if err := c.m.Pause(&c.state, d, c.now()); err != nil {
		return out, err
	}
	c.armAlarmLocked()
	c.notifyLocked(Outcome{})
	return out, nil
}

// Extend lengthens the pause and re-arms the alarm for the new expiry.
func (c *Controller) Extend(d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.m.Extend(&c.state, d); err != nil {
		return err
	}
	c.armAlarmLocked()
	c.notifyLocked(Outcome{})
	return nil
}

func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.resumeLocked()
}

func (c *Controller) resumeLocked() error {
	c.stopAlarmLocked()
	if err := c.m.Resume(&c.state); err != nil {
		return err
	}
	c.notifyLocked(Outcome{})
	return nil
}

func (c *Controller) armAlarmLocked() {
	c.stopAlarmLocked()
	if c.state.Pause == nil {
		return
	}
	wait := c.state.Pause.ExpiresAt().Sub(c.now())
	if wait < 0 {
		wait = 0
	}
	c.alarmGen++
	gen := c.alarmGen
	c.alarm = time.AfterFunc(wait, func() { c.fireAlarm(gen) })
}

func (c *Controller) stopAlarmLocked() {
	if c.alarm != nil {
		c.alarm.Stop()
		c.alarm = nil
	}
}

func (c *Controller) fireAlarm(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.alarm == nil || gen != c.alarmGen {
		return
	}
	c.alarm = nil
	_ = c.resumeLocked()
}

// Reset abandons the in-progress set and returns to the welcome screen.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.cancelAdvanceLocked()
	c.stopAlarmLocked()
	c.m.Reset(&c.state)
	c.notifyLocked(Outcome{})
}

// Close cancels every scheduled task. Further calls return ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cancelAdvanceLocked()
	c.stopAlarmLocked()
}
