package journey

import (
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/valuejourney/internal/catalog"
	"github.com/mind-engage/valuejourney/internal/wizard"
)

var ErrUnknownEvent = errors.New("unknown event")

type EventType string

const (
	EventStart                   EventType = "start"
	EventSelectStakeholder       EventType = "select_stakeholder"
	EventLockStakeholder         EventType = "lock_stakeholder"
	EventSelectCurrentLevel      EventType = "select_current_level"
	EventSelectAspirationalLevel EventType = "select_aspirational_level"
	EventAnswer                  EventType = "answer"
	EventBack                    EventType = "back"
	EventPause                   EventType = "pause"
	EventExtendPause             EventType = "extend_pause"
	EventResume                  EventType = "resume"
	EventStartEarlierLevel       EventType = "start_earlier_level"
	EventReset                   EventType = "reset"
)

// DefaultPauseMinutes is used by pause and extend_pause when no duration is
// given.
const DefaultPauseMinutes = 5

// MaxPauseMinutes bounds a single pause or extension.
const MaxPauseMinutes = 24 * 60

// Event is one player input, as posted by the client.
type Event struct {
	Type        EventType `json:"type"`
	Stakeholder string    `json:"stakeholder,omitempty"`
	Level       string    `json:"level,omitempty"`
	Value       int       `json:"value,omitempty"`
	Minutes     int       `json:"minutes,omitempty"`
}

func (e Event) pauseDuration() (time.Duration, error) {
	switch {
	case e.Minutes == 0:
		return DefaultPauseMinutes * time.Minute, nil
	case e.Minutes < 0 || e.Minutes > MaxPauseMinutes:
		return 0, fmt.Errorf("%w: %d minutes", wizard.ErrInvalidDuration, e.Minutes)
	}
	return time.Duration(e.Minutes) * time.Minute, nil
}

// dispatch applies e to c.
func (e Event) dispatch(c *wizard.Controller) (wizard.Outcome, error) {
	var out wizard.Outcome
	var err error
	switch e.Type {
	case EventStart:
		err = c.Start()
	case EventSelectStakeholder:
		st, ok := catalog.ParseStakeholder(e.Stakeholder)
		if !ok {
			return out, fmt.Errorf("%w: %q", wizard.ErrUnknownStakeholder, e.Stakeholder)
		}
		err = c.SelectStakeholder(st)
	case EventLockStakeholder:
		err = c.LockStakeholder()
	case EventSelectCurrentLevel:
		err = c.SelectCurrentLevel(e.Level)
	case EventSelectAspirationalLevel:
		err = c.SelectAspirationalLevel(e.Level)
	case EventAnswer:
		out, err = c.Answer(e.Value)
	case EventBack:
		err = c.Back()
	case EventPause:
		d, derr := e.pauseDuration()
		if derr != nil {
			return out, derr
		}
		out, err = c.Pause(d)
	case EventExtendPause:
		d, derr := e.pauseDuration()
		if derr != nil {
			return out, derr
		}
		err = c.Extend(d)
	case EventResume:
		err = c.Resume()
	case EventStartEarlierLevel:
		err = c.StartEarlierLevel(e.Level)
	case EventReset:
		c.Reset()
	default:
		return out, fmt.Errorf("%w: %q", ErrUnknownEvent, e.Type)
	}
	return out, err
}
