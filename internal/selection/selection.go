// Package selection implements the sidebar state machine: which event is
// selected and whether the sidebar is showing it.
//
// Closing the sidebar only hides it. The selected event is kept until the
// next Select, so Reopen shows the previous content again.
package selection

import (
	"errors"
	"fmt"
	"sync"

	"eventmap/internal/directions"
	"eventmap/internal/model"
)

// State is the visibility state of the sidebar.
type State string

const (
	StateClosed State = "closed"
	StateOpen   State = "open"
)

type trigger string

const (
	triggerSelect trigger = "select"
	triggerClose  trigger = "close"
	triggerReopen trigger = "reopen"
)

var (
	// ErrNothingSelected is returned when an operation needs a selected event.
	ErrNothingSelected = errors.New("no event selected")
	// ErrInvalidTransition is returned for a trigger the current state ignores.
	ErrInvalidTransition = errors.New("invalid transition")
)

// transitions lists the allowed moves. Select is accepted from every state.
var transitions = map[State]map[trigger]State{
	StateClosed: {
		triggerSelect: StateOpen,
		triggerReopen: StateOpen,
	},
	StateOpen: {
		triggerSelect: StateOpen,
		triggerClose:  StateClosed,
	},
}

// Snapshot is a point-in-time copy of the controller state.
type Snapshot struct {
	State       State        `json:"state"`
	Selected    *model.Event `json:"selected,omitempty"`
	SidebarOpen bool         `json:"sidebar_open"`
}

// Controller is safe for concurrent use.
type Controller struct {
	mu       sync.Mutex
	state    State
	selected *model.Event
}

// NewController returns a controller in the Closed state with no selection.
func NewController() *Controller {
	return &Controller{state: StateClosed}
}

// Select opens the sidebar on ev, replacing any previous selection.
func (c *Controller) Select(ev model.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Select is valid from every state.
	c.state, _ = c.next(triggerSelect)
	c.selected = &ev
}

// Close hides the sidebar. The selection is retained. Closing an already
// closed sidebar is a no-op.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if next, err := c.next(triggerClose); err == nil {
		c.state = next
	}
}

// Reopen shows the sidebar again with the retained selection.
func (c *Controller) Reopen() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selected == nil {
		return ErrNothingSelected
	}
	if c.state == StateOpen {
		return nil
	}
	next, err := c.next(triggerReopen)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// Navigate returns the directions URL for the selected event.
func (c *Controller) Navigate() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selected == nil {
		return "", ErrNothingSelected
	}
	return directions.URL(c.selected.Lat, c.selected.Lng), nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot copies the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:       c.state,
		SidebarOpen: c.state == StateOpen,
	}
	if c.selected != nil {
		ev := *c.selected
		snap.Selected = &ev
	}
	return snap
}

func (c *Controller) next(t trigger) (State, error) {
	to, ok := transitions[c.state][t]
	if !ok {
		return c.state, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, t, c.state)
	}
	return to, nil
}
