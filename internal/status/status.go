// Package status tracks the state of the push link: whether the cache is
// receiving server events.
package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
)

// State represents the push link state.
type State string

const (
	// Detached: no channel attached yet; the cache only changes through
	// fetches and local mutations.
	Detached State = "DETACHED"
	// Attached: subscribed to every push event kind.
	Attached State = "ATTACHED"
	// Resetting: the channel reconnected and events may have been missed.
	Resetting State = "RESETTING"
	// Closed: the session ended.
	Closed State = "CLOSED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Detached:  {Attached, Closed},
	Attached:  {Resetting, Closed},
	Resetting: {Attached, Closed},
	Closed:    {},
}

// Machine tracks and enforces push link state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Detached state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Detached,
		since:   time.Now(),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.PushLinkChanged,
			Timestamp: m.since,
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for link change events.
type StatusChange struct {
	From State
	To   State
}
