package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/wppsync/internal/bus"
)

// State represents the daemon's view of its gateway connection.
type State string

const (
	Booting      State = "BOOTING"
	Connecting   State = "CONNECTING"
	Pairing      State = "PAIRING"
	Ready        State = "READY"
	Degraded     State = "DEGRADED"
	Reconnecting State = "RECONNECTING"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:      {Connecting, Error},
	Connecting:   {Ready, Pairing, Degraded, Reconnecting, Error},
	Pairing:      {Ready, Degraded, Reconnecting, Error},
	Ready:        {Pairing, Degraded, Reconnecting, Error},
	Degraded:     {Ready, Pairing, Reconnecting, Error},
	Reconnecting: {Connecting, Error},
	Error:        {Booting},
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
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

// Online reports whether the gateway channel is up, whatever the peer's
// own WhatsApp link is doing.
func (m *Machine) Online() bool {
	switch m.Current() {
	case Ready, Pairing, Degraded:
		return true
	}
	return false
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
			Kind:      bus.StatusChanged,
			Timestamp: m.since,
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// Follow moves to the target through Connecting when the direct edge is not
// allowed, which is how a reconnect is replayed. Staying put is not an error.
func (m *Machine) Follow(to State) error {
	cur := m.Current()
	if cur == to {
		return nil
	}
	if err := m.Transition(to); err == nil {
		return nil
	}
	if to != Connecting && slices.Contains(validTransitions[cur], Connecting) {
		if err := m.Transition(Connecting); err != nil {
			return err
		}
		return m.Transition(to)
	}
	return fmt.Errorf("cannot reach %s from %s", to, cur)
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
