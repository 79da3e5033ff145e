package session

import "sync/atomic"

// State represents the session connection state.
type State uint32

// Session states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// stateManager handles atomic state transitions.
type stateManager struct {
	state uint32
}

func newStateManager() *stateManager {
	return &stateManager{state: uint32(StateDisconnected)}
}

func (sm *stateManager) get() State {
	return State(atomic.LoadUint32(&sm.state))
}

func (sm *stateManager) set(s State) {
	atomic.StoreUint32(&sm.state, uint32(s))
}

// transition attempts to move from expected to new state.
func (sm *stateManager) transition(from, to State) bool {
	return atomic.CompareAndSwapUint32(&sm.state, uint32(from), uint32(to))
}

// transitionFrom attempts to move to the new state from any of the listed states.
func (sm *stateManager) transitionFrom(to State, from ...State) bool {
	for _, f := range from {
		if sm.transition(f, to) {
			return true
		}
	}
	return false
}

func (sm *stateManager) isConnected() bool {
	return sm.get() == StateConnected
}

// isTornDown reports whether End has started.
func (sm *stateManager) isTornDown() bool {
	s := sm.get()
	return s == StateDisconnecting || s == StateDisconnected
}
