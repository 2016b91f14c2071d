package akeraapi

import "sync"

// State is the protocol state of a connection
type State int

const (
	StateConnecting State = iota
	StateIdle
	StateQuery
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateIdle:
		return "idle"
	case StateQuery:
		return "query"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StateMachine tracks a connection's state and notifies subscribers of
// every transition. Backends embed it in their Conn implementations.
//
// Handlers run synchronously on the goroutine that caused the transition and
// outside the machine's lock, so a handler may itself trigger a transition
// (the pool disconnects evicted connections from inside its idle handler).
type StateMachine struct {
	mu       sync.Mutex
	state    State
	handlers []func(State)
}

// State returns the current state
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnStateChange subscribes fn to future transitions
func (m *StateMachine) OnStateChange(fn func(State)) {
	m.mu.Lock()
	m.handlers = append(m.handlers, fn)
	m.mu.Unlock()
}

// Closed reports whether the connection reached StateClosed
func (m *StateMachine) Closed() bool {
	return m.State() == StateClosed
}

// Transition moves to state to and notifies subscribers. Transitions out of
// StateClosed are ignored.
func (m *StateMachine) Transition(to State) {
	m.mu.Lock()
	if m.state == StateClosed && to != StateClosed {
		m.mu.Unlock()
		return
	}
	m.state = to
	handlers := make([]func(State), len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	for _, h := range handlers {
		h(to)
	}
}

// Begin enters StateQuery and returns the function that goes back to
// StateIdle. Typical use:
//
//	defer c.Begin()()
func (m *StateMachine) Begin() func() {
	m.Transition(StateQuery)
	return func() { m.Transition(StateIdle) }
}
