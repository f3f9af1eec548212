package sshmanager

import (
	"sync"
	"time"
)

// TailState is a step of a tail session's lifecycle.
type TailState string

const (
	StateIdle           TailState = "idle"
	StateConnecting     TailState = "connecting"
	StateAuthenticating TailState = "authenticating"
	StateExecuting      TailState = "executing"
	StateStreaming      TailState = "streaming"
	StateDraining       TailState = "draining"
	StateTerminated     TailState = "terminated"
)

func (s TailState) String() string {
	return string(s)
}

// IsValid returns true if the state is one of the defined constants.
func (s TailState) IsValid() bool {
	switch s {
	case StateIdle, StateConnecting, StateAuthenticating, StateExecuting,
		StateStreaming, StateDraining, StateTerminated:
		return true
	default:
		return false
	}
}

// StateTransition records a state change for debugging.
type StateTransition struct {
	SessionID string    `json:"session_id"`
	From      TailState `json:"from"`
	To        TailState `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// StateCallback is called when a session's state changes.
type StateCallback func(sessionID string, from, to TailState)

// maxTransitionsPerSession limits the stored transitions per session.
const maxTransitionsPerSession = 50

// StateTracker keeps the current state of each tail session, a short
// transition history, and change callbacks. Sessions are keyed by session ID
// because two sessions for one endpoint briefly coexist during eviction.
type StateTracker struct {
	mu          sync.RWMutex
	states      map[string]TailState
	transitions map[string][]StateTransition
	callbacks   []StateCallback
}

// NewStateTracker creates a new state tracker.
func NewStateTracker() *StateTracker {
	return &StateTracker{
		states:      make(map[string]TailState),
		transitions: make(map[string][]StateTransition),
	}
}

// GetState returns the session's state, or StateIdle if unknown.
func (t *StateTracker) GetState(sessionID string) TailState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.states[sessionID]
	if !ok {
		return StateIdle
	}
	return state
}

// SetState updates the session's state. If the state changed, it records the
// transition and fires callbacks outside the lock. Returns the previous state.
func (t *StateTracker) SetState(sessionID string, newState TailState) TailState {
	t.mu.Lock()
	oldState, ok := t.states[sessionID]
	if !ok {
		oldState = StateIdle
	}
	if oldState == newState {
		t.mu.Unlock()
		return oldState
	}
	t.states[sessionID] = newState

	transitions := append(t.transitions[sessionID], StateTransition{
		SessionID: sessionID,
		From:      oldState,
		To:        newState,
		Timestamp: time.Now(),
	})
	if len(transitions) > maxTransitionsPerSession {
		transitions = transitions[len(transitions)-maxTransitionsPerSession:]
	}
	t.transitions[sessionID] = transitions

	cbs := make([]StateCallback, len(t.callbacks))
	copy(cbs, t.callbacks)
	t.mu.Unlock()

	for _, cb := range cbs {
		cb(sessionID, oldState, newState)
	}
	return oldState
}

// Forget drops the state and history of a finished session.
func (t *StateTracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, sessionID)
	delete(t.transitions, sessionID)
}

// GetTransitions returns a copy of the session's transition history.
func (t *StateTracker) GetTransitions(sessionID string) []StateTransition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	transitions := t.transitions[sessionID]
	result := make([]StateTransition, len(transitions))
	copy(result, transitions)
	return result
}

// GetAllStates returns a copy of all current session states.
func (t *StateTracker) GetAllStates() map[string]TailState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make(map[string]TailState, len(t.states))
	for k, v := range t.states {
		result[k] = v
	}
	return result
}

// OnStateChange registers a callback that fires on every state change.
func (t *StateTracker) OnStateChange(cb StateCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, cb)
}
