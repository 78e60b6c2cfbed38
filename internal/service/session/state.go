// Package session runs transcription sessions: one recognition source feeding
// one transcript assembler whose display is pushed to a sink.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a session.
type State int

const (
	// StateIdle - Session is created, recognition not started yet.
	StateIdle State = iota
	// StateStreaming - Recognition is running and updates are rendered.
	StateStreaming
	// StateStopped - Session ended. Terminal.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStreaming:
		return "STREAMING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal.
func (s State) IsTerminal() bool {
	return s == StateStopped
}

// StopReason records why a session stopped.
type StopReason string

const (
	ReasonRequested StopReason = "requested" // Stop() or shutdown
	ReasonEnded     StopReason = "ended"     // recognizer finished
	ReasonCanceled  StopReason = "canceled"  // recognizer canceled or context done
	ReasonError     StopReason = "error"     // recognizer failed to start
)

// Errors for invalid state transitions and manager lookups.
var (
	ErrAlreadyStarted  = errors.New("session already started")
	ErrSessionStopped  = errors.New("session is stopped")
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySessions = errors.New("too many active sessions")
)

// Lifecycle manages the state machine of a single session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	IDLE → STREAMING → STOPPED
//	  │                   ▲
//	  └───── Stop() ──────┘
type Lifecycle struct {
	mu        sync.RWMutex
	sessionID string
	state     State
	reason    StopReason
}

// NewLifecycle creates a new session lifecycle in IDLE state.
func NewLifecycle(sessionID string) *Lifecycle {
	return &Lifecycle{
		sessionID: sessionID,
		state:     StateIdle,
	}
}

// SessionID returns the session ID.
func (l *Lifecycle) SessionID() string {
	return l.sessionID
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Reason returns the stop reason, empty until stopped.
func (l *Lifecycle) Reason() StopReason {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reason
}

// IsStopped returns true once the session reached STOPPED.
func (l *Lifecycle) IsStopped() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.IsTerminal()
}

// Start transitions IDLE → STREAMING.
func (l *Lifecycle) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateIdle:
		l.state = StateStreaming
		return nil
	case StateStreaming:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrSessionStopped
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}

// Stop transitions to STOPPED with reason. Idempotent: the first reason wins.
// Returns true if this call stopped the session.
func (l *Lifecycle) Stop(reason StopReason) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return false
	}
	l.state = StateStopped
	l.reason = reason
	return true
}
