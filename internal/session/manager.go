// Package session keeps track of the PPoGATT session handshake state.
//
// Sequence counters and the outstanding window do NOT live here: they are
// owned exclusively by the receive and transmit workers. This package only
// tracks the reset-handshake state machine and a per-session identity used
// to correlate log lines across resets.
package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Bystroushaak/RebbleOS/internal/model"
)

// State is the state of the reset handshake.
type State int

const (
	// S_IDLE means no session has been established yet.
	S_IDLE = State(iota)

	// S_RESET_SENT means we have sent a RESET_REQ and are waiting for
	// the peer's RESET_ACK.
	S_RESET_SENT

	// S_RESET_RECEIVED means the peer sent a RESET_REQ and we are about
	// to answer with a RESET_ACK.
	S_RESET_RECEIVED

	// S_ESTABLISHED means both sides agreed on a fresh session and data
	// may flow starting at sequence zero.
	S_ESTABLISHED
)

// String maps a [State] to a string.
func (s State) String() string {
	switch s {
	case S_IDLE:
		return "S_IDLE"
	case S_RESET_SENT:
		return "S_RESET_SENT"
	case S_RESET_RECEIVED:
		return "S_RESET_RECEIVED"
	case S_ESTABLISHED:
		return "S_ESTABLISHED"
	default:
		return "S_INVALID"
	}
}

// Manager tracks the handshake state. The zero value is invalid; construct
// using [NewManager]. This struct is concurrency safe: both workers consult
// it, so access is serialized by a mutex.
type Manager struct {
	logger    model.Logger
	mu        sync.Mutex
	sessionID uuid.UUID
	state     State
}

// NewManager returns a [Manager] ready to be used.
func NewManager(logger model.Logger) *Manager {
	return &Manager{
		logger:    logger,
		mu:        sync.Mutex{},
		sessionID: uuid.New(),
		state:     S_IDLE,
	}
}

// State returns the current handshake state.
func (m *Manager) State() State {
	defer m.mu.Unlock()
	m.mu.Lock()
	return m.state
}

// SetState transitions to the given handshake state.
func (m *Manager) SetState(next State) {
	defer m.mu.Unlock()
	m.mu.Lock()
	m.logger.Debugf("[%s] session: %s -> %s", m.sessionID, m.state, next)
	m.state = next
}

// SessionID returns the identity of the current session.
func (m *Manager) SessionID() uuid.UUID {
	defer m.mu.Unlock()
	m.mu.Lock()
	return m.sessionID
}

// NewSession replaces the session identity and moves to the given state.
// Called whenever a reset tears down and recreates the protocol state.
func (m *Manager) NewSession(next State) uuid.UUID {
	defer m.mu.Unlock()
	m.mu.Lock()
	m.sessionID = uuid.New()
	m.logger.Infof("[%s] session: new session (%s)", m.sessionID, next)
	m.state = next
	return m.sessionID
}

// Established is a convenience shortcut for State() == S_ESTABLISHED.
func (m *Manager) Established() bool {
	return m.State() == S_ESTABLISHED
}
