package domain

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type SessionID string

type SessionState int32

const (
	Unauthenticated SessionState = iota
	Authenticated
	Closed
)

func (s SessionState) String() string {
	switch s {
	case Unauthenticated:
		return "UNAUTHENTICATED"
	case Authenticated:
		return "AUTHENTICATED"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Session is owned by the transport. The gatekeeper only moves its state.
type Session struct {
	ID        SessionID
	CreatedAt time.Time
	state     atomic.Int32
}

func NewSession(now time.Time) *Session {
	return &Session{ID: SessionID(uuid.NewString()), CreatedAt: now}
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Transition moves the session from one state to another.
// It reports false when the session was not in the expected state.
func (s *Session) Transition(from, to SessionState) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// MarkClosed is terminal and always succeeds.
func (s *Session) MarkClosed() {
	s.state.Store(int32(Closed))
}
