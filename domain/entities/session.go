package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ConnectionState represents the lifecycle state of a live session
type ConnectionState string

const (
	ConnectionStateIdle       ConnectionState = "idle"
	ConnectionStateConnecting ConnectionState = "connecting"
	ConnectionStateOpen       ConnectionState = "open"
	ConnectionStateClosed     ConnectionState = "closed"
	ConnectionStateErrored    ConnectionState = "errored"
)

// Session describes one live connection instance
type Session struct {
	ID           string          `json:"id"`
	State        ConnectionState `json:"state"`
	SystemPrompt string          `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	LastActiveAt time.Time       `json:"last_active_at"`
	EndedAt      *time.Time      `json:"ended_at,omitempty"`
	EndReason    string          `json:"end_reason,omitempty"`
}

// NewSession creates a session in the connecting state
func NewSession(systemPrompt string) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.NewString(),
		State:        ConnectionStateConnecting,
		SystemPrompt: systemPrompt,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// Touch records activity on the session
func (s *Session) Touch() {
	s.LastActiveAt = time.Now()
}

// IdleFor reports how long the session has gone without activity
func (s *Session) IdleFor() time.Duration {
	return time.Since(s.LastActiveAt)
}

// IsActive reports whether the session still owns its resources
func (s *Session) IsActive() bool {
	return s.State == ConnectionStateConnecting || s.State == ConnectionStateOpen
}

// End moves the session to a terminal state. Only the first call has effect.
func (s *Session) End(state ConnectionState, reason string) bool {
	if !s.IsActive() {
		return false
	}
	now := time.Now()
	s.State = state
	s.EndedAt = &now
	s.EndReason = reason
	return true
}

// Validate validates the session data
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("session id is required")
	}

	switch s.State {
	case ConnectionStateIdle, ConnectionStateConnecting, ConnectionStateOpen,
		ConnectionStateClosed, ConnectionStateErrored:
	default:
		return errors.New("invalid session state")
	}

	return nil
}
