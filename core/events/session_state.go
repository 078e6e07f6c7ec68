package events

// KindSessionStateChanged identifies session state transitions.
const KindSessionStateChanged Kind = "session_state.changed"

// SessionStateChanged carries the new state of a session.
type SessionStateChanged struct {
	Base
	SessionID string
	State     string
}

// NewSessionStateChanged creates a session state changed event.
func NewSessionStateChanged(sessionID, state string) SessionStateChanged {
	return SessionStateChanged{Base: NewBase(KindSessionStateChanged), SessionID: sessionID, State: state}
}
