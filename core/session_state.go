package orchestration

// SessionState is the lifecycle state of a Session.
//
// Voice turns go Starting, Streaming, AwaitingResult. Text turns skip
// Streaming. Completed, Cancelled and Failed are terminal.
type SessionState int

const (
	SessionStarting SessionState = iota
	SessionStreaming
	SessionAwaitingResult
	SessionCompleted
	SessionCancelled
	SessionFailed
)

var sessionStateNames = map[SessionState]string{
	SessionStarting:       "starting",
	SessionStreaming:      "streaming",
	SessionAwaitingResult: "awaiting_result",
	SessionCompleted:      "completed",
	SessionCancelled:      "cancelled",
	SessionFailed:         "failed",
}

func (s SessionState) String() string {
	if name, ok := sessionStateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s SessionState) IsTerminal() bool {
	return s == SessionCompleted || s == SessionCancelled || s == SessionFailed
}

func parseSessionState(name string) SessionState {
	for state, stateName := range sessionStateNames {
		if stateName == name {
			return state
		}
	}
	return SessionFailed
}
