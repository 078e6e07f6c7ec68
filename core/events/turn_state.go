package events

import (
	"github.com/koscakluka/ema-assistant/core/history"
	"github.com/koscakluka/ema-assistant/core/recovery"
)

const (
	// KindTurnCompleted identifies turns stored in history.
	KindTurnCompleted Kind = "turn_state.completed"
	// KindTurnFailed identifies failed turns.
	KindTurnFailed Kind = "turn_state.failed"
	// KindRecoveryGuidance identifies user facing recovery guidance.
	KindRecoveryGuidance Kind = "turn_state.recovery_guidance"
)

// TurnCompleted carries the turn appended to history and its index.
type TurnCompleted struct {
	Base
	SessionID string
	Index     int
	Turn      history.Turn
}

// NewTurnCompleted creates a turn completed event.
func NewTurnCompleted(sessionID string, index int, turn history.Turn) TurnCompleted {
	return TurnCompleted{Base: NewBase(KindTurnCompleted), SessionID: sessionID, Index: index, Turn: turn}
}

// TurnFailed carries the recovery action classified from the failure.
type TurnFailed struct {
	Base
	SessionID string
	Action    recovery.Action
	Err       error
}

// NewTurnFailed creates a turn failed event.
func NewTurnFailed(sessionID string, action recovery.Action, err error) TurnFailed {
	return TurnFailed{Base: NewBase(KindTurnFailed), SessionID: sessionID, Action: action, Err: err}
}

// RecoveryGuidance carries text a UI can show for a recovery action.
type RecoveryGuidance struct {
	Base
	Action   recovery.Action
	Guidance recovery.Guidance
}

// NewRecoveryGuidance creates a recovery guidance event.
func NewRecoveryGuidance(action recovery.Action, guidance recovery.Guidance) RecoveryGuidance {
	return RecoveryGuidance{Base: NewBase(KindRecoveryGuidance), Action: action, Guidance: guidance}
}
