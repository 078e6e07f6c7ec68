package orchestration

import "errors"

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotReady is returned before the remote connection completed its
	// handshake.
	ErrNotReady          = errors.New("remote assistant not ready")
	ErrNoAudioInput      = errors.New("no audio input configured")
	ErrNothingToRetry    = errors.New("no previous turn to retry")
	ErrSupervisorClosed  = errors.New("supervisor closed")
	ErrNoActiveSession   = errors.New("no active session")
	ErrMicrophoneNotLive = errors.New("microphone is not streaming")
)
