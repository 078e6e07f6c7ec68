package recovery

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamOpen wraps failures to open the remote stream.
	ErrStreamOpen = errors.New("failed to open remote stream")
	// ErrAuthExpired reports missing or expired credentials.
	ErrAuthExpired = errors.New("authentication expired")
	// ErrNetworkUnavailable reports that the remote service cannot be reached.
	ErrNetworkUnavailable = errors.New("network unavailable")
)

type UnsupportedLanguageError struct {
	Code string
}

func (e *UnsupportedLanguageError) Error() string {
	if e.Code == "" {
		return "unsupported language"
	}
	return fmt.Sprintf("unsupported language %q", e.Code)
}

// FatalError is an unrecoverable client side failure.
type FatalError struct {
	Message string
	Err     error
}

func (e *FatalError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *FatalError) Unwrap() error { return e.Err }
