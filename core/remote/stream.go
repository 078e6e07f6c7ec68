package remote

import "context"

// Stream is one open turn. Events is closed after the final Ended or Error
// event or after Close.
type Stream interface {
	Events() <-chan Event
	SendAudio(ctx context.Context, audio []byte) error
	// EndAudio half-closes the outbound side.
	EndAudio() error
	Close() error
}
