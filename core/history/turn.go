package history

import "time"

// ScreenPayload is a rendered result as produced by the remote service. The
// bytes are opaque to the ledger, Format tells renderers how to read them.
type ScreenPayload struct {
	Format string
	Data   []byte
}

func (p ScreenPayload) IsZero() bool {
	return p.Format == "" && len(p.Data) == 0
}

// Turn is one completed user to assistant exchange.
type Turn struct {
	ID        string
	Query     string
	Screen    ScreenPayload
	Timestamp time.Time
	// IsFollowUp is set for turns started automatically because the
	// assistant asked to continue the conversation.
	IsFollowUp bool
	// Voice is set when the query was spoken rather than typed.
	Voice bool

	// SupplementalText is the display text sent alongside the screen, if any.
	SupplementalText string
	// Volume is the volume level requested by the assistant, 0 when unset.
	Volume int
}
