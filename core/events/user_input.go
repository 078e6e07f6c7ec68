package events

const (
	// KindTranscriptUpdated identifies transcription updates of the spoken query.
	KindTranscriptUpdated Kind = "user_input.transcript_updated"
	// KindMicLevel identifies input amplitude updates.
	KindMicLevel Kind = "user_input.mic_level"
)

// TranscriptUpdated carries the current transcription of the spoken query.
type TranscriptUpdated struct {
	Base
	SessionID string
	Text      string
	Done      bool
}

// NewTranscriptUpdated creates a transcript updated event.
func NewTranscriptUpdated(sessionID, text string, done bool) TranscriptUpdated {
	return TranscriptUpdated{Base: NewBase(KindTranscriptUpdated), SessionID: sessionID, Text: text, Done: done}
}

// MicLevel carries the smoothed microphone amplitude.
type MicLevel struct {
	Base
	SessionID string
	Level     float64
}

// NewMicLevel creates a mic level event.
func NewMicLevel(sessionID string, level float64) MicLevel {
	return MicLevel{Base: NewBase(KindMicLevel), SessionID: sessionID, Level: level}
}
