package remote

import "github.com/koscakluka/ema-assistant/core/audio"

type Mode int

const (
	ModeText Mode = iota
	ModeVoice
)

func (m Mode) String() string {
	if m == ModeVoice {
		return "voice"
	}
	return "text"
}

// TurnConfig holds everything a transport needs to open one turn.
type TurnConfig struct {
	Mode Mode
	// Query is sent as the typed query in ModeText and ignored otherwise.
	Query string

	Language string
	// IsNew asks the service to drop any conversation context.
	IsNew bool
	// ConversationState is the opaque dialog state returned by the previous
	// turn, nil when there was none.
	ConversationState []byte

	InputEncoding  audio.EncodingInfo
	OutputEncoding audio.EncodingInfo
	// Volume is the output volume percentage reported to the service.
	Volume int
	// ScreenOn requests rendered screen payloads.
	ScreenOn bool
}
