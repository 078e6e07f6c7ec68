package wsrelay

import (
	"encoding/json"

	"github.com/koscakluka/ema-assistant/core/audio"
	"github.com/koscakluka/ema-assistant/core/remote"
)

// Control messages travel as JSON text frames, audio in both directions as
// binary frames.
type messageType string

const (
	typeHello  messageType = "hello"
	typeReady  messageType = "ready"
	typeConfig messageType = "config"
	// typeAudioEnd half-closes the outbound side of a turn.
	typeAudioEnd messageType = "audio_end"

	typeTranscription  messageType = "transcription"
	typeEndOfUtterance messageType = "end_of_utterance"
	typeScreen         messageType = "screen"
	typeDeviceAction   messageType = "device_action"
	typeEnded          messageType = "ended"
	typeError          messageType = "error"
)

type message struct {
	Type messageType `json:"type"`

	Config *turnConfig `json:"config,omitempty"`

	Text string `json:"text,omitempty"`
	Done bool   `json:"done,omitempty"`

	Format string `json:"format,omitempty"`
	Data   []byte `json:"data,omitempty"`

	Payload json.RawMessage `json:"payload,omitempty"`

	ContinueConversation bool   `json:"continue_conversation,omitempty"`
	ConversationState    []byte `json:"conversation_state,omitempty"`
	SupplementalText     string `json:"supplemental_text,omitempty"`
	Volume               int    `json:"volume,omitempty"`

	// Code is a gRPC status code, relays forward upstream errors untouched.
	Code    uint32 `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type turnConfig struct {
	Mode              string   `json:"mode"`
	Query             string   `json:"query,omitempty"`
	Language          string   `json:"language"`
	IsNew             bool     `json:"is_new"`
	ConversationState []byte   `json:"conversation_state,omitempty"`
	InputEncoding     encoding `json:"input_encoding"`
	OutputEncoding    encoding `json:"output_encoding"`
	Volume            int      `json:"volume"`
	ScreenOn          bool     `json:"screen_on"`
}

type encoding struct {
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
}

func newTurnConfig(config remote.TurnConfig) *turnConfig {
	return &turnConfig{
		Mode:              config.Mode.String(),
		Query:             config.Query,
		Language:          config.Language,
		IsNew:             config.IsNew,
		ConversationState: config.ConversationState,
		InputEncoding:     newEncoding(config.InputEncoding),
		OutputEncoding:    newEncoding(config.OutputEncoding),
		Volume:            config.Volume,
		ScreenOn:          config.ScreenOn,
	}
}

func newEncoding(info audio.EncodingInfo) encoding {
	return encoding{Format: info.Format.Name(), SampleRate: info.SampleRate}
}
