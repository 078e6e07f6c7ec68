package remote

// Event is a message received on a turn's inbound stream. Concrete types
// are listed below, transports never send anything else.
type Event interface {
	remoteEvent()
}

// Transcription is the live transcription of the spoken query.
type Transcription struct {
	Text string
	Done bool
}

// AudioData is a chunk of assistant speech in the turn's output encoding.
type AudioData struct {
	Audio []byte
}

// EndOfUtterance marks that the service stopped listening.
type EndOfUtterance struct{}

// DeviceAction is an opaque device action payload.
type DeviceAction struct {
	Payload []byte
}

// ScreenData is the rendered result for the turn.
type ScreenData struct {
	Format string
	Data   []byte
}

// Ended closes the turn. Err is set when the service ended it with an error.
type Ended struct {
	Err                  error
	ContinueConversation bool
	// ConversationState should be sent with the next turn.
	ConversationState []byte
	SupplementalText  string
	Volume            int
}

// Error is a stream level failure. No events follow it.
type Error struct {
	Err error
}

func (Transcription) remoteEvent()  {}
func (AudioData) remoteEvent()      {}
func (EndOfUtterance) remoteEvent() {}
func (DeviceAction) remoteEvent()   {}
func (ScreenData) remoteEvent()     {}
func (Ended) remoteEvent()          {}
func (Error) remoteEvent()          {}
