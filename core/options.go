package orchestration

import (
	"context"
	"time"

	"github.com/koscakluka/ema-assistant/core/audio"
	"github.com/koscakluka/ema-assistant/core/events"
	"github.com/koscakluka/ema-assistant/core/history"
	"github.com/koscakluka/ema-assistant/core/recovery"
	"github.com/koscakluka/ema-assistant/core/remote"
)

type SupervisorOption func(*Supervisor)

// Authenticator reports whether the user is logged in. RequestLogin is fire
// and forget, completion shows up as a later change of IsAuthenticated.
type Authenticator interface {
	IsAuthenticated() bool
	RequestLogin()
	// Invalidate clears the authenticated flag.
	Invalidate()
}

func WithAuthenticator(auth Authenticator) SupervisorOption {
	return func(s *Supervisor) { s.auth = auth }
}

// Assistant opens turns on the remote service.
type Assistant interface {
	// Ready reports whether the connection handshake has completed.
	Ready() bool
	Open(ctx context.Context, config remote.TurnConfig) (remote.Stream, error)
}

func WithAssistant(assistant Assistant) SupervisorOption {
	return func(s *Supervisor) { s.assistant = assistant }
}

type AudioCapture interface {
	StartCapture(ctx context.Context, deviceID string, onChunk func(audio.Chunk)) error
	StopCapture() error
	CaptureEncodingInfo() audio.EncodingInfo
}

func WithAudioCapture(client AudioCapture) SupervisorOption {
	return func(s *Supervisor) { s.audioInput.Set(client) }
}

type AudioPlayback interface {
	Enqueue(audio []byte) error
	Stop() error
	PlaybackEncodingInfo() audio.EncodingInfo
}

// PlaybackMarker is implemented by playback clients that can report when
// everything enqueued before a mark has been played.
type PlaybackMarker interface {
	Mark(mark string, onPlayed func(string)) error
}

func WithAudioPlayback(client AudioPlayback) SupervisorOption {
	return func(s *Supervisor) { s.audioOutput.Set(client) }
}

// Renderer turns a screen payload into something displayable. It must
// return an error for payloads it cannot parse.
type Renderer interface {
	Render(payload history.ScreenPayload) (string, error)
}

func WithRenderer(renderer Renderer) SupervisorOption {
	return func(s *Supervisor) { s.renderer = renderer }
}

// HistoryStore persists completed turns across restarts. Load returns
// turns oldest first.
type HistoryStore interface {
	Load(ctx context.Context) ([]history.Turn, error)
	Save(ctx context.Context, turn history.Turn) error
}

// WithHistoryStore seeds the ledger from store and saves every completed
// turn to it.
func WithHistoryStore(store HistoryStore) SupervisorOption {
	return func(s *Supervisor) { s.historyStore = store }
}

type DeviceActionHandler interface {
	HandleDeviceAction(ctx context.Context, payload []byte) error
}

func WithDeviceActionHandler(handler DeviceActionHandler) SupervisorOption {
	return func(s *Supervisor) { s.deviceActions = handler }
}

// Hotword is paused while a session holds the microphone. The detector
// signals a wake word by calling [Supervisor.Wake].
type Hotword interface {
	Suspend()
	Resume()
}

func WithHotword(hotword Hotword) SupervisorOption {
	return func(s *Supervisor) { s.audioInput.SetHotword(hotword) }
}

// Settings are the user preferences that shape each turn.
type Settings struct {
	Language             string
	ForceNewConversation bool

	EnableAudioOutput                bool
	EnableAudioOutputForTypedQueries bool
	// EnableVoiceFollowUp reopens the microphone when the assistant expects
	// an answer.
	EnableVoiceFollowUp bool

	MicrophoneDevice string
	RespondToHotword bool
	// Volume is reported to the service as the device output volume.
	Volume int

	RetryDelay time.Duration
}

const defaultRetryDelay = 500 * time.Millisecond

func DefaultSettings() Settings {
	return Settings{
		Language:          "en-US",
		EnableAudioOutput: true,
		RespondToHotword:  true,
		Volume:            100,
		RetryDelay:        defaultRetryDelay,
	}
}

func WithSettings(settings Settings) SupervisorOption {
	return func(s *Supervisor) {
		if settings.RetryDelay <= 0 {
			settings.RetryDelay = defaultRetryDelay
		}
		s.settings = settings
	}
}

func WithBaseContext(ctx context.Context) SupervisorOption {
	return func(s *Supervisor) { s.baseContext = ctx }
}

// WithEventHandler registers a handler for every lifecycle event. Handlers
// run on a single goroutine in emission order.
func WithEventHandler(handler func(events.Event)) SupervisorOption {
	return func(s *Supervisor) { s.callbacks.onEvent = handler }
}

// WithStateChangedCallback registers a callback for session state changes.
func WithStateChangedCallback(callback func(state SessionState)) SupervisorOption {
	return func(s *Supervisor) { s.callbacks.onStateChanged = callback }
}

// WithTranscriptionCallback registers a callback for transcription updates
// of spoken queries.
func WithTranscriptionCallback(callback func(text string, done bool)) SupervisorOption {
	return func(s *Supervisor) { s.callbacks.onTranscription = callback }
}

func WithTurnCompletedCallback(callback func(index int, turn history.Turn)) SupervisorOption {
	return func(s *Supervisor) { s.callbacks.onTurnCompleted = callback }
}

func WithTurnFailedCallback(callback func(action recovery.Action)) SupervisorOption {
	return func(s *Supervisor) { s.callbacks.onTurnFailed = callback }
}

// WithScreenCallback registers a callback for rendered screens, both of new
// turns and of turns revisited through history navigation.
func WithScreenCallback(callback func(index int, rendered string)) SupervisorOption {
	return func(s *Supervisor) { s.callbacks.onScreen = callback }
}

func WithMicLevelCallback(callback func(level float64)) SupervisorOption {
	return func(s *Supervisor) { s.callbacks.onMicLevel = callback }
}
