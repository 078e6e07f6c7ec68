package orchestration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/koscakluka/ema-assistant/core/audio"
	"github.com/koscakluka/ema-assistant/core/events"
	"github.com/koscakluka/ema-assistant/core/history"
	"github.com/koscakluka/ema-assistant/core/recovery"
	"github.com/koscakluka/ema-assistant/core/remote"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// sessionAudioBacklog bounds captured chunks waiting for the session
	// loop. Chunks beyond it are dropped rather than blocking the audio
	// thread.
	sessionAudioBacklog = 64
	// micLevelSmoothing is the weight kept from the previous level.
	micLevelSmoothing = 0.6
)

type turnInput struct {
	mode  remote.Mode
	query string
}

type sessionOutcome struct {
	state  SessionState
	action recovery.Action
	err    error

	continueConversation bool
	conversationState    []byte

	turn      history.Turn
	turnIndex int
}

type sessionDeps struct {
	assistant     Assistant
	audioInput    *audioInput
	audioOutput   *audioOutput
	ledger        *history.Ledger
	deviceActions DeviceActionHandler
	emitter       *eventEmitter
	// onFinished is called from the session goroutine, without any session
	// lock held, once the session completes or fails.
	onFinished func(*Session, sessionOutcome)
}

// Session mediates a single turn attempt. All inbound stream events and
// captured audio are handled sequentially by one goroutine, the only other
// entry points are Cancel and StopMicrophone.
type Session struct {
	id         string
	input      turnInput
	isFollowUp bool
	config     remote.TurnConfig
	deviceID   string
	playAudio  bool
	deps       sessionDeps

	ctx    context.Context
	cancel context.CancelFunc
	span   trace.Span

	mu             sync.Mutex
	state          SessionState
	query          string
	transcriptDone bool
	micActive      bool
	micLevel       float64
	lastError      error
	screen         history.ScreenPayload
	stream         remote.Stream
	outcome        *sessionOutcome

	audioIn chan audio.Chunk
	done    chan struct{}
}

func newSession(ctx context.Context, id string, input turnInput, isFollowUp bool, config remote.TurnConfig, settings Settings, deps sessionDeps) *Session {
	ctx, span := tracer.Start(ctx, "conversation turn", trace.WithAttributes(
		attribute.String("turn.id", id),
		attribute.String("turn.mode", input.mode.String()),
		attribute.Bool("turn.follow_up", isFollowUp),
	))
	ctx, cancel := context.WithCancel(ctx)

	playAudio := settings.EnableAudioOutput &&
		(input.mode == remote.ModeVoice || settings.EnableAudioOutputForTypedQueries)

	return &Session{
		id:         id,
		input:      input,
		isFollowUp: isFollowUp,
		config:     config,
		deviceID:   settings.MicrophoneDevice,
		playAudio:  playAudio,
		deps:       deps,
		ctx:        ctx,
		cancel:     cancel,
		span:       span,
		state:      SessionStarting,
		query:      input.query,
		audioIn:    make(chan audio.Chunk, sessionAudioBacklog),
		done:       make(chan struct{}),
	}
}

func (s *Session) ID() string            { return s.id }
func (s *Session) Mode() remote.Mode     { return s.input.mode }
func (s *Session) IsFollowUp() bool      { return s.isFollowUp }
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Query returns the live query. For voice turns it follows the
// transcription until the final update.
func (s *Session) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

func (s *Session) MicActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.micActive
}

func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// start announces the session and opens the remote stream in the
// background.
func (s *Session) start() {
	s.mu.Lock()
	s.emitLocked(events.NewSessionStateChanged(s.id, s.state.String()))
	s.mu.Unlock()

	turnsStarted.Add(s.ctx, 1, metric.WithAttributes(attribute.String("turn.mode", s.input.mode.String())))
	go s.run()
}

// Cancel forces the session into Cancelled. Capture is stopped and the
// remote stream closed before it returns. Cancelling a terminal session does
// nothing.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsTerminal() {
		return
	}
	s.cancelLocked("cancelled")
}

func (s *Session) cancelLocked(reason string) {
	s.setStateLocked(SessionCancelled)
	s.teardownLocked()
	s.span.AddEvent(reason)
}

// StopMicrophone ends the spoken query early: capture stops, the outbound
// audio is closed and the session waits for the result.
func (s *Session) StopMicrophone() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionStreaming {
		return ErrMicrophoneNotLive
	}

	s.stopMicrophoneLocked(true)
	s.setStateLocked(SessionAwaitingResult)
	return nil
}

func (s *Session) run() {
	defer close(s.done)
	defer s.span.End()

	stream, err := s.deps.assistant.Open(s.ctx, s.config)

	accepted := s.handle(func() {
		if err != nil && s.ctx.Err() != nil {
			if stream != nil {
				s.stream = stream
			}
			s.cancelLocked("context done while opening")
			return
		}
		if err != nil {
			s.failLocked(fmt.Errorf("%w: %w", recovery.ErrStreamOpen, err))
			return
		}

		s.stream = stream
		if s.input.mode == remote.ModeText {
			s.setStateLocked(SessionAwaitingResult)
			return
		}

		s.setStateLocked(SessionStreaming)
		if err := s.deps.audioInput.Capture(s.ctx, s.deviceID, s.onCapturedChunk); err != nil {
			s.failLocked(&recovery.FatalError{Message: "failed to start audio capture", Err: err})
			return
		}
		s.micActive = true
	})
	if !accepted {
		// cancelled while the stream was opening
		if stream != nil {
			if err := stream.Close(); err != nil {
				logger.Debug("failed to close late stream", "session", s.id, "error", err)
			}
		}
		return
	}
	if stream == nil || s.State().IsTerminal() {
		return
	}

	inbound := stream.Events()
	for {
		select {
		case <-s.ctx.Done():
			// the base context went away without a Cancel
			s.handle(func() { s.cancelLocked("context done") })
			return
		case chunk := <-s.audioIn:
			s.forwardAudio(chunk)
		case event, ok := <-inbound:
			if !ok {
				s.handle(s.onStreamClosedLocked)
				return
			}
			s.dispatch(event)
		}

		if s.State().IsTerminal() {
			return
		}
	}
}

// handle runs handler under the session lock unless the session is already
// terminal, in which case the input is discarded. It reports whether the
// handler ran.
func (s *Session) handle(handler func()) bool {
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return false
	}

	handler()
	outcome := s.outcome
	s.outcome = nil
	s.mu.Unlock()

	if outcome != nil {
		turnsFinished.Add(context.WithoutCancel(s.ctx), 1, metric.WithAttributes(
			attribute.String("turn.state", outcome.state.String()),
			attribute.String("turn.action", outcome.action.Kind.String()),
		))
		if s.deps.onFinished != nil {
			s.deps.onFinished(s, *outcome)
		}
	}
	return true
}

// dispatch routes one inbound event to its handler. Each handler decides
// based on the current state whether the event applies.
func (s *Session) dispatch(event remote.Event) {
	switch typedEvent := event.(type) {
	case remote.Transcription:
		s.handle(func() { s.onTranscriptionLocked(typedEvent) })
	case remote.AudioData:
		s.handle(func() { s.onAudioDataLocked(typedEvent) })
	case remote.EndOfUtterance:
		s.handle(s.onEndOfUtteranceLocked)
	case remote.DeviceAction:
		var forward bool
		s.handle(func() { forward = s.onDeviceActionLocked(typedEvent) })
		if forward {
			s.forwardDeviceAction(typedEvent.Payload)
		}
	case remote.ScreenData:
		s.handle(func() { s.onScreenDataLocked(typedEvent) })
	case remote.Ended:
		s.handle(func() { s.onEndedLocked(typedEvent) })
	case remote.Error:
		s.handle(func() { s.onErrorLocked(typedEvent) })
	default:
		logger.Warn("ignoring unknown remote event", "session", s.id, "type", fmt.Sprintf("%T", event))
	}
}

func (s *Session) isReceivingLocked() bool {
	return s.state == SessionStreaming || s.state == SessionAwaitingResult
}

func (s *Session) onTranscriptionLocked(event remote.Transcription) {
	if !s.isReceivingLocked() || s.input.mode != remote.ModeVoice || s.transcriptDone {
		return
	}

	s.query = event.Text
	s.transcriptDone = event.Done
	s.emitLocked(events.NewTranscriptUpdated(s.id, event.Text, event.Done))
}

func (s *Session) onAudioDataLocked(event remote.AudioData) {
	if !s.isReceivingLocked() || !s.playAudio {
		return
	}

	s.deps.audioOutput.Enqueue(event.Audio)
}

func (s *Session) onEndOfUtteranceLocked() {
	if s.state != SessionStreaming {
		return
	}

	s.stopMicrophoneLocked(true)
	s.setStateLocked(SessionAwaitingResult)
}

func (s *Session) onDeviceActionLocked(event remote.DeviceAction) bool {
	if !s.isReceivingLocked() {
		return false
	}

	s.emitLocked(events.NewDeviceAction(s.id, event.Payload))
	return s.deps.deviceActions != nil
}

func (s *Session) onScreenDataLocked(event remote.ScreenData) {
	if !s.isReceivingLocked() {
		return
	}

	s.screen = history.ScreenPayload{Format: event.Format, Data: event.Data}
}

func (s *Session) onEndedLocked(event remote.Ended) {
	if !s.isReceivingLocked() {
		return
	}

	if s.state == SessionStreaming {
		s.stopMicrophoneLocked(false)
	}

	if event.Err != nil {
		s.failLocked(event.Err)
		return
	}

	query := s.input.query
	if s.input.mode == remote.ModeVoice {
		query = ""
		if s.transcriptDone {
			query = s.query
		}
	}

	turn := history.Turn{
		ID:               s.id,
		Query:            query,
		Screen:           s.screen,
		Timestamp:        time.Now(),
		IsFollowUp:       s.isFollowUp,
		Voice:            s.input.mode == remote.ModeVoice,
		SupplementalText: event.SupplementalText,
		Volume:           event.Volume,
	}

	index := -1
	if !s.screen.IsZero() {
		index = s.deps.ledger.Append(turn)
		s.emitLocked(events.NewTurnCompleted(s.id, index, turn))
	}

	s.setStateLocked(SessionCompleted)
	s.teardownLocked()
	s.outcome = &sessionOutcome{
		state:                SessionCompleted,
		continueConversation: event.ContinueConversation,
		conversationState:    event.ConversationState,
		turn:                 turn,
		turnIndex:            index,
	}
}

func (s *Session) onErrorLocked(event remote.Error) {
	if !s.isReceivingLocked() {
		return
	}

	err := event.Err
	if err == nil {
		err = errors.New("remote stream failed without a cause")
	}
	s.failLocked(err)
}

func (s *Session) onStreamClosedLocked() {
	s.failLocked(fmt.Errorf("remote stream closed before the turn ended: %w", io.ErrUnexpectedEOF))
}

func (s *Session) failLocked(err error) {
	action := recovery.ClassifyError(err)

	s.lastError = err
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
	s.span.SetAttributes(attribute.String("turn.recovery_action", action.String()))

	s.setStateLocked(SessionFailed)
	s.teardownLocked()

	if action.Kind != recovery.ActionIgnore {
		s.emitLocked(events.NewTurnFailed(s.id, action, err))
	} else {
		logger.Debug("ignoring benign remote error", "session", s.id, "error", err)
	}

	s.outcome = &sessionOutcome{state: SessionFailed, action: action, err: err, turnIndex: -1}
}

func (s *Session) setStateLocked(state SessionState) {
	if s.state == state {
		return
	}

	s.state = state
	s.span.SetAttributes(attribute.String("turn.state", state.String()))
	s.emitLocked(events.NewSessionStateChanged(s.id, state.String()))
}

func (s *Session) stopMicrophoneLocked(endAudio bool) {
	if s.micActive {
		if err := s.deps.audioInput.StopCapture(); err != nil {
			logger.Warn("failed to stop audio capture", "session", s.id, "error", err)
		}
		s.micActive = false
	}

	if endAudio && s.stream != nil {
		if err := s.stream.EndAudio(); err != nil {
			logger.Debug("failed to end outbound audio", "session", s.id, "error", err)
		}
	}
}

// teardownLocked releases the microphone and the remote stream.
func (s *Session) teardownLocked() {
	s.stopMicrophoneLocked(s.input.mode == remote.ModeVoice)

	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			logger.Debug("failed to close remote stream", "session", s.id, "error", err)
		}
	}
	s.cancel()
}

func (s *Session) emitLocked(event events.Event) {
	s.deps.emitter.Emit(event)
}

// onCapturedChunk runs on the capture thread.
func (s *Session) onCapturedChunk(chunk audio.Chunk) {
	select {
	case s.audioIn <- chunk:
	case <-s.ctx.Done():
	default:
		logger.Warn("dropping captured audio, session is falling behind", "session", s.id)
	}
}

func (s *Session) forwardAudio(chunk audio.Chunk) {
	s.mu.Lock()
	if s.state != SessionStreaming {
		s.mu.Unlock()
		return
	}
	s.micLevel = audio.ClampLevel(micLevelSmoothing*s.micLevel + (1-micLevelSmoothing)*chunk.Level)
	s.emitLocked(events.NewMicLevel(s.id, s.micLevel))
	stream := s.stream
	s.mu.Unlock()

	if err := stream.SendAudio(s.ctx, chunk.Data); err != nil {
		s.handle(func() {
			// the microphone may have been closed while sending
			if s.state != SessionStreaming {
				return
			}
			s.failLocked(fmt.Errorf("failed to send audio: %w", err))
		})
	}
}

func (s *Session) forwardDeviceAction(payload []byte) {
	err := panicSafe("device action handler", func() error {
		return s.deps.deviceActions.HandleDeviceAction(s.ctx, payload)
	})
	if err != nil {
		s.span.RecordError(err)
		logger.Warn("failed to handle device action", "session", s.id, "error", err)
	}
}
