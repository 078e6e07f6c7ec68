package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-assistant/core/events"
	"github.com/koscakluka/ema-assistant/core/history"
	"github.com/koscakluka/ema-assistant/core/recovery"
	"github.com/koscakluka/ema-assistant/core/remote"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Supervisor is the single authority over which turn is in flight. It owns
// at most one live Session at a time, the history of completed turns and
// the recovery policy applied when a turn fails.
type Supervisor struct {
	mu sync.Mutex

	auth          Authenticator
	assistant     Assistant
	audioInput    audioInput
	audioOutput   audioOutput
	renderer      Renderer
	deviceActions DeviceActionHandler
	historyStore  HistoryStore
	settings      Settings
	callbacks     supervisorCallbacks
	baseContext   context.Context

	ledger  *history.Ledger
	emitter *eventEmitter

	session *Session
	// lastInput is what Retry re-issues.
	lastInput *turnInput
	// conversationState is the dialog state returned by the last completed
	// turn.
	conversationState []byte
	// followUpFor is the completed session whose follow-up turn is waiting
	// for playback to drain.
	followUpFor *Session
	retryTimer  *time.Timer

	closeOnce sync.Once
	closed    bool
}

func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		settings:    DefaultSettings(),
		baseContext: context.Background(),
		ledger:      history.NewLedger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.emitter = newEventEmitter(s.callbacks.dispatch)
	s.restoreHistory()
	return s
}

func (s *Supervisor) restoreHistory() {
	if s.historyStore == nil {
		return
	}

	turns, err := s.historyStore.Load(s.baseContext)
	if err != nil {
		logger.Warn("failed to load turn history", "error", err)
		return
	}
	for _, turn := range turns {
		s.ledger.Append(turn)
	}
	logger.Debug("restored turn history", "turns", len(turns))
}

func (s *Supervisor) persistTurn(turn history.Turn) {
	if s.historyStore == nil {
		return
	}
	if err := s.historyStore.Save(s.baseContext, turn); err != nil {
		logger.Warn("failed to save turn", "turn_id", turn.ID, "error", err)
	}
}

// Close cancels the active turn and flushes pending events. Collaborators
// are left for their owner to close.
func (s *Supervisor) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.stopRetryLocked()
		s.followUpFor = nil
		session := s.session
		s.mu.Unlock()

		if session != nil {
			session.Cancel()
			<-session.Done()
		}
		s.audioOutput.Stop()
		s.emitter.Close()
	})
}

// StartTextTurn cancels whatever turn is in flight and sends query as a
// typed query.
func (s *Supervisor) StartTextTurn(query string) error {
	return s.startTurn(turnInput{mode: remote.ModeText, query: query}, false)
}

// StartVoiceTurn cancels whatever turn is in flight and opens the
// microphone for a spoken query.
func (s *Supervisor) StartVoiceTurn() error {
	return s.startTurn(turnInput{mode: remote.ModeVoice}, false)
}

func (s *Supervisor) startTurn(input turnInput, isFollowUp bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSupervisorClosed
	}
	if s.auth != nil && !s.auth.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	if s.assistant == nil || !s.assistant.Ready() {
		return ErrNotReady
	}
	if input.mode == remote.ModeVoice && !s.audioInput.IsConfigured() {
		return ErrNoAudioInput
	}

	s.stopRetryLocked()
	s.followUpFor = nil
	if s.session != nil {
		s.session.Cancel()
	}
	s.audioOutput.Stop()

	session := newSession(s.baseContext, uuid.NewString(), input, isFollowUp, s.turnConfigLocked(input), s.settings, sessionDeps{
		assistant:     s.assistant,
		audioInput:    &s.audioInput,
		audioOutput:   &s.audioOutput,
		ledger:        s.ledger,
		deviceActions: s.deviceActions,
		emitter:       s.emitter,
		onFinished:    s.onSessionFinished,
	})
	s.session = session
	s.lastInput = &input
	if input.mode == remote.ModeText {
		s.ledger.SetDraft("")
	}

	session.start()
	return nil
}

func (s *Supervisor) turnConfigLocked(input turnInput) remote.TurnConfig {
	config := remote.TurnConfig{
		Mode:           input.mode,
		Query:          input.query,
		Language:       s.settings.Language,
		IsNew:          s.settings.ForceNewConversation,
		InputEncoding:  s.audioInput.EncodingInfo(),
		OutputEncoding: s.audioOutput.EncodingInfo(),
		Volume:         s.settings.Volume,
		ScreenOn:       true,
	}
	if !config.IsNew && len(s.conversationState) > 0 {
		config.ConversationState = append([]byte(nil), s.conversationState...)
	}
	return config
}

// CancelActiveTurn tears down the live session, if any, and silences
// playback. It is safe to call at any time.
func (s *Supervisor) CancelActiveTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopRetryLocked()
	s.followUpFor = nil
	if s.session != nil {
		s.session.Cancel()
	}
	s.audioOutput.Stop()
}

// StopMicrophone closes the microphone of a streaming voice turn and lets
// the turn wait for its result.
func (s *Supervisor) StopMicrophone() error {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()

	if session == nil {
		return ErrNoActiveSession
	}
	return session.StopMicrophone()
}

// Wake handles a hotword detection.
func (s *Supervisor) Wake() {
	s.mu.Lock()
	respond := s.settings.RespondToHotword
	s.mu.Unlock()

	if !respond {
		return
	}
	if err := s.StartVoiceTurn(); err != nil {
		logger.Warn("failed to start voice turn on wake", "error", err)
	}
}

// ActiveSession returns the most recent session, live or terminal, or nil
// before the first turn.
func (s *Supervisor) ActiveSession() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// State returns the state of the most recent session and false before the
// first turn.
func (s *Supervisor) State() (SessionState, bool) {
	session := s.ActiveSession()
	if session == nil {
		return SessionCompleted, false
	}
	return session.State(), true
}

func (s *Supervisor) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings applies to turns started afterwards.
func (s *Supervisor) UpdateSettings(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if settings.RetryDelay <= 0 {
		settings.RetryDelay = defaultRetryDelay
	}
	s.settings = settings
}

// ResetConversation drops the dialog state so the next turn starts a new
// conversation.
func (s *Supervisor) ResetConversation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationState = nil
}

// Retry re-issues the input of the most recent turn after the configured
// retry delay. Starting any other turn in the meantime cancels it.
func (s *Supervisor) Retry() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSupervisorClosed
	}
	if s.lastInput == nil {
		return ErrNothingToRetry
	}

	input := *s.lastInput
	s.stopRetryLocked()

	var timer *time.Timer
	timer = time.AfterFunc(s.settings.RetryDelay, func() {
		s.mu.Lock()
		if s.retryTimer != timer {
			s.mu.Unlock()
			return
		}
		s.retryTimer = nil
		s.mu.Unlock()

		if err := s.startTurn(input, false); err != nil {
			logger.Warn("failed to retry turn", "mode", input.mode.String(), "error", err)
		}
	})
	s.retryTimer = timer
	return nil
}

func (s *Supervisor) stopRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

// OnRecoveryAction applies a classified recovery action.
func (s *Supervisor) OnRecoveryAction(action recovery.Action) {
	switch action.Kind {
	case recovery.ActionIgnore:
		return

	case recovery.ActionRetry:
		if err := s.Retry(); err != nil {
			logger.Warn("failed to schedule retry", "error", err)
		}

	case recovery.ActionReAuthenticate:
		s.emitGuidance(action)
		if s.auth != nil {
			s.auth.Invalidate()
			s.auth.RequestLogin()
		}
		s.emitter.Emit(events.NewLoginRequested())

	case recovery.ActionReportNetworkIssue, recovery.ActionReportLanguageUnsupported, recovery.ActionFatal:
		s.emitGuidance(action)

	default:
		logger.Warn("unknown recovery action", "action", action.String())
	}

	// a pending retry must not outlive a fatal or auth failure
	if action.Terminal() {
		s.CancelActiveTurn()
	}
}

func (s *Supervisor) emitGuidance(action recovery.Action) {
	s.mu.Lock()
	language := s.settings.Language
	s.mu.Unlock()

	s.emitter.Emit(events.NewRecoveryGuidance(action, recovery.GuidanceFor(action, language)))
}

func (s *Supervisor) onSessionFinished(session *Session, outcome sessionOutcome) {
	s.mu.Lock()
	if s.session != session {
		s.mu.Unlock()
		return
	}

	followUp := false
	if outcome.state == SessionCompleted {
		if len(outcome.conversationState) > 0 {
			s.conversationState = outcome.conversationState
		}
		if outcome.continueConversation && s.settings.EnableVoiceFollowUp && !s.closed {
			s.followUpFor = session
			followUp = true
		}
	}
	s.mu.Unlock()

	switch outcome.state {
	case SessionCompleted:
		if outcome.turnIndex >= 0 {
			s.persistTurn(outcome.turn)
			s.render(outcome.turnIndex, outcome.turn)
		}
		if followUp {
			s.audioOutput.AwaitDrain(func() { s.startFollowUp(session) })
		}

	case SessionFailed:
		span := trace.SpanFromContext(s.baseContext)
		span.RecordError(outcome.err)
		span.SetStatus(codes.Error, fmt.Sprintf("turn failed: %s", outcome.action))
		s.OnRecoveryAction(outcome.action)
	}
}

func (s *Supervisor) startFollowUp(previous *Session) {
	s.mu.Lock()
	if s.followUpFor != previous || s.session != previous {
		s.mu.Unlock()
		return
	}
	s.followUpFor = nil
	s.mu.Unlock()

	if err := s.startTurn(turnInput{mode: remote.ModeVoice}, true); err != nil {
		logger.Warn("failed to start follow-up turn", "error", err)
	}
}
