package orchestration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koscakluka/ema-assistant/core/audio"
	"github.com/koscakluka/ema-assistant/core/events"
	"github.com/koscakluka/ema-assistant/core/history"
	"github.com/koscakluka/ema-assistant/core/remote"
)

const testTimeout = 2 * time.Second

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}

type authStub struct {
	authenticated atomic.Bool
	loginRequests atomic.Int32
}

func newAuthStub(authenticated bool) *authStub {
	auth := &authStub{}
	auth.authenticated.Store(authenticated)
	return auth
}

func (a *authStub) IsAuthenticated() bool { return a.authenticated.Load() }
func (a *authStub) RequestLogin()         { a.loginRequests.Add(1) }
func (a *authStub) Invalidate()           { a.authenticated.Store(false) }

type streamStub struct {
	events chan remote.Event

	mu         sync.Mutex
	sent       [][]byte
	audioEnded bool
	closed     bool
}

func newStreamStub() *streamStub {
	return &streamStub{events: make(chan remote.Event, 32)}
}

func (s *streamStub) Events() <-chan remote.Event { return s.events }

func (s *streamStub) SendAudio(_ context.Context, audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.audioEnded {
		return errors.New("stream closed")
	}
	s.sent = append(s.sent, audio)
	return nil
}

func (s *streamStub) EndAudio() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioEnded = true
	return nil
}

func (s *streamStub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *streamStub) push(events ...remote.Event) {
	for _, event := range events {
		s.events <- event
	}
}

func (s *streamStub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *streamStub) isAudioEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioEnded
}

func (s *streamStub) sentAudio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.sent...)
}

type assistantStub struct {
	ready atomic.Bool

	mu      sync.Mutex
	streams []*streamStub
	configs []remote.TurnConfig
	openErr error
	// gate, when set, blocks Open until it is closed.
	gate chan struct{}
}

func newAssistantStub() *assistantStub {
	assistant := &assistantStub{}
	assistant.ready.Store(true)
	return assistant
}

func (a *assistantStub) Ready() bool { return a.ready.Load() }

func (a *assistantStub) Open(ctx context.Context, config remote.TurnConfig) (remote.Stream, error) {
	a.mu.Lock()
	gate := a.gate
	a.configs = append(a.configs, config)
	a.mu.Unlock()

	if gate != nil {
		<-gate
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.openErr != nil {
		return nil, a.openErr
	}
	stream := newStreamStub()
	a.streams = append(a.streams, stream)
	return stream, nil
}

func (a *assistantStub) streamCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.streams)
}

func (a *assistantStub) stream(t *testing.T, index int) *streamStub {
	t.Helper()
	waitForCondition(t, testTimeout, "remote stream to open", func() bool { return a.streamCount() > index })

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.streams[index]
}

func (a *assistantStub) config(index int) remote.TurnConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.configs[index]
}

func (a *assistantStub) openCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.configs)
}

type captureStub struct {
	mu       sync.Mutex
	starts   int
	stops    int
	active   bool
	deviceID string
	onChunk  func(audio.Chunk)
}

func (c *captureStub) StartCapture(_ context.Context, deviceID string, onChunk func(audio.Chunk)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	c.active = true
	c.deviceID = deviceID
	c.onChunk = onChunk
	return nil
}

func (c *captureStub) StopCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	c.active = false
	return nil
}

func (c *captureStub) CaptureEncodingInfo() audio.EncodingInfo { return audio.GetDefaultEncodingInfo() }

func (c *captureStub) isActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *captureStub) startCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}

func (c *captureStub) feed(chunk audio.Chunk) {
	c.mu.Lock()
	onChunk := c.onChunk
	c.mu.Unlock()
	onChunk(chunk)
}

type playbackStub struct {
	mu       sync.Mutex
	enqueued [][]byte
	stops    int
}

func (p *playbackStub) Enqueue(audio []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enqueued = append(p.enqueued, audio)
	return nil
}

func (p *playbackStub) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	return nil
}

func (p *playbackStub) PlaybackEncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultPlaybackEncodingInfo()
}

func (p *playbackStub) chunks() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.enqueued...)
}

type markingPlaybackStub struct {
	playbackStub

	marksMu sync.Mutex
	marks   []func(string)
}

func (p *markingPlaybackStub) Mark(mark string, onPlayed func(string)) error {
	p.marksMu.Lock()
	defer p.marksMu.Unlock()
	p.marks = append(p.marks, func(string) { onPlayed(mark) })
	return nil
}

func (p *markingPlaybackStub) pendingMarks() int {
	p.marksMu.Lock()
	defer p.marksMu.Unlock()
	return len(p.marks)
}

func (p *markingPlaybackStub) drain() {
	p.marksMu.Lock()
	marks := p.marks
	p.marks = nil
	p.marksMu.Unlock()

	for _, mark := range marks {
		mark("")
	}
}

type rendererStub struct {
	err   error
	panic bool
}

func (r rendererStub) Render(payload history.ScreenPayload) (string, error) {
	if r.panic {
		panic("renderer exploded")
	}
	if r.err != nil {
		return "", r.err
	}
	return "rendered:" + string(payload.Data), nil
}

type hotwordStub struct {
	suspended atomic.Bool
	suspends  atomic.Int32
}

func (h *hotwordStub) Suspend() { h.suspended.Store(true); h.suspends.Add(1) }
func (h *hotwordStub) Resume()  { h.suspended.Store(false) }

type deviceActionRecorder struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (d *deviceActionRecorder) HandleDeviceAction(_ context.Context, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payloads = append(d.payloads, payload)
	return nil
}

func (d *deviceActionRecorder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.payloads)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) handle(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) ofKind(kind events.Kind) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matching []events.Event
	for _, event := range r.events {
		if event.Kind() == kind {
			matching = append(matching, event)
		}
	}
	return matching
}

func (r *eventRecorder) count(kind events.Kind) int {
	return len(r.ofKind(kind))
}

type testRig struct {
	supervisor *Supervisor
	auth       *authStub
	assistant  *assistantStub
	capture    *captureStub
	playback   *playbackStub
	hotword    *hotwordStub
	recorder   *eventRecorder
}

func testSettings() Settings {
	settings := DefaultSettings()
	settings.RetryDelay = 10 * time.Millisecond
	settings.MicrophoneDevice = "test-mic"
	return settings
}

func newTestRig(t *testing.T, opts ...SupervisorOption) *testRig {
	t.Helper()

	rig := &testRig{
		auth:      newAuthStub(true),
		assistant: newAssistantStub(),
		capture:   &captureStub{},
		playback:  &playbackStub{},
		hotword:   &hotwordStub{},
		recorder:  &eventRecorder{},
	}

	baseOpts := []SupervisorOption{
		WithAuthenticator(rig.auth),
		WithAssistant(rig.assistant),
		WithAudioCapture(rig.capture),
		WithAudioPlayback(rig.playback),
		WithHotword(rig.hotword),
		WithRenderer(rendererStub{}),
		WithSettings(testSettings()),
		WithEventHandler(rig.recorder.handle),
	}
	rig.supervisor = NewSupervisor(append(baseOpts, opts...)...)
	t.Cleanup(rig.supervisor.Close)
	return rig
}

func (rig *testRig) waitForState(t *testing.T, session *Session, state SessionState) {
	t.Helper()
	waitForCondition(t, testTimeout, "session to reach "+state.String(), func() bool {
		return session.State() == state
	})
}

func (rig *testRig) activeSession(t *testing.T) *Session {
	t.Helper()
	session := rig.supervisor.ActiveSession()
	if session == nil {
		t.Fatalf("expected an active session")
	}
	return session
}

type historyStoreStub struct {
	mu      sync.Mutex
	initial []history.Turn
	loadErr error
	saved   []history.Turn
}

func (h *historyStoreStub) Load(context.Context) ([]history.Turn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.initial, h.loadErr
}

func (h *historyStoreStub) Save(_ context.Context, turn history.Turn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saved = append(h.saved, turn)
	return nil
}

func (h *historyStoreStub) savedTurns() []history.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]history.Turn(nil), h.saved...)
}
