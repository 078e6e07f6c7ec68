package orchestration

import (
	"sync"

	"github.com/koscakluka/ema-assistant/core/events"
	"github.com/koscakluka/ema-assistant/core/history"
	"github.com/koscakluka/ema-assistant/core/recovery"
)

type supervisorCallbacks struct {
	onEvent         func(events.Event)
	onStateChanged  func(SessionState)
	onTranscription func(text string, done bool)
	onTurnCompleted func(index int, turn history.Turn)
	onTurnFailed    func(recovery.Action)
	onScreen        func(index int, rendered string)
	onMicLevel      func(level float64)
}

func (callbacks supervisorCallbacks) dispatch(event events.Event) {
	if callbacks.onEvent != nil {
		callbacks.onEvent(event)
	}

	switch typedEvent := event.(type) {
	case events.SessionStateChanged:
		if callbacks.onStateChanged != nil {
			callbacks.onStateChanged(parseSessionState(typedEvent.State))
		}
	case events.TranscriptUpdated:
		if callbacks.onTranscription != nil {
			callbacks.onTranscription(typedEvent.Text, typedEvent.Done)
		}
	case events.TurnCompleted:
		if callbacks.onTurnCompleted != nil {
			callbacks.onTurnCompleted(typedEvent.Index, typedEvent.Turn)
		}
	case events.TurnFailed:
		if callbacks.onTurnFailed != nil {
			callbacks.onTurnFailed(typedEvent.Action)
		}
	case events.ScreenRendered:
		if callbacks.onScreen != nil {
			callbacks.onScreen(typedEvent.Index, typedEvent.Rendered)
		}
	case events.MicLevel:
		if callbacks.onMicLevel != nil {
			callbacks.onMicLevel(typedEvent.Level)
		}
	}
}

// eventEmitter delivers events on its own goroutine in the order they were
// emitted. Emit never blocks, so it is safe to call while holding locks that
// handlers may need.
type eventEmitter struct {
	handler func(events.Event)

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []events.Event
	closed bool
	done   chan struct{}
}

func newEventEmitter(handler func(events.Event)) *eventEmitter {
	emitter := &eventEmitter{handler: handler, done: make(chan struct{})}
	emitter.cond = sync.NewCond(&emitter.mu)
	go emitter.run()
	return emitter
}

func (e *eventEmitter) Emit(event events.Event) {
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.queue = append(e.queue, event)
	e.cond.Signal()
}

// Close delivers what is already queued and stops the emitter.
func (e *eventEmitter) Close() {
	if e == nil {
		return
	}

	e.mu.Lock()
	e.closed = true
	e.cond.Signal()
	e.mu.Unlock()

	<-e.done
}

func (e *eventEmitter) run() {
	defer close(e.done)

	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 && e.closed {
			e.mu.Unlock()
			return
		}
		batch := e.queue
		e.queue = nil
		e.mu.Unlock()

		for _, event := range batch {
			e.deliver(event)
		}
	}
}

func (e *eventEmitter) deliver(event events.Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("event handler panicked", "kind", event.Kind(), "panic", recovered)
		}
	}()

	e.handler(event)
}
