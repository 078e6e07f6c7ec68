package orchestration

import (
	"github.com/koscakluka/ema-assistant/core/events"
	"github.com/koscakluka/ema-assistant/core/history"
)

func (s *Supervisor) GetTurn(index int) (history.Turn, error) { return s.ledger.Get(index) }
func (s *Supervisor) CurrentIndex() int                       { return s.ledger.CurrentIndex() }
func (s *Supervisor) HistoryLen() int                         { return s.ledger.Len() }

// Previous shows the turn before the current one. It reports false at the
// oldest turn.
func (s *Supervisor) Previous() bool {
	if !s.ledger.Previous() {
		return false
	}
	s.renderCurrent()
	return true
}

// Next shows the turn after the current one. It reports false at the
// newest turn.
func (s *Supervisor) Next() bool {
	if !s.ledger.Next() {
		return false
	}
	s.renderCurrent()
	return true
}

// Seek shows the turn at index.
func (s *Supervisor) Seek(index int) (history.Turn, error) {
	turn, err := s.ledger.Seek(index)
	if err != nil {
		return history.Turn{}, err
	}
	s.render(index, turn)
	return turn, nil
}

// SetDraft records the query being typed, restored by RecallNextQuery when
// moving past the newest past query.
func (s *Supervisor) SetDraft(draft string)                { s.ledger.SetDraft(draft) }
func (s *Supervisor) RecallPreviousQuery() (string, bool) { return s.ledger.RecallPrevious() }
func (s *Supervisor) RecallNextQuery() (string, bool)     { return s.ledger.RecallNext() }

func (s *Supervisor) renderCurrent() {
	turn, ok := s.ledger.Current()
	if !ok {
		return
	}
	s.render(s.ledger.CurrentIndex(), turn)
}

// render hands the turn's screen to the renderer. Renderer failures,
// panics included, are reported as events and never reach the caller.
func (s *Supervisor) render(index int, turn history.Turn) {
	if s.renderer == nil {
		return
	}

	rendered, err := s.safeRender(turn.Screen)
	if err != nil {
		logger.Warn("failed to render screen", "index", index, "format", turn.Screen.Format, "error", err)
		s.emitter.Emit(events.NewRenderFailed(index, err))
		return
	}
	s.emitter.Emit(events.NewScreenRendered(index, rendered))
}

func (s *Supervisor) safeRender(payload history.ScreenPayload) (string, error) {
	var rendered string
	err := panicSafe("renderer", func() (err error) {
		rendered, err = s.renderer.Render(payload)
		return err
	})
	return rendered, err
}
