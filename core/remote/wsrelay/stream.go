package wsrelay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-assistant/core/remote"
	"google.golang.org/grpc/codes"
)

const (
	eventBufferSize = 32
	closeTimeout    = time.Second
)

type relayStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	conn   *websocket.Conn

	events chan remote.Event

	// writeMu serializes writes, a websocket allows a single writer.
	writeMu    sync.Mutex
	audioEnded bool

	closeOnce sync.Once
}

func newRelayStream(ctx context.Context, conn *websocket.Conn) *relayStream {
	ctx, cancel := context.WithCancel(ctx)
	stream := &relayStream{
		ctx:    ctx,
		cancel: cancel,
		conn:   conn,
		events: make(chan remote.Event, eventBufferSize),
	}

	// a blocked read only returns once the connection is closed
	go func() {
		<-ctx.Done()
		stream.Close()
	}()
	return stream
}

func (s *relayStream) Events() <-chan remote.Event { return s.events }

func (s *relayStream) SendAudio(ctx context.Context, audio []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.audioEnded {
		return errors.New("audio already ended")
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, audio)
}

func (s *relayStream) EndAudio() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.audioEnded {
		return nil
	}
	s.audioEnded = true
	return s.conn.WriteJSON(message{Type: typeAudioEnd})
}

func (s *relayStream) writeJSON(msg message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

func (s *relayStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeTimeout))
		_ = s.conn.Close()
	})
	return nil
}

func (s *relayStream) readLoop() {
	defer close(s.events)
	defer s.Close()

	for {
		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			logger.Debug("relay stream read failed", "error", err)
			s.emit(remote.Error{Err: remote.NewProtocolError(codes.Unavailable, err.Error())})
			return
		}

		if msgType == websocket.BinaryMessage {
			if len(msg) > 0 && !s.emit(remote.AudioData{Audio: msg}) {
				return
			}
			continue
		}

		event, final, ok := parseMessage(msg)
		if !ok {
			continue
		}
		if !s.emit(event) || final {
			return
		}
	}
}

func (s *relayStream) emit(event remote.Event) bool {
	select {
	case s.events <- event:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// parseMessage maps a control message onto a remote event. final is set for
// the message that ends the turn.
func parseMessage(raw []byte) (event remote.Event, final bool, ok bool) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		logger.Warn("failed to unmarshal relay message", "error", err)
		return nil, false, false
	}

	switch msg.Type {
	case typeTranscription:
		return remote.Transcription{Text: msg.Text, Done: msg.Done}, false, true
	case typeEndOfUtterance:
		return remote.EndOfUtterance{}, false, true
	case typeScreen:
		return remote.ScreenData{Format: msg.Format, Data: msg.Data}, false, true
	case typeDeviceAction:
		return remote.DeviceAction{Payload: []byte(msg.Payload)}, false, true
	case typeEnded:
		return remote.Ended{
			ContinueConversation: msg.ContinueConversation,
			ConversationState:    msg.ConversationState,
			SupplementalText:     msg.SupplementalText,
			Volume:               msg.Volume,
		}, true, true
	case typeError:
		return remote.Error{Err: remote.NewProtocolError(codes.Code(msg.Code), msg.Details)}, true, true
	default:
		logger.Debug("ignoring relay message", "type", string(msg.Type))
		return nil, false, false
	}
}
