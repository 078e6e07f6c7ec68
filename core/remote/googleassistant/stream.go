package googleassistant

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/koscakluka/ema-assistant/core/remote"
	embedded "google.golang.org/genproto/googleapis/assistant/embedded/v1alpha2"
	"google.golang.org/grpc/status"
)

const eventBufferSize = 32

type assistStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	assist embedded.EmbeddedAssistant_AssistClient

	events chan remote.Event
	mapper responseMapper

	// sendMu serializes Send and CloseSend, grpc allows only one sender.
	sendMu     sync.Mutex
	audioEnded bool
}

func newAssistStream(ctx context.Context, cancel context.CancelFunc, assist embedded.EmbeddedAssistant_AssistClient) *assistStream {
	return &assistStream{
		ctx:    ctx,
		cancel: cancel,
		assist: assist,
		events: make(chan remote.Event, eventBufferSize),
	}
}

func (s *assistStream) Events() <-chan remote.Event { return s.events }

func (s *assistStream) SendAudio(ctx context.Context, audio []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.audioEnded {
		return errors.New("audio already ended")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.assist.Send(&embedded.AssistRequest{
		Type: &embedded.AssistRequest_AudioIn{AudioIn: audio},
	})
}

func (s *assistStream) EndAudio() error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.audioEnded {
		return nil
	}
	s.audioEnded = true
	return s.assist.CloseSend()
}

func (s *assistStream) Close() error {
	s.cancel()
	return nil
}

func (s *assistStream) readLoop() {
	defer close(s.events)

	for {
		response, err := s.assist.Recv()
		if errors.Is(err, io.EOF) {
			s.emit(s.mapper.ended())
			return
		}
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			st := status.Convert(err)
			logger.Debug("assist stream failed", "code", st.Code().String(), "details", st.Message())
			s.emit(remote.Error{Err: remote.NewProtocolError(st.Code(), st.Message())})
			return
		}

		for _, event := range s.mapper.mapResponse(response) {
			if !s.emit(event) {
				return
			}
		}
	}
}

func (s *assistStream) emit(event remote.Event) bool {
	select {
	case s.events <- event:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// responseMapper turns AssistResponse messages into remote events. Dialog
// state arrives before the stream ends and is reported with Ended.
type responseMapper struct {
	transcript     string
	transcriptDone bool

	dialogState *embedded.DialogStateOut
}

func (m *responseMapper) mapResponse(response *embedded.AssistResponse) []remote.Event {
	var mapped []remote.Event

	if len(response.GetSpeechResults()) > 0 && !m.transcriptDone {
		var text strings.Builder
		stable := true
		for _, result := range response.GetSpeechResults() {
			text.WriteString(result.GetTranscript())
			if result.GetStability() < 1 {
				stable = false
			}
		}
		m.transcript = text.String()
		m.transcriptDone = stable
		mapped = append(mapped, remote.Transcription{Text: m.transcript, Done: stable})
	}

	if response.GetEventType() == embedded.AssistResponse_END_OF_UTTERANCE {
		// recognition is final once the service stops listening
		if !m.transcriptDone && m.transcript != "" {
			m.transcriptDone = true
			mapped = append(mapped, remote.Transcription{Text: m.transcript, Done: true})
		}
		mapped = append(mapped, remote.EndOfUtterance{})
	}

	if audioOut := response.GetAudioOut(); audioOut != nil && len(audioOut.GetAudioData()) > 0 {
		mapped = append(mapped, remote.AudioData{Audio: audioOut.GetAudioData()})
	}

	if screenOut := response.GetScreenOut(); screenOut != nil && len(screenOut.GetData()) > 0 {
		mapped = append(mapped, remote.ScreenData{
			Format: strings.ToLower(screenOut.GetFormat().String()),
			Data:   screenOut.GetData(),
		})
	}

	if action := response.GetDeviceAction(); action != nil && action.GetDeviceRequestJson() != "" {
		mapped = append(mapped, remote.DeviceAction{Payload: []byte(action.GetDeviceRequestJson())})
	}

	if dialogState := response.GetDialogStateOut(); dialogState != nil {
		m.dialogState = dialogState
	}

	return mapped
}

func (m *responseMapper) ended() remote.Ended {
	if m.dialogState == nil {
		return remote.Ended{}
	}

	return remote.Ended{
		ContinueConversation: m.dialogState.GetMicrophoneMode() == embedded.DialogStateOut_DIALOG_FOLLOW_ON,
		ConversationState:    m.dialogState.GetConversationState(),
		SupplementalText:     m.dialogState.GetSupplementalDisplayText(),
		Volume:               int(m.dialogState.GetVolumePercentage()),
	}
}
