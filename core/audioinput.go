package orchestration

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/koscakluka/ema-assistant/core/audio"
)

// audioInput wraps the optional capture client. It owns the microphone
// grant: at most one caller captures at a time and the hotword detector is
// suspended for as long as capture runs.
type audioInput struct {
	mu sync.Mutex

	// base stores the configured capture client.
	base    AudioCapture
	hotword Hotword

	// connected reports whether a concrete capture client is configured.
	connected atomic.Bool
	// isCapturing reports whether the microphone is currently granted.
	isCapturing atomic.Bool
}

func newAudioInput(client AudioCapture) *audioInput {
	audioInput := audioInput{}
	audioInput.Set(client)
	return &audioInput
}

func (a *audioInput) Set(client AudioCapture) {
	if a == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.base = nil
	a.connected.Store(false)
	a.isCapturing.Store(false)

	if isNilClient(client) {
		return
	}
	a.base = client
	a.connected.Store(true)
}

func (a *audioInput) SetHotword(hotword Hotword) {
	if a == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if isNilClient(hotword) {
		a.hotword = nil
		return
	}
	a.hotword = hotword
}

func (a *audioInput) IsConfigured() bool { return a != nil && a.connected.Load() }
func (a *audioInput) IsCapturing() bool  { return a != nil && a.isCapturing.Load() }

// Capture grants the microphone to onChunk. Capturing twice without a stop
// in between is a no-op.
func (a *audioInput) Capture(ctx context.Context, deviceID string, onChunk func(audio.Chunk)) error {
	if !a.IsConfigured() {
		return ErrNoAudioInput
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isCapturing.CompareAndSwap(false, true) {
		return nil
	}

	if a.hotword != nil {
		a.hotword.Suspend()
	}
	if err := a.base.StartCapture(ctx, deviceID, onChunk); err != nil {
		a.isCapturing.Store(false)
		if a.hotword != nil {
			a.hotword.Resume()
		}
		return err
	}
	return nil
}

// StopCapture releases the microphone and resumes hotword detection.
func (a *audioInput) StopCapture() error {
	if !a.IsConfigured() {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isCapturing.CompareAndSwap(true, false) {
		return nil
	}

	err := a.base.StopCapture()
	if a.hotword != nil {
		a.hotword.Resume()
	}
	return err
}

func (a *audioInput) EncodingInfo() audio.EncodingInfo {
	if !a.IsConfigured() {
		return audio.GetDefaultEncodingInfo()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.base.CaptureEncodingInfo()
}
