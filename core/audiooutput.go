package orchestration

import (
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-assistant/core/audio"
)

// audioOutput wraps the optional playback client and normalizes clients
// with and without completion marks.
//
// NOTE: errors from the client are logged and otherwise ignored, playback
// is a side effect of a turn and never fails it.
type audioOutput struct {
	mu sync.RWMutex

	// base stores the configured playback client.
	base AudioPlayback
	// marker is set when the client can confirm playback of marks.
	marker PlaybackMarker
}

func newAudioOutput(client AudioPlayback) *audioOutput {
	audioOutput := audioOutput{}
	audioOutput.Set(client)
	return &audioOutput
}

// Set replaces the playback client. Nil and typed-nil clients are treated as
// unconfigured.
func (a *audioOutput) Set(client AudioPlayback) {
	if a == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.base = nil
	a.marker = nil
	if isNilClient(client) {
		return
	}

	a.base = client
	if marker, ok := client.(PlaybackMarker); ok {
		a.marker = marker
	}
}

func (a *audioOutput) isConfigured() bool {
	if a == nil {
		return false
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.base != nil
}

// Enqueue forwards a chunk to the playback client. Without a client the
// chunk is dropped.
func (a *audioOutput) Enqueue(chunk []byte) {
	if a == nil {
		return
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.base == nil {
		return
	}
	if err := a.base.Enqueue(chunk); err != nil {
		logger.Warn("failed to enqueue audio for playback", "error", err)
	}
}

// Stop drops everything queued for playback.
func (a *audioOutput) Stop() {
	if a == nil {
		return
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.base == nil {
		return
	}
	if err := a.base.Stop(); err != nil {
		logger.Warn("failed to stop playback", "error", err)
	}
}

// AwaitDrain calls callback once everything enqueued so far has been played.
// Clients without marks, or no client at all, get the callback right away.
func (a *audioOutput) AwaitDrain(callback func()) {
	if a == nil {
		go callback()
		return
	}

	a.mu.RLock()
	marker := a.marker
	a.mu.RUnlock()

	if marker == nil {
		go callback()
		return
	}

	if err := marker.Mark(uuid.NewString(), func(string) { callback() }); err != nil {
		logger.Warn("failed to mark playback, not waiting for it to drain", "error", err)
		go callback()
	}
}

func (a *audioOutput) EncodingInfo() audio.EncodingInfo {
	if a == nil {
		return audio.GetDefaultPlaybackEncodingInfo()
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.base == nil {
		return audio.GetDefaultPlaybackEncodingInfo()
	}
	return a.base.PlaybackEncodingInfo()
}

// isNilClient detects nil and typed-nil interface values so facades do not
// store unusable interface wrappers as configured clients.
func isNilClient(client any) bool {
	if client == nil {
		return true
	}

	v := reflect.ValueOf(client)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}
