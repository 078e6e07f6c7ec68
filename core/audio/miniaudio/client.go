package miniaudio

import (
	"context"
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-assistant/core/audio"
)

// Client owns a miniaudio context and exposes a capture device and a
// playback device on top of it.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	playbackClient
	captureClient
}

type ClientOption func(*clientOptions)

type clientOptions struct {
	playbackDeviceID string
	playbackRate     int
}

// WithPlaybackDevice selects the output device by id or name. An empty or
// unknown id falls back to the system default.
func WithPlaybackDevice(deviceID string) ClientOption {
	return func(o *clientOptions) { o.playbackDeviceID = deviceID }
}

func WithPlaybackSampleRate(sampleRate int) ClientOption {
	return func(o *clientOptions) { o.playbackRate = sampleRate }
}

func NewClient(opts ...ClientOption) (*Client, error) {
	options := clientOptions{playbackRate: audio.DefaultPlaybackSampleRate}
	for _, opt := range opts {
		opt(&options)
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize miniaudio context: %w", err)
	}

	client := Client{audioContext: audioCtx}
	client.playbackClient.sampleRate = uint32(options.playbackRate)
	client.captureClient.audioContext = audioCtx

	if err := client.playbackClient.Init(audioCtx, options.playbackDeviceID); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}

	if err := client.playbackClient.Start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	return &client, nil
}

func (c *Client) StartCapture(_ context.Context, deviceID string, onChunk func(audio.Chunk)) error {
	return c.captureClient.Start(deviceID, onChunk)
}

func (c *Client) StopCapture() error {
	return c.captureClient.Stop()
}

func (c *Client) CaptureEncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (c *Client) PlaybackEncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: int(c.playbackClient.sampleRate), Format: audio.EncodingLinear16}
}

func (c *Client) Enqueue(audio []byte) error {
	return c.playbackClient.SendAudio(audio)
}

func (c *Client) Stop() error {
	c.playbackClient.ClearBuffer()
	return nil
}

func (c *Client) Mark(mark string, callback func(string)) error {
	return c.playbackClient.Mark(mark, callback)
}

// Devices lists capture devices as id/name pairs.
func (c *Client) Devices() (map[string]string, error) {
	infos, err := c.audioContext.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to list capture devices: %w", err)
	}

	devices := make(map[string]string, len(infos))
	for _, info := range infos {
		devices[info.ID.String()] = info.Name()
	}
	return devices, nil
}

func (c *Client) Close() {
	_ = c.captureClient.Uninit()
	_ = c.playbackClient.Uninit()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}

// findDevice resolves a device by id string or name.
func findDevice(audioContext *malgo.AllocatedContext, kind malgo.DeviceType, deviceID string) (*malgo.DeviceInfo, error) {
	if deviceID == "" {
		return nil, nil
	}

	infos, err := audioContext.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	for i, info := range infos {
		if info.ID.String() == deviceID || info.Name() == deviceID {
			return &infos[i], nil
		}
	}

	logger.Warn("audio device not found, using default", "device", deviceID)
	return nil, nil
}
