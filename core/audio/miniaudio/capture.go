package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-assistant/core/audio"
)

type captureClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	deviceID     string

	onChunk func(audio.Chunk)

	mu sync.Mutex
}

func (c *captureClient) init(deviceID string) error {
	sampleRate := uint32(audio.DefaultSampleRate)
	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = sampleRate
	config.Capture.Format = format
	config.Capture.Channels = uint32(channels)
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = 480
	config.Periods = 3

	info, err := findDevice(c.audioContext, malgo.Capture, deviceID)
	if err != nil {
		return err
	}
	if info != nil {
		config.Capture.DeviceID = info.ID.Pointer()
	}

	c.device, err = malgo.InitDevice(c.audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			c.mu.Lock()
			onChunk := c.onChunk
			c.mu.Unlock()
			if onChunk != nil {
				onChunk(audio.NewChunk(pInput[:n]))
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	c.deviceID = deviceID
	return nil
}

// Start (re)initializes the device when a different input is requested.
func (c *captureClient) Start(deviceID string, onChunk func(audio.Chunk)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil && c.deviceID != deviceID {
		c.device.Uninit()
		c.device = nil
	}
	if c.device == nil {
		if err := c.init(deviceID); err != nil {
			return err
		}
	}

	c.onChunk = onChunk
	if c.device.IsStarted() {
		return nil
	}

	if err := c.device.Start(); err != nil {
		c.onChunk = nil
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

func (c *captureClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onChunk = nil
	if c.device == nil || !c.device.IsStarted() {
		return nil
	}

	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop device: %w", err)
	}
	return nil
}

func (c *captureClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}

	c.onChunk = nil
	return nil
}
