package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-assistant/core/audio"
)

// Client drives blocking PortAudio streams. Capture runs on its own read
// loop, playback is fed by a writer goroutine so Enqueue never blocks the
// caller.
type Client struct {
	bufferSize int

	captureMu     sync.Mutex
	captureStream *portaudio.Stream
	captureStop   context.CancelFunc
	captureDone   chan struct{}
	in            []int16

	playbackStream *portaudio.Stream
	playbackQueue  chan playbackItem
	playbackDone   chan struct{}
	leftoverAudio  []byte
	out            []int16

	// generation invalidates queued audio on Stop.
	generationMu sync.Mutex
	generation   int
}

type playbackItem struct {
	generation int
	audio      []byte
	mark       string
	onPlayed   func(string)
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	c := &Client{
		bufferSize:    bufferSize,
		in:            make([]int16, bufferSize),
		out:           make([]int16, bufferSize),
		playbackQueue: make(chan playbackItem, 256),
		playbackDone:  make(chan struct{}),
	}

	stream, err := portaudio.OpenDefaultStream(0, 1, audio.DefaultPlaybackSampleRate, bufferSize, c.out)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open playback stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start playback stream: %w", err)
	}
	c.playbackStream = stream
	go c.writeLoop()

	return c, nil
}

func (c *Client) StartCapture(ctx context.Context, deviceID string, onChunk func(audio.Chunk)) error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()

	if c.captureStream != nil {
		return nil
	}

	device, err := findInputDevice(deviceID)
	if err != nil {
		return err
	}

	params := portaudio.LowLatencyParameters(device, nil)
	params.Input.Channels = 1
	params.SampleRate = audio.DefaultSampleRate
	params.FramesPerBuffer = c.bufferSize

	stream, err := portaudio.OpenStream(params, c.in)
	if err != nil {
		return fmt.Errorf("failed to open capture stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start capture stream: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	c.captureStream = stream
	c.captureStop = cancel
	c.captureDone = make(chan struct{})
	go c.readLoop(ctx, stream, c.captureDone, onChunk)

	return nil
}

func (c *Client) readLoop(ctx context.Context, stream *portaudio.Stream, done chan struct{}, onChunk func(audio.Chunk)) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				continue
			}
			logger.Warn("failed to read from capture stream", "error", err)
			return
		}

		audioBuffer := bytes.Buffer{}
		binary.Write(&audioBuffer, binary.LittleEndian, c.in)
		onChunk(audio.NewChunk(audioBuffer.Bytes()))
	}
}

func (c *Client) StopCapture() error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()

	if c.captureStream == nil {
		return nil
	}

	c.captureStop()
	<-c.captureDone

	var errs error
	if err := c.captureStream.Stop(); err != nil {
		errs = errors.Join(errs, fmt.Errorf("failed to stop capture stream: %w", err))
	}
	if err := c.captureStream.Close(); err != nil {
		errs = errors.Join(errs, fmt.Errorf("failed to close capture stream: %w", err))
	}
	c.captureStream = nil
	return errs
}

func (c *Client) CaptureEncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (c *Client) PlaybackEncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultPlaybackEncodingInfo()
}

func (c *Client) Enqueue(audio []byte) error {
	c.playbackQueue <- playbackItem{generation: c.currentGeneration(), audio: audio}
	return nil
}

func (c *Client) Mark(mark string, onPlayed func(string)) error {
	c.playbackQueue <- playbackItem{generation: c.currentGeneration(), mark: mark, onPlayed: onPlayed}
	return nil
}

// Stop drops everything queued so far. Marks still fire so waiters are
// released.
func (c *Client) Stop() error {
	c.generationMu.Lock()
	c.generation++
	c.generationMu.Unlock()
	return nil
}

func (c *Client) currentGeneration() int {
	c.generationMu.Lock()
	defer c.generationMu.Unlock()
	return c.generation
}

func (c *Client) writeLoop() {
	defer close(c.playbackDone)

	bufferSize := c.bufferSize * 2
	for item := range c.playbackQueue {
		if item.onPlayed != nil {
			item.onPlayed(item.mark)
			continue
		}
		if item.generation != c.currentGeneration() {
			c.leftoverAudio = nil
			continue
		}

		// PERF: This is just to test this, there is no reason we should
		// kill performance by copying here
		pending := append(c.leftoverAudio, item.audio...)
		for len(pending) >= bufferSize {
			binary.Read(bytes.NewReader(pending[:bufferSize]), binary.LittleEndian, c.out)
			if err := c.playbackStream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
				logger.Warn("failed to write to playback stream", "error", err)
			}
			pending = pending[bufferSize:]
		}
		c.leftoverAudio = append([]byte(nil), pending...)
	}
}

func (c *Client) Close() {
	_ = c.StopCapture()
	close(c.playbackQueue)
	<-c.playbackDone
	c.playbackStream.Stop()
	c.playbackStream.Close()
	portaudio.Terminate()
}

func findInputDevice(deviceID string) (*portaudio.DeviceInfo, error) {
	if deviceID != "" {
		devices, err := portaudio.Devices()
		if err != nil {
			return nil, fmt.Errorf("failed to list audio devices: %w", err)
		}
		for _, device := range devices {
			if device.Name == deviceID && device.MaxInputChannels > 0 {
				return device, nil
			}
		}
		logger.Warn("audio device not found, using default", "device", deviceID)
	}

	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("failed to find default input device: %w", err)
	}
	return device, nil
}
