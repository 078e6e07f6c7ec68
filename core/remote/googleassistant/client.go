package googleassistant

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/koscakluka/ema-assistant/core/remote"
	"golang.org/x/oauth2"
	embedded "google.golang.org/genproto/googleapis/assistant/embedded/v1alpha2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/oauth"
)

const DefaultEndpoint = "embeddedassistant.googleapis.com:443"

// Client opens Assist streams on the Embedded Assistant API.
type Client struct {
	conn   *grpc.ClientConn
	client embedded.EmbeddedAssistantClient

	deviceModelID string
	deviceID      string
}

type ClientOption func(*Client)

func WithDevice(modelID, deviceID string) ClientOption {
	return func(c *Client) {
		c.deviceModelID = modelID
		c.deviceID = deviceID
	}
}

// Dial connects to endpoint over TLS, authorizing every call with tokens.
func Dial(endpoint string, tokens oauth2.TokenSource, opts ...ClientOption) (*Client, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})),
		grpc.WithPerRPCCredentials(oauth.TokenSource{TokenSource: tokens}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", endpoint, err)
	}

	return NewClient(conn, opts...), nil
}

// NewClient wraps an existing connection. The connection is owned by the
// client from then on.
func NewClient(conn *grpc.ClientConn, opts ...ClientOption) *Client {
	c := &Client{
		conn:   conn,
		client: embedded.NewEmbeddedAssistantClient(conn),
	}
	for _, opt := range opts {
		opt(c)
	}

	conn.Connect()
	return c
}

// Ready reports whether the connection has completed its handshake. An idle
// connection counts as ready, it reconnects on the next call.
func (c *Client) Ready() bool {
	switch c.conn.GetState() {
	case connectivity.Ready, connectivity.Idle:
		return true
	default:
		return false
	}
}

// WaitReady blocks until the handshake completes or ctx is done.
func (c *Client) WaitReady(ctx context.Context) error {
	for {
		state := c.conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			c.conn.Connect()
		case connectivity.Shutdown:
			return fmt.Errorf("connection shut down")
		}

		if !c.conn.WaitForStateChange(ctx, state) {
			return ctx.Err()
		}
	}
}

func (c *Client) Open(ctx context.Context, config remote.TurnConfig) (remote.Stream, error) {
	ctx, span := tracer.Start(ctx, "open assist stream")
	defer span.End()

	streamCtx, cancel := context.WithCancel(ctx)
	assist, err := c.client.Assist(streamCtx)
	if err != nil {
		cancel()
		span.RecordError(err)
		return nil, fmt.Errorf("failed to open assist stream: %w", err)
	}

	request := &embedded.AssistRequest{
		Type: &embedded.AssistRequest_Config{Config: c.assistConfig(config)},
	}
	if err := assist.Send(request); err != nil {
		cancel()
		span.RecordError(err)
		return nil, fmt.Errorf("failed to send assist config: %w", err)
	}

	stream := newAssistStream(streamCtx, cancel, assist)
	if config.Mode == remote.ModeText {
		if err := stream.EndAudio(); err != nil {
			stream.Close()
			return nil, fmt.Errorf("failed to close typed query request: %w", err)
		}
	}

	go stream.readLoop()
	return stream, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) assistConfig(config remote.TurnConfig) *embedded.AssistConfig {
	assistConfig := &embedded.AssistConfig{
		AudioOutConfig: &embedded.AudioOutConfig{
			Encoding:         audioOutEncoding(config.OutputEncoding),
			SampleRateHertz:  int32(config.OutputEncoding.SampleRate),
			VolumePercentage: int32(config.Volume),
		},
		DialogStateIn: &embedded.DialogStateIn{
			LanguageCode:      config.Language,
			ConversationState: config.ConversationState,
			IsNewConversation: config.IsNew,
		},
		DeviceConfig: &embedded.DeviceConfig{
			DeviceId:      c.deviceID,
			DeviceModelId: c.deviceModelID,
		},
	}

	if config.ScreenOn {
		assistConfig.ScreenOutConfig = &embedded.ScreenOutConfig{ScreenMode: embedded.ScreenOutConfig_PLAYING}
	}

	if config.Mode == remote.ModeText {
		assistConfig.Type = &embedded.AssistConfig_TextQuery{TextQuery: config.Query}
	} else {
		assistConfig.Type = &embedded.AssistConfig_AudioInConfig{AudioInConfig: &embedded.AudioInConfig{
			Encoding:        audioInEncoding(config.InputEncoding),
			SampleRateHertz: int32(config.InputEncoding.SampleRate),
		}}
	}

	return assistConfig
}
