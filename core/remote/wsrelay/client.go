package wsrelay

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-assistant/core/recovery"
	"github.com/koscakluka/ema-assistant/core/remote"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

const (
	handshakePath = "/v1/handshake"
	assistPath    = "/v1/assist"

	handshakeTimeout = 10 * time.Second
)

// Client opens turns on a self-hosted relay that fronts the assistant
// service. Each turn gets its own websocket connection.
type Client struct {
	endpoint *url.URL
	tokens   oauth2.TokenSource
	dialer   *websocket.Dialer

	ready atomic.Bool
}

type ClientOption func(*Client)

// WithTokenSource authorizes every connection with a bearer token.
func WithTokenSource(tokens oauth2.TokenSource) ClientOption {
	return func(c *Client) {
		c.tokens = tokens
	}
}

func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(c *Client) {
		c.dialer = dialer
	}
}

func NewClient(endpoint string, opts ...ClientOption) (*Client, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid relay endpoint: %w", err)
	}
	switch parsed.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("invalid relay endpoint scheme %q, expected ws or wss", parsed.Scheme)
	}

	c := &Client{
		endpoint: parsed,
		dialer:   websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Ready reports whether a handshake with the relay has succeeded.
func (c *Client) Ready() bool {
	return c.ready.Load()
}

// Handshake checks that the relay is reachable and accepts our credentials.
func (c *Client) Handshake(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "relay handshake")
	defer span.End()

	conn, err := c.dial(ctx, handshakePath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return err
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(handshakeTimeout)
	}
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)

	if err := conn.WriteJSON(message{Type: typeHello}); err != nil {
		return fmt.Errorf("failed to send relay hello: %w", err)
	}

	var reply message
	if err := conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("failed to read relay handshake reply: %w", err)
	}
	if reply.Type != typeReady {
		err := fmt.Errorf("unexpected relay handshake reply %q", reply.Type)
		span.RecordError(err)
		span.SetStatus(codes.Error, "handshake rejected")
		return err
	}

	c.ready.Store(true)
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}

func (c *Client) Open(ctx context.Context, config remote.TurnConfig) (remote.Stream, error) {
	ctx, span := tracer.Start(ctx, "open relay stream",
		trace.WithAttributes(attribute.String("mode", config.Mode.String())))
	defer span.End()

	conn, err := c.dial(ctx, assistPath)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to open relay stream: %w", err)
	}

	stream := newRelayStream(ctx, conn)
	if err := stream.writeJSON(message{Type: typeConfig, Config: newTurnConfig(config)}); err != nil {
		stream.Close()
		span.RecordError(err)
		return nil, fmt.Errorf("failed to send turn config: %w", err)
	}
	if config.Mode == remote.ModeText {
		if err := stream.EndAudio(); err != nil {
			stream.Close()
			return nil, fmt.Errorf("failed to close typed query request: %w", err)
		}
	}

	go stream.readLoop()
	return stream, nil
}

func (c *Client) dial(ctx context.Context, path string) (*websocket.Conn, error) {
	target := *c.endpoint
	target.Path = strings.TrimSuffix(target.Path, "/") + path

	header := http.Header{}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to get relay token: %w", err)
		}
		header.Set("Authorization", token.Type()+" "+token.AccessToken)
	}

	conn, response, err := c.dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		if response != nil && response.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("relay rejected credentials: %w", recovery.ErrAuthExpired)
		}
		return nil, fmt.Errorf("failed to open socket connection to relay: %w", err)
	}
	return conn, nil
}
