package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	orchestration "github.com/koscakluka/ema-assistant/core"
	"github.com/koscakluka/ema-assistant/core/audio/miniaudio"
	"github.com/koscakluka/ema-assistant/core/audio/portaudio"
	"github.com/koscakluka/ema-assistant/core/auth"
	"github.com/koscakluka/ema-assistant/core/config"
	"github.com/koscakluka/ema-assistant/core/events"
	"github.com/koscakluka/ema-assistant/core/history/sqlitestore"
	"github.com/koscakluka/ema-assistant/core/remote/googleassistant"
	"github.com/koscakluka/ema-assistant/core/remote/wsrelay"
	"github.com/koscakluka/ema-assistant/core/render"
	"golang.org/x/oauth2"
)

const (
	eventBufferSize    = 256
	defaultBufferSize  = 1024
	relayReadyTimeout  = 10 * time.Second
	googleAuthURL      = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL     = "https://oauth2.googleapis.com/token"
	defaultRedirectURL = "urn:ietf:wg:oauth:2.0:oob"
)

type audioBackend interface {
	orchestration.AudioCapture
	orchestration.AudioPlayback
	Close()
}

type app struct {
	cfg        *config.Config
	auth       *auth.State
	audio      audioBackend
	history    *sqlitestore.Store
	supervisor *orchestration.Supervisor
	events     chan events.Event

	closeAssistant func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:    cfg,
		events: make(chan events.Event, eventBufferSize),
	}

	a.auth = auth.NewState(oauthConfig(cfg), auth.WithTokenStore(auth.NewTokenStore(tokensPath(cfg))))
	if err := a.auth.Load(); err != nil {
		slog.Warn("failed to load saved login", "error", err)
	}

	assistant, err := a.newAssistant(ctx)
	if err != nil {
		return nil, err
	}

	opts := []orchestration.SupervisorOption{
		orchestration.WithBaseContext(ctx),
		orchestration.WithAssistant(assistant),
		orchestration.WithSettings(cfg.Settings()),
		orchestration.WithRenderer(render.NewRenderer()),
		orchestration.WithDeviceActionHandler(deviceActionLogger{}),
		orchestration.WithEventHandler(a.publish),
	}
	if !a.usesSharedSecret() {
		opts = append(opts, orchestration.WithAuthenticator(a.auth))
	}

	if cfg.History.Path != "" {
		store, err := sqlitestore.Open(cfg.History.Path, sqlitestore.WithLimit(cfg.History.Limit))
		if err != nil {
			slog.Warn("turn history will not be saved", "path", cfg.History.Path, "error", err)
		} else {
			a.history = store
			opts = append(opts, orchestration.WithHistoryStore(store))
		}
	}

	if backend, err := newAudioBackend(cfg); err != nil {
		// typed queries keep working without audio devices
		slog.Warn("audio is unavailable", "backend", cfg.Audio.Backend, "error", err)
	} else {
		a.audio = backend
		opts = append(opts,
			orchestration.WithAudioCapture(backend),
			orchestration.WithAudioPlayback(backend))
	}

	a.supervisor = orchestration.NewSupervisor(opts...)
	return a, nil
}

func (a *app) newAssistant(ctx context.Context) (orchestration.Assistant, error) {
	tokens := a.auth.TokenSource(ctx)

	switch a.cfg.Remote.Transport {
	case config.TransportRelay:
		credentials := wsrelay.WithTokenSource(tokens)
		if a.usesSharedSecret() {
			credentials = wsrelay.WithSharedSecret([]byte(a.cfg.Remote.RelaySecret), a.cfg.Remote.DeviceID)
		}
		client, err := wsrelay.NewClient(a.cfg.Remote.Endpoint, credentials)
		if err != nil {
			return nil, err
		}
		go func() {
			handshakeCtx, cancel := context.WithTimeout(ctx, relayReadyTimeout)
			defer cancel()
			if err := client.Handshake(handshakeCtx); err != nil {
				slog.Warn("relay handshake failed", "error", err)
			}
		}()
		a.closeAssistant = func() error { return nil }
		return client, nil

	default:
		client, err := googleassistant.Dial(a.cfg.Remote.Endpoint, tokens,
			googleassistant.WithDevice(a.cfg.Remote.DeviceModelID, a.cfg.Remote.DeviceID))
		if err != nil {
			return nil, err
		}
		a.closeAssistant = client.Close
		return client, nil
	}
}

// usesSharedSecret reports whether the relay is authorized by a pre-shared
// secret, in which case no OAuth2 login gates turns.
func (a *app) usesSharedSecret() bool {
	return a.cfg.Remote.Transport == config.TransportRelay && a.cfg.Remote.RelaySecret != ""
}

func newAudioBackend(cfg *config.Config) (audioBackend, error) {
	switch cfg.Audio.Backend {
	case config.AudioBackendPortaudio:
		bufferSize := cfg.Audio.BufferSize
		if bufferSize <= 0 {
			bufferSize = defaultBufferSize
		}
		return portaudio.NewClient(bufferSize)
	default:
		return miniaudio.NewClient(miniaudio.WithPlaybackDevice(cfg.SpeakerSource))
	}
}

// publish hands events to the UI. Events are dropped when the UI stops
// reading so shutdown never blocks on a full buffer.
func (a *app) publish(event events.Event) {
	select {
	case a.events <- event:
	default:
		slog.Debug("dropping event", "kind", string(event.Kind()))
	}
}

func (a *app) Close() {
	a.supervisor.Close()
	if a.audio != nil {
		a.audio.Close()
	}
	if err := a.closeAssistant(); err != nil {
		slog.Warn("failed to close assistant connection", "error", err)
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			slog.Warn("failed to close history store", "error", err)
		}
	}
}

func oauthConfig(cfg *config.Config) *oauth2.Config {
	endpoint := oauth2.Endpoint{AuthURL: googleAuthURL, TokenURL: googleTokenURL}
	if cfg.Auth.LoginURL != "" {
		endpoint.AuthURL = cfg.Auth.LoginURL
	}
	if cfg.Auth.TokenURL != "" {
		endpoint.TokenURL = cfg.Auth.TokenURL
	}

	redirectURL := cfg.Auth.RedirectURL
	if redirectURL == "" {
		redirectURL = defaultRedirectURL
	}

	return &oauth2.Config{
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{auth.AssistantScope},
		Endpoint:     endpoint,
	}
}

func tokensPath(cfg *config.Config) string {
	if cfg.Auth.SavedTokensPath != "" {
		return cfg.Auth.SavedTokensPath
	}
	return "ema-assistant-tokens.json"
}

// deviceActionLogger records the commands of device actions. The client has
// no local devices to drive.
type deviceActionLogger struct{}

func (deviceActionLogger) HandleDeviceAction(_ context.Context, payload []byte) error {
	var request struct {
		RequestID string `json:"requestId"`
		Inputs    []struct {
			Payload struct {
				Commands []struct {
					Execution []struct {
						Command string         `json:"command"`
						Params  map[string]any `json:"params"`
					} `json:"execution"`
				} `json:"commands"`
			} `json:"payload"`
		} `json:"inputs"`
	}
	if err := json.Unmarshal(payload, &request); err != nil {
		return fmt.Errorf("failed to parse device action: %w", err)
	}

	for _, input := range request.Inputs {
		for _, command := range input.Payload.Commands {
			for _, execution := range command.Execution {
				slog.Info("device action", "request_id", request.RequestID,
					"command", execution.Command, "params", execution.Params)
			}
		}
	}
	return nil
}
