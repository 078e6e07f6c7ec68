package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	t.Setenv("EMA_TEST_CLIENT_SECRET", "from-env")

	path := writeConfig(t, `
language: de-DE
force_new_conversation: true
enable_audio_output: false
enable_audio_output_for_typed_queries: true
enable_mic_on_immediate_response: true
respond_to_hotword: false
microphone_source: "USB Mic"
volume: 60
retry_delay: 2s

remote:
  transport: google
  device_model_id: model
  device_id: device

auth:
  client_id: client
  client_secret: ${EMA_TEST_CLIENT_SECRET}
  saved_tokens_path: /tmp/tokens.json

audio:
  backend: portaudio
  buffer_size: 1024

logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "de-DE", cfg.Language)
	assert.Equal(t, "from-env", cfg.Auth.ClientSecret)
	assert.Equal(t, 2*time.Second, cfg.RetryDelay)
	assert.Equal(t, AudioBackendPortaudio, cfg.Audio.Backend)
	assert.Equal(t, 1024, cfg.Audio.BufferSize)

	settings := cfg.Settings()
	assert.Equal(t, "de-DE", settings.Language)
	assert.True(t, settings.ForceNewConversation)
	assert.False(t, settings.EnableAudioOutput)
	assert.True(t, settings.EnableAudioOutputForTypedQueries)
	assert.True(t, settings.EnableVoiceFollowUp)
	assert.False(t, settings.RespondToHotword)
	assert.Equal(t, "USB Mic", settings.MicrophoneDevice)
	assert.Equal(t, 60, settings.Volume)
	assert.Equal(t, 2*time.Second, settings.RetryDelay)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
auth:
  client_id: client
`))
	require.NoError(t, err)

	assert.Equal(t, "en-US", cfg.Language)
	assert.Equal(t, TransportGoogle, cfg.Remote.Transport)
	assert.Equal(t, AudioBackendMiniaudio, cfg.Audio.Backend)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 100, cfg.Volume)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryDelay)
	assert.Empty(t, cfg.History.Path)
	assert.Equal(t, 100, cfg.History.Limit)

	settings := cfg.Settings()
	assert.True(t, settings.EnableAudioOutput)
	assert.True(t, settings.RespondToHotword)
	assert.False(t, settings.EnableVoiceFollowUp)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "bad yaml", content: "language: [", wantErr: "parsing config file"},
		{name: "bad duration", content: "retry_delay: soon\nauth:\n  client_id: c", wantErr: "retry_delay"},
		{name: "volume out of range", content: "volume: 150\nauth:\n  client_id: c", wantErr: "volume"},
		{name: "google without client", content: "remote:\n  transport: google", wantErr: "auth.client_id"},
		{name: "relay without endpoint", content: "remote:\n  transport: relay", wantErr: "remote.endpoint"},
		{name: "unknown transport", content: "remote:\n  transport: carrier-pigeon", wantErr: "remote.transport"},
		{name: "unknown backend", content: "audio:\n  backend: alsa\nauth:\n  client_id: c", wantErr: "audio.backend"},
		{name: "unknown log level", content: "logging:\n  level: loud\nauth:\n  client_id: c", wantErr: "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExpandEnvVars_UnsetVariableIsEmpty(t *testing.T) {
	assert.Equal(t, "id: ", expandEnvVars("id: ${EMA_TEST_SURELY_UNSET_VARIABLE}"))
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	cfg.Auth.ClientID = "client"
	require.NoError(t, cfg.Validate())
}

func TestSchema_UsesYAMLFieldNames(t *testing.T) {
	data, err := Schema()
	require.NoError(t, err)

	var schema struct {
		Title      string                     `json:"title"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(data, &schema))

	assert.Equal(t, "ema-assistant configuration", schema.Title)
	assert.Contains(t, schema.Properties, "enable_mic_on_immediate_response")
	assert.Contains(t, schema.Properties, "retry_delay")
	assert.Contains(t, schema.Properties, "remote")
	assert.NotContains(t, schema.Properties, "RetryDelay")
}

func TestLoad_TOMLConfig(t *testing.T) {
	t.Setenv("EMA_TEST_RELAY_SECRET", "s3cret")

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
language = "fr-FR"
respond_to_hotword = false
retry_delay = "1500ms"

[remote]
transport = "relay"
endpoint = "wss://relay.example.com"
relay_secret = "${EMA_TEST_RELAY_SECRET}"

[history]
path = "/tmp/ema/history.db"
limit = 25
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "fr-FR", cfg.Language)
	assert.False(t, *cfg.RespondToHotword)
	assert.True(t, *cfg.EnableAudioOutput)
	assert.Equal(t, 1500*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, TransportRelay, cfg.Remote.Transport)
	assert.Equal(t, "s3cret", cfg.Remote.RelaySecret)
	assert.Equal(t, "/tmp/ema/history.db", cfg.History.Path)
	assert.Equal(t, 25, cfg.History.Limit)
}

func TestParseTOML_Invalid(t *testing.T) {
	_, err := ParseTOML([]byte(`language = `))
	assert.ErrorContains(t, err, "parsing config file")
}
