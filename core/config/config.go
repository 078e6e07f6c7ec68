// Package config loads the assistant client's configuration from YAML or,
// for files ending in .toml, from TOML. Values of the form ${VAR_NAME} are
// expanded from the environment before parsing.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/invopop/jsonschema"
	orchestration "github.com/koscakluka/ema-assistant/core"
	"github.com/koscakluka/ema-assistant/core/history/sqlitestore"
	"gopkg.in/yaml.v3"
)

const (
	TransportGoogle = "google"
	TransportRelay  = "relay"

	AudioBackendMiniaudio = "miniaudio"
	AudioBackendPortaudio = "portaudio"
)

type Config struct {
	Language             string `yaml:"language" toml:"language" jsonschema:"description=BCP-47 language code sent with every turn,default=en-US"`
	ForceNewConversation bool   `yaml:"force_new_conversation" toml:"force_new_conversation" jsonschema:"description=Never carry conversation state between turns"`

	EnableAudioOutput                *bool `yaml:"enable_audio_output" toml:"enable_audio_output" jsonschema:"description=Play assistant speech,default=true"`
	EnableAudioOutputForTypedQueries bool  `yaml:"enable_audio_output_for_typed_queries" toml:"enable_audio_output_for_typed_queries" jsonschema:"description=Also play speech for typed queries"`
	EnableMicOnImmediateResponse     bool  `yaml:"enable_mic_on_immediate_response" toml:"enable_mic_on_immediate_response" jsonschema:"description=Reopen the microphone when the assistant asks a follow-up question"`
	RespondToHotword                 *bool `yaml:"respond_to_hotword" toml:"respond_to_hotword" jsonschema:"description=Start a voice turn on hotword detection,default=true"`

	MicrophoneSource string `yaml:"microphone_source" toml:"microphone_source" jsonschema:"description=Input device name or empty for the system default"`
	SpeakerSource    string `yaml:"speaker_source" toml:"speaker_source" jsonschema:"description=Output device name or empty for the system default"`
	Volume           int    `yaml:"volume" toml:"volume" jsonschema:"minimum=0,maximum=100,default=100"`

	RetryDelay    time.Duration `yaml:"-" toml:"-" json:"-"`
	RetryDelayRaw string        `yaml:"retry_delay" toml:"retry_delay" jsonschema:"description=Delay before a retried turn is reissued,default=500ms"`

	Remote  RemoteConfig  `yaml:"remote" toml:"remote"`
	Auth    AuthConfig    `yaml:"auth" toml:"auth"`
	Audio   AudioConfig   `yaml:"audio" toml:"audio"`
	History HistoryConfig `yaml:"history" toml:"history"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

type RemoteConfig struct {
	Transport     string `yaml:"transport" toml:"transport" jsonschema:"enum=google,enum=relay,default=google"`
	Endpoint      string `yaml:"endpoint" toml:"endpoint" jsonschema:"description=host:port for google and a ws(s) URL for relay"`
	DeviceModelID string `yaml:"device_model_id" toml:"device_model_id"`
	DeviceID      string `yaml:"device_id" toml:"device_id"`
	// RelaySecret signs short-lived bearer tokens for the relay when no
	// OAuth2 login is used.
	RelaySecret string `yaml:"relay_secret" toml:"relay_secret"`
}

type AuthConfig struct {
	SavedTokensPath string `yaml:"saved_tokens_path" toml:"saved_tokens_path"`
	ClientID        string `yaml:"client_id" toml:"client_id"`
	ClientSecret    string `yaml:"client_secret" toml:"client_secret"`
	// LoginURL overrides the OAuth2 consent endpoint.
	LoginURL    string `yaml:"login_url" toml:"login_url"`
	TokenURL    string `yaml:"token_url" toml:"token_url"`
	RedirectURL string `yaml:"redirect_url" toml:"redirect_url"`
}

type AudioConfig struct {
	Backend string `yaml:"backend" toml:"backend" jsonschema:"enum=miniaudio,enum=portaudio,default=miniaudio"`
	// BufferSize is the playback buffer in samples, portaudio only.
	BufferSize int `yaml:"buffer_size" toml:"buffer_size"`
}

type HistoryConfig struct {
	Path  string `yaml:"path" toml:"path" jsonschema:"description=SQLite file for turn history or empty to keep history in memory"`
	Limit int    `yaml:"limit" toml:"limit" jsonschema:"description=Number of recent turns restored on startup,default=100"`
}

type LoggingConfig struct {
	Level string `yaml:"level" toml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`
	File  string `yaml:"file" toml:"file" jsonschema:"description=Log file used while the terminal UI owns the screen"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseTOML(data)
	}
	return Parse(data)
}

// Parse reads a YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return finish(&cfg)
}

func ParseTOML(data []byte) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(expandEnvVars(string(data)), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values, unset variables expand to an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func parseDurations(cfg *Config) error {
	if cfg.RetryDelayRaw != "" {
		delay, err := time.ParseDuration(cfg.RetryDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing retry_delay %q: %w", cfg.RetryDelayRaw, err)
		}
		cfg.RetryDelay = delay
	}
	return nil
}

func applyDefaults(cfg *Config) {
	defaults := orchestration.DefaultSettings()

	if cfg.Language == "" {
		cfg.Language = defaults.Language
	}
	if cfg.EnableAudioOutput == nil {
		cfg.EnableAudioOutput = &defaults.EnableAudioOutput
	}
	if cfg.RespondToHotword == nil {
		cfg.RespondToHotword = &defaults.RespondToHotword
	}
	if cfg.Volume == 0 {
		cfg.Volume = defaults.Volume
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaults.RetryDelay
	}
	if cfg.Remote.Transport == "" {
		cfg.Remote.Transport = TransportGoogle
	}
	if cfg.Audio.Backend == "" {
		cfg.Audio.Backend = AudioBackendMiniaudio
	}
	if cfg.History.Limit == 0 {
		cfg.History.Limit = sqlitestore.DefaultLimit
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate returns an error describing the first invalid field.
func (c *Config) Validate() error {
	if c.Volume < 0 || c.Volume > 100 {
		return fmt.Errorf("volume must be between 0 and 100, got %d", c.Volume)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must not be negative")
	}
	if c.History.Limit < 0 {
		return fmt.Errorf("history.limit must not be negative")
	}

	switch c.Remote.Transport {
	case TransportGoogle:
		if c.Auth.ClientID == "" {
			return fmt.Errorf("auth.client_id is required for the google transport")
		}
	case TransportRelay:
		if c.Remote.Endpoint == "" {
			return fmt.Errorf("remote.endpoint is required for the relay transport")
		}
	default:
		return fmt.Errorf("unknown remote.transport %q", c.Remote.Transport)
	}

	switch c.Audio.Backend {
	case AudioBackendMiniaudio, AudioBackendPortaudio:
	default:
		return fmt.Errorf("unknown audio.backend %q", c.Audio.Backend)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}

	return nil
}

// Settings maps the file onto the orchestrator's settings.
func (c *Config) Settings() orchestration.Settings {
	return orchestration.Settings{
		Language:                         c.Language,
		ForceNewConversation:             c.ForceNewConversation,
		EnableAudioOutput:                *c.EnableAudioOutput,
		EnableAudioOutputForTypedQueries: c.EnableAudioOutputForTypedQueries,
		EnableVoiceFollowUp:              c.EnableMicOnImmediateResponse,
		MicrophoneDevice:                 c.MicrophoneSource,
		RespondToHotword:                 *c.RespondToHotword,
		Volume:                           c.Volume,
		RetryDelay:                       c.RetryDelay,
	}
}

// Schema returns the JSON schema of the configuration file, keyed by the
// YAML field names.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		DoNotReference:             true,
		FieldNameTag:               "yaml",
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(&Config{})
	schema.Title = "ema-assistant configuration"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling config schema: %w", err)
	}
	return data, nil
}
