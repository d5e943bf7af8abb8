package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/scribe/internal/processing"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Backend    BackendConfig     `yaml:"backend"`
	Session    SessionConfig     `yaml:"session"`
	Processing ProcessingConfig  `yaml:"processing"`
	Capture    CaptureConfig     `yaml:"capture"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return c.Processing.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds the local UI server configuration.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// BackendConfig points at the notes REST service.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
}

// Validate validates the backend configuration.
func (c *BackendConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
	)
}

// SessionConfig holds where the bearer credential is kept.
type SessionConfig struct {
	CredentialPath string `yaml:"credential_path"`
}

// Validate validates the session configuration.
func (c *SessionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CredentialPath, validation.Required),
	)
}

// ProcessingConfig tunes PDF and audio submissions.
//
// Timeout bounds one upload including the backend's processing time; zero
// disables it. DisplayDelay is how long a success stays on screen before the
// UI returns to the notes list.
type ProcessingConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	DisplayDelay time.Duration `yaml:"display_delay"`
}

// Validate validates the processing configuration.
func (c *ProcessingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.DisplayDelay, validation.Min(time.Duration(0))),
	)
}

// CaptureConfig is the external command used to record audio. It must write
// WebM audio to stdout. An empty command disables recording.
type CaptureConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Enabled reports whether recording is configured.
func (c *CaptureConfig) Enabled() bool {
	return c.Command != ""
}

// DefaultCredentialPath is <user config dir>/scribe/credential, or a file in
// the working directory when no config dir is known.
func DefaultCredentialPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".scribe-credential"
	}
	return filepath.Join(dir, "scribe", "credential")
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Host: "127.0.0.1",
				Port: 8080,
			},
		},
		Backend: BackendConfig{
			BaseURL: "http://127.0.0.1:5000",
		},
		Session: SessionConfig{
			CredentialPath: DefaultCredentialPath(),
		},
		Processing: ProcessingConfig{
			Timeout:      processing.DefaultTimeout,
			DisplayDelay: processing.DefaultDisplayDelay,
		},
		Capture: CaptureConfig{
			Command: "ffmpeg",
			Args: []string{
				"-hide_banner", "-loglevel", "error",
				"-f", "pulse", "-i", "default",
				"-c:a", "libopus", "-f", "webm", "pipe:1",
			},
		},
	}
}
