package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Staging   StagingConfig     `yaml:"staging"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Recording RecordingConfig   `yaml:"recording"`
	Recovery  RecoveryConfig    `yaml:"recovery"`
	Refine    RefineConfig      `yaml:"refine"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Staging.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Recording.Validate(); err != nil {
		return err
	}
	return c.Recovery.Validate()
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

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StagingConfig holds the path to the staging directory where in-flight
// recordings live until their pipeline completes.
type StagingConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the staging configuration.
func (c *StagingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// RecordingConfig holds capture-session tunables.
type RecordingConfig struct {
	// OwnerID is stamped on every note this instance creates.
	OwnerID string `yaml:"owner_id"`
	// Limit caps a single recording's duration; zero means unlimited.
	Limit time.Duration `yaml:"limit"`
	// UndoGrace is how long a completed refinement stays undoable.
	UndoGrace time.Duration `yaml:"undo_grace"`
}

// Validate validates the recording configuration.
func (c *RecordingConfig) Validate() error {
	if c.Limit < 0 {
		return fmt.Errorf("recording: limit must not be negative")
	}
	if c.UndoGrace < 0 {
		return fmt.Errorf("recording: undo_grace must not be negative")
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.OwnerID, validation.Required),
	)
}

// RecoveryConfig holds orphaned-recording recovery tunables.
type RecoveryConfig struct {
	// ScanInterval throttles staging scans; zero selects the default.
	ScanInterval time.Duration `yaml:"scan_interval"`
	// MaxAge is how long orphaned audio survives before cleanup; zero
	// selects the default.
	MaxAge time.Duration `yaml:"max_age"`
}

// Validate validates the recovery configuration.
func (c *RecoveryConfig) Validate() error {
	if c.ScanInterval < 0 {
		return fmt.Errorf("recovery: scan_interval must not be negative")
	}
	if c.MaxAge < 0 {
		return fmt.Errorf("recovery: max_age must not be negative")
	}
	return nil
}

// RefineConfig holds transcript refinement tunables.
type RefineConfig struct {
	// Timeout bounds a single refinement call; zero selects the default.
	Timeout time.Duration `yaml:"timeout"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Staging: StagingConfig{
			Path: "./staging",
		},
		SQLite: SQLiteConfig{
			Path: "./voxnote.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Recording: RecordingConfig{
			OwnerID:   "local",
			UndoGrace: 15 * time.Second,
		},
	}
}
