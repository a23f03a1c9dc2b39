// Package config provides configuration management for clauderonctl.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/clauderon/clauderon-go/console"
	"github.com/clauderon/clauderon-go/events"
	"github.com/clauderon/clauderon-go/transport"
)

// ErrConfigNotFound indicates no usable config file was found.
var ErrConfigNotFound = errors.New("config not found")

// Config matches the structure of clauderon.json.
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server" mapstructure:"server" validate:"required"`
	Events  EventsConfig  `json:"events" yaml:"events" mapstructure:"events"`
	Attach  AttachConfig  `json:"attach" yaml:"attach" mapstructure:"attach"`
	Logging LoggingConfig `json:"logging" yaml:"logging" mapstructure:"logging"`
}

type ServerConfig struct {
	// URL is the Clauderon server address; http, https, ws and wss
	// schemes are accepted.
	URL                string `json:"url" yaml:"url" mapstructure:"url" validate:"required,url"`
	HandshakeTimeoutMs int    `json:"handshakeTimeoutMs" yaml:"handshakeTimeoutMs" mapstructure:"handshakeTimeoutMs" validate:"gte=0"`
	HealthTimeoutMs    int    `json:"healthTimeoutMs" yaml:"healthTimeoutMs" mapstructure:"healthTimeoutMs" validate:"gte=0"`
}

type EventsConfig struct {
	ReconnectDelayMs int  `json:"reconnectDelayMs" yaml:"reconnectDelayMs" mapstructure:"reconnectDelayMs" validate:"gte=0"`
	AutoReconnect    bool `json:"autoReconnect" yaml:"autoReconnect" mapstructure:"autoReconnect"`
}

type AttachConfig struct {
	// ResizePerSecond throttles how often window size changes are
	// forwarded to the session.
	ResizePerSecond int `json:"resizePerSecond" yaml:"resizePerSecond" mapstructure:"resizePerSecond" validate:"gte=1"`
}

type LoggingConfig struct {
	Level   string `json:"level" yaml:"level" mapstructure:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Verbose bool   `json:"verbose" yaml:"verbose" mapstructure:"verbose"`
}

// StateDir returns the clauderonctl state directory path.
// Can be overridden via CLAUDERON_STATE_DIR environment variable.
// Default: ~/.clauderon
func StateDir() string {
	if override := strings.TrimSpace(os.Getenv("CLAUDERON_STATE_DIR")); override != "" {
		return expandPath(override)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".clauderon"
	}
	return filepath.Join(home, ".clauderon")
}

// ConfigPath returns the default config file path.
// Can be overridden via CLAUDERON_CONFIG_PATH environment variable.
// Default: ~/.clauderon/clauderon.json
func ConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("CLAUDERON_CONFIG_PATH")); override != "" {
		return expandPath(override)
	}
	return filepath.Join(StateDir(), "clauderon.json")
}

// RecentSessionsPath returns where the recent-session store lives.
func RecentSessionsPath() string {
	return filepath.Join(StateDir(), "recent.json")
}

// expandPath expands ~ to home directory and resolves the path.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = strings.Replace(path, "~", home, 1)
		}
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}

// LoadViper loads the configuration into a Viper instance.
func LoadViper() (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	if configPath := strings.TrimSpace(os.Getenv("CLAUDERON_CONFIG_PATH")); configPath != "" {
		expandedPath := expandPath(configPath)
		fileInfo, err := os.Stat(expandedPath)
		if err == nil && fileInfo.IsDir() {
			v.SetConfigName("clauderon")
			v.AddConfigPath(expandedPath)
		} else {
			v.SetConfigFile(expandedPath)
		}
	} else {
		v.SetConfigName("clauderon")
		v.AddConfigPath(StateDir())
	}

	// Env vars - use CLAUDERON_ prefix, e.g. CLAUDERON_SERVER_URL.
	v.SetEnvPrefix("CLAUDERON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, ErrConfigNotFound
		}
		if _, ok := err.(*os.PathError); ok {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	return v, nil
}

// Load reads the configuration from file or environment variables.
func Load() (*Config, error) {
	v, err := LoadViper()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Allow ${VAR} references in the server URL, e.g. for port forwards.
	cfg.Server.URL = os.ExpandEnv(cfg.Server.URL)

	return &cfg, nil
}

// LoadOrDefault loads the configuration, falling back to built-in
// defaults when no config file exists.
func LoadOrDefault() (*Config, error) {
	cfg, err := Load()
	if errors.Is(err, ErrConfigNotFound) {
		return Default(), nil
	}
	return cfg, err
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.url", transport.DefaultBaseURL)
	v.SetDefault("server.handshakeTimeoutMs", 10000)
	v.SetDefault("server.healthTimeoutMs", 2000)

	v.SetDefault("events.reconnectDelayMs", 1000)
	v.SetDefault("events.autoReconnect", true)

	v.SetDefault("attach.resizePerSecond", 4)

	v.SetDefault("logging.level", "info")
}

// Save saves the configuration to the config file.
// Uses ConfigPath() for consistency with Load(). Only JSON format is
// supported.
func Save(cfg *Config) error {
	configPath := ConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

var validate = validator.New()

// Validate checks for semantic errors in the config.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ConsoleOptions maps the config onto console client options.
func (c *Config) ConsoleOptions() console.Options {
	return console.Options{
		BaseURL:          c.Server.URL,
		HandshakeTimeout: time.Duration(c.Server.HandshakeTimeoutMs) * time.Millisecond,
	}
}

// EventsOptions maps the config onto events client options.
func (c *Config) EventsOptions() events.Options {
	return events.Options{
		BaseURL:          c.Server.URL,
		HandshakeTimeout: time.Duration(c.Server.HandshakeTimeoutMs) * time.Millisecond,
		ReconnectDelay:   time.Duration(c.Events.ReconnectDelayMs) * time.Millisecond,
		DisableReconnect: !c.Events.AutoReconnect,
	}
}

// HealthTimeout returns the probe timeout as a duration.
func (c *Config) HealthTimeout() time.Duration {
	return time.Duration(c.Server.HealthTimeoutMs) * time.Millisecond
}
