package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when CONFIG_PATH is not set. A missing default file is not an error.
const DefaultPath = "config.yaml"

// Config is the server configuration. Values come from defaults, then the
// YAML file, then environment variables.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Rooms  RoomsConfig  `yaml:"rooms"`
	NATS   NATSConfig   `yaml:"nats"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `yaml:"port" env:"PORT"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// RoomsConfig holds room lifecycle settings.
type RoomsConfig struct {
	CleanupGracePeriod time.Duration `yaml:"cleanup_grace_period" env:"ROOM_CLEANUP_GRACE_PERIOD"`
	TickInterval       time.Duration `yaml:"tick_interval" env:"TIMER_TICK_INTERVAL"`
}

// NATSConfig configures the optional event mirror. An empty URL disables it.
type NATSConfig struct {
	URL           string        `yaml:"url" env:"NATS_URL"`
	SubjectPrefix string        `yaml:"subject_prefix" env:"NATS_SUBJECT_PREFIX"`
	MaxReconnects int           `yaml:"max_reconnects" env:"NATS_MAX_RECONNECTS"`
	ReconnectWait time.Duration `yaml:"reconnect_wait" env:"NATS_RECONNECT_WAIT"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level   string `yaml:"level" env:"LOG_LEVEL"`
	Console bool   `yaml:"console" env:"LOG_CONSOLE"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "3000",
			AllowedOrigins:  []string{"*"},
			ReadTimeout:     10 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Rooms: RoomsConfig{
			CleanupGracePeriod: 5 * time.Minute,
			TickInterval:       time.Second,
		},
		NATS: NATSConfig{
			SubjectPrefix: "poker.events",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path and the
// environment. An empty path means DefaultPath, which may be absent.
func Load(path string) (Config, error) {
	cfg := Default()

	optional := path == ""
	if optional {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.Rooms.CleanupGracePeriod <= 0 {
		return fmt.Errorf("cleanup grace period must be positive, got %s", c.Rooms.CleanupGracePeriod)
	}
	if c.Rooms.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.Rooms.TickInterval)
	}
	if _, err := c.Log.ZerologLevel(); err != nil {
		return err
	}
	return nil
}

// ZerologLevel parses the configured level.
func (l LogConfig) ZerologLevel() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(l.Level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}
	return level, nil
}
