// Package config provides runtime configuration for go-voicelink.
// Configuration is loaded from an optional YAML file and can be
// overridden with environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voicelink/go-voicelink/pkg/audio"
	"github.com/voicelink/go-voicelink/pkg/connection"
)

// Config is the top-level runtime configuration.
type Config struct {
	// Endpoint is the ws:// or wss:// URL of the speech backend.
	Endpoint string `yaml:"endpoint"`

	// ConnectTimeout bounds the WebSocket handshake.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// Reconnect controls automatic reconnection behavior.
	Reconnect connection.ReconnectPolicy `yaml:"reconnect"`

	// Audio configures the capture/playback devices.
	Audio audio.Config `yaml:"audio"`

	// StatusAddr is the listen address for the local status server.
	// Empty disables the server.
	StatusAddr string `yaml:"status_addr"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		Reconnect:      connection.DefaultReconnectPolicy(),
		Audio:          audio.DefaultConfig(),
		StatusAddr:     "127.0.0.1:8089",
		LogLevel:       "info",
	}
}

// Load reads configuration from path (if non-empty) and applies
// environment overrides. An unreadable or malformed file is an error,
// never a silent fallback to defaults. Callers run Validate once every
// override source (command-line flags included) has been applied.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides fields from VOICELINK_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("VOICELINK_ENDPOINT"); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv("VOICELINK_STATUS_ADDR"); v != "" {
		c.StatusAddr = v
	}
	if v := os.Getenv("VOICELINK_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("VOICELINK_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(v); err == nil {
			c.Audio.SampleRate = rate
		}
	}
	if v := os.Getenv("VOICELINK_AUDIO_BACKEND"); v != "" {
		c.Audio.Backend = audio.Backend(v)
	}
}

// Validate checks the configuration, failing fast on misconfiguration
// rather than silently defaulting.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("config: endpoint is required")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("config: invalid endpoint %q: %w", c.Endpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("config: endpoint scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("config: endpoint %q has no host", c.Endpoint)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("config: connect_timeout must be positive, got %v", c.ConnectTimeout)
	}
	if err := c.Reconnect.Validate(); err != nil {
		return err
	}
	if err := c.Audio.Validate(); err != nil {
		return err
	}
	return nil
}
