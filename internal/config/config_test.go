package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voicelink/go-voicelink/pkg/audio"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want 10s", cfg.ConnectTimeout)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", cfg.Audio.SampleRate)
	}
	if !cfg.Reconnect.AutoReconnect {
		t.Error("AutoReconnect should default to true")
	}

	// Defaults lack an endpoint on purpose: it must be supplied
	if err := cfg.Validate(); err == nil {
		t.Error("Default config should not validate without endpoint")
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicelink.yaml")
	data := `
endpoint: wss://speech.example.com/stream
connect_timeout: 5s
reconnect:
  max_attempts: 5
  auto_reconnect: true
  base_delay: 500ms
  max_delay: 10s
audio:
  backend: mock
  sample_rate: 24000
  channels: 1
  frame_duration: 20ms
log_level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Endpoint != "wss://speech.example.com/stream" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	if cfg.ConnectTimeout != 5*time.Second {
		t.Errorf("ConnectTimeout = %v, want 5s", cfg.ConnectTimeout)
	}
	if cfg.Reconnect.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Reconnect.MaxAttempts)
	}
	if cfg.Reconnect.BaseDelay != 500*time.Millisecond {
		t.Errorf("BaseDelay = %v, want 500ms", cfg.Reconnect.BaseDelay)
	}
	if cfg.Audio.Backend != audio.BackendMock {
		t.Errorf("Backend = %q, want mock", cfg.Audio.Backend)
	}
	if cfg.Audio.SampleRate != 24000 {
		t.Errorf("SampleRate = %d, want 24000", cfg.Audio.SampleRate)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	// A broken file the caller asked for is an error, never a silent
	// fall back to defaults.
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("endpoint: [unclosed"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestLoad_DefersValidation(t *testing.T) {
	// Load leaves validation to the caller: flags may still complete
	// the config after file and env have been applied.
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected Validate to reject config without endpoint")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("VOICELINK_ENDPOINT", "ws://localhost:9000/stream")
	t.Setenv("VOICELINK_SAMPLE_RATE", "48000")
	t.Setenv("VOICELINK_AUDIO_BACKEND", "mock")
	t.Setenv("VOICELINK_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Endpoint != "ws://localhost:9000/stream" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	if cfg.Audio.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Backend != audio.BackendMock {
		t.Errorf("Backend = %q, want mock", cfg.Audio.Backend)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
}

func TestValidate_Endpoint(t *testing.T) {
	cases := []struct {
		name     string
		endpoint string
		ok       bool
	}{
		{"wss", "wss://example.com/stream", true},
		{"ws", "ws://10.0.0.5:8080/", true},
		{"http scheme", "http://example.com/stream", false},
		{"empty", "", false},
		{"no host", "ws:///stream", false},
		{"garbage", "::::", false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := Default()
			cfg.Endpoint = c.endpoint
			err := cfg.Validate()
			if c.ok && err != nil {
				t.Errorf("Validate(%q) = %v, want nil", c.endpoint, err)
			}
			if !c.ok && err == nil {
				t.Errorf("Validate(%q) = nil, want error", c.endpoint)
			}
		})
	}
}
