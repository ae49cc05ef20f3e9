// Package audio provides the duplex audio pipeline: microphone capture as
// a continuous sequence of fixed-size PCM frames, and strictly ordered
// playback of received frames.
//
// Two backends are supported:
//   - device: real hardware via miniaudio (capture) and oto (playback)
//   - mock:   deterministic synthetic audio for CI/testing
package audio

import (
	"fmt"
	"time"
)

// Backend selects the audio device implementation.
type Backend string

const (
	// BackendAuto picks the device backend, falling back to mock when no
	// hardware is available.
	BackendAuto Backend = "auto"
	// BackendDevice uses real capture/playback hardware.
	BackendDevice Backend = "device"
	// BackendMock uses synthetic audio for testing.
	BackendMock Backend = "mock"
)

// Route selects the playback output.
type Route string

const (
	// RouteSpeaker plays through the default loudspeaker.
	RouteSpeaker Route = "speaker"
	// RouteHeadset plays through a headset/earpiece device if present.
	RouteHeadset Route = "headset"
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	Channels int `yaml:"channels" json:"channels"`

	// FrameDuration is the length of one capture/playback frame.
	FrameDuration time.Duration `yaml:"frame_duration" json:"frame_duration"`

	// Device is the platform-specific capture device identifier.
	// Empty selects the system default.
	Device string `yaml:"device" json:"device"`

	// Route selects the playback output.
	Route Route `yaml:"route" json:"route"`
}

// DefaultConfig returns a Config with sensible defaults: 16kHz mono
// PCM16 in 20ms frames through the speaker.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendAuto,
		SampleRate:    16000,
		Channels:      1,
		FrameDuration: 20 * time.Millisecond,
		Route:         RouteSpeaker,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("audio: sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("audio: channels must be positive, got %d", c.Channels)
	}
	if c.FrameDuration <= 0 {
		return fmt.Errorf("audio: frame_duration must be positive, got %v", c.FrameDuration)
	}
	switch c.Route {
	case "", RouteSpeaker, RouteHeadset:
	default:
		return fmt.Errorf("audio: unknown route %q", c.Route)
	}
	return nil
}

// FrameSamples returns the number of samples per frame per channel.
func (c *Config) FrameSamples() int {
	return int(float64(c.SampleRate) * c.FrameDuration.Seconds())
}

// FrameBytes returns the size of one frame in bytes (PCM16 samples).
func (c *Config) FrameBytes() int {
	return c.FrameSamples() * c.Channels * 2
}
