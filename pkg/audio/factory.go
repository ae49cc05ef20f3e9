package audio

import (
	"fmt"
	"log/slog"
)

// NewSource creates an audio source for the configured backend. BackendAuto
// tries the real device and falls back to mock when no hardware is
// available (headless CI).
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendDevice:
		return NewCaptureDevice(cfg, logger)
	case BackendAuto, "":
		src, err := NewCaptureDevice(cfg, logger)
		if err != nil {
			logger.Warn("no capture hardware, using mock source", "error", err)
			return NewMockSource(cfg, logger), nil
		}
		return src, nil
	default:
		return nil, fmt.Errorf("audio: unsupported backend %q", cfg.Backend)
	}
}

// NewSink creates an audio sink for the configured backend.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendMock:
		return NewMockSink(cfg, logger), nil
	case BackendDevice:
		return NewPlaybackDevice(cfg, logger)
	case BackendAuto, "":
		sink, err := NewPlaybackDevice(cfg, logger)
		if err != nil {
			logger.Warn("no playback hardware, using mock sink", "error", err)
			return NewMockSink(cfg, logger), nil
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("audio: unsupported backend %q", cfg.Backend)
	}
}
