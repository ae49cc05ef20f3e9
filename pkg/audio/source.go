package audio

import (
	"context"
	"io"
)

// Source captures audio from a microphone or other input device and
// delivers it as fixed-size PCM16 frames.
type Source interface {
	// Start begins audio capture. After Start, frames are available on
	// the Stream channel at the device's natural cadence.
	Start(ctx context.Context) error

	// Stop halts audio capture and releases the device tap.
	// It is safe to call Stop multiple times.
	Stop() error

	// Stream returns the channel of captured PCM frames. Each slice is
	// exactly Config().FrameBytes() long. The channel is closed when the
	// source is stopped.
	Stream() <-chan []byte

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name (e.g. "miniaudio", "mock").
	Name() string

	// Close releases all resources. After Close the source cannot be
	// restarted.
	io.Closer
}

// SourceStats contains statistics about the audio source.
type SourceStats struct {
	// FramesRead is the total number of frames delivered.
	FramesRead int64 `json:"frames_read"`

	// Overruns is the number of frames dropped because the consumer fell
	// behind the device.
	Overruns int64 `json:"overruns"`

	// Running indicates if the source is currently capturing.
	Running bool `json:"running"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}
