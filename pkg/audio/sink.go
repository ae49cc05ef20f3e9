package audio

import (
	"context"
	"io"
)

// Sink renders audio to a speaker or other output device.
type Sink interface {
	// Start begins audio playback. After Start, audio can be written via
	// Write.
	Start(ctx context.Context) error

	// Stop halts audio playback. It is safe to call Stop multiple times.
	Stop() error

	// Write hands one PCM frame to the output device in arrival order.
	// It may block briefly while the device buffer is full.
	Write(ctx context.Context, pcm []byte) error

	// Clear discards all buffered audio immediately.
	Clear() error

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name (e.g. "oto", "mock").
	Name() string

	// Close releases all resources. After Close the sink cannot be
	// restarted.
	io.Closer
}

// SinkStats contains statistics about the audio sink.
type SinkStats struct {
	// FramesWritten is the total number of frames rendered.
	FramesWritten int64 `json:"frames_written"`

	// BytesWritten is the total PCM bytes rendered.
	BytesWritten int64 `json:"bytes_written"`

	// Running indicates if the sink is currently playing.
	Running bool `json:"running"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// SinkWithStats extends Sink with statistics.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}
