package audio

import (
	"errors"
	"fmt"
)

// Sentinel errors for the audio package.
var (
	// ErrDeviceBusy indicates capture was started while already active.
	ErrDeviceBusy = errors.New("audio: capture already active")

	// ErrClosed indicates the source or sink was already closed.
	ErrClosed = errors.New("audio: device closed")

	// ErrPlaybackQueueFull indicates the playback queue is saturated,
	// usually because the output device stalled.
	ErrPlaybackQueueFull = errors.New("audio: playback queue full")

	// ErrSourceHalted indicates the capture source stopped delivering
	// frames on its own, without StopCapture being called.
	ErrSourceHalted = errors.New("audio: capture source halted")
)

// DeviceError reports a device configuration or I/O failure. It is
// delivered through the pipeline's error callback, never propagated
// across the real-time capture/render boundary.
type DeviceError struct {
	// Op is the operation that failed ("capture", "playback", "init").
	Op string

	// Backend is the audio backend name.
	Backend string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio: %s %s failed: %v", e.Backend, e.Op, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *DeviceError) Unwrap() error {
	return e.Cause
}
