package audio

import "time"

// Frame is one fixed-size buffer of raw PCM16 little-endian samples plus
// its ordinal position in the capture or playback stream. Frames are
// immutable after creation and owned by whichever stage currently holds
// them.
type Frame struct {
	// Data is the raw PCM16 payload. Never mutated after creation.
	Data []byte

	// Seq is the frame's ordinal in its stream, starting at 0.
	Seq uint64
}

// Duration returns the play time of the frame for the given format.
func (f Frame) Duration(sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / channels
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
