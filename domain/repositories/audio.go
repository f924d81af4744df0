package repositories

import (
	"context"
	"time"
)

// InputConfig represents microphone configuration
type InputConfig struct {
	SampleRate       int  `json:"sample_rate"`
	Channels         int  `json:"channels"`
	FramesPerBuffer  int  `json:"frames_per_buffer"`
	EchoCancellation bool `json:"echo_cancellation"`
	NoiseSuppression bool `json:"noise_suppression"`
}

// InputDevice acquires exclusive microphone handles
type InputDevice interface {
	Open(ctx context.Context, config InputConfig) (InputStream, error)
}

// InputStream is an open microphone handle
type InputStream interface {
	// Read blocks until len(buf) samples have been captured.
	Read(buf []float32) error
	Close() error
}

// SegmentHandle identifies one scheduled output segment
type SegmentHandle uint64

// OutputDevice plays scheduled PCM segments against its own clock
type OutputDevice interface {
	// Now returns the current position of the output clock.
	Now() time.Duration
	// Schedule plays samples starting at the given clock position and calls
	// ended once the segment has finished or been stopped. ended is never
	// invoked synchronously from Schedule or Stop.
	Schedule(samples []float32, at time.Duration, ended func(SegmentHandle)) (SegmentHandle, error)
	Stop(handle SegmentHandle)
	Close() error
}

// AudioSystem hands out the devices owned by one live session
type AudioSystem interface {
	OpenOutput(ctx context.Context, sampleRate int) (OutputDevice, error)
	Input() InputDevice
}
