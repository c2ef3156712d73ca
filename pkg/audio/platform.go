// Package audio defines the types and device interfaces for microphone
// capture and speech playback within the interview voice pipeline.
//
// The two primary abstractions are:
//
//   - [CaptureDevice] — continuously samples the microphone at a fixed
//     cadence and delivers [Sample] values over a channel.
//   - [Player] — plays back a synthesized audio clip and exposes a handle
//     for awaiting completion or stopping playback mid-clip.
//
// Implementations wrap platform audio stacks (CoreAudio, ALSA, a browser
// bridge, …). The interfaces are narrow so the voice detector and the
// full-duplex manager stay decoupled from device details. Capture and
// playback may run concurrently; implementations must tolerate
// simultaneous use.
package audio

import "context"

// CaptureDevice is the entry point for microphone input.
//
// Implementations must be safe for concurrent use.
type CaptureDevice interface {
	// Start begins sampling and returns a channel delivering one [Sample]
	// per capture tick. The channel is closed when ctx is cancelled or the
	// device is closed. Start may be called only once per device.
	Start(ctx context.Context) (<-chan Sample, error)

	// Close releases the underlying device. Safe to call more than once.
	Close() error
}

// Playback is a handle to one in-progress clip started via [Player.Play].
type Playback interface {
	// Done returns a channel that receives exactly one value when playback
	// finishes: nil on natural completion, [context.Canceled] when stopped,
	// or a device error. The channel is closed after the value is delivered.
	Done() <-chan error

	// Stop halts playback immediately. Calling Stop after completion or
	// calling it twice is a no-op.
	Stop()
}

// Player renders synthesized speech to the output device.
//
// Implementations must be safe for concurrent use, though the full-duplex
// manager never starts a second clip while one is active.
type Player interface {
	// Play begins playback of the given audio bytes and returns immediately
	// with a [Playback] handle. The clip format is whatever the speech
	// synthesis provider produced; the player is expected to handle it.
	Play(ctx context.Context, clip []byte) (Playback, error)

	// Close releases the output device. Safe to call more than once.
	Close() error
}
