package audio

import "time"

// Sample is a single microphone reading delivered at the capture cadence.
// Level is the normalized loudness of the frame; Frame is the raw PCM the
// level was computed from. Samples are ephemeral — consumed by the voice
// detector on arrival and never stored beyond the active speech buffer.
type Sample struct {
	// Level is the normalized audio level in [0.0, 1.0].
	Level float64

	// Frame is the raw PCM captured during this tick. May be nil when the
	// capture device reports levels only.
	Frame []byte

	// Timestamp marks when this sample was captured, relative to stream start.
	Timestamp time.Duration
}

// Segment is a captured utterance, trimmed to the detected speech window.
// It is produced once per confirmed speech interval and consumed exactly
// once by the transcription step.
type Segment struct {
	// Start is the offset of the speech window relative to stream start.
	Start time.Duration

	// Duration is the length of the trimmed speech window.
	Duration time.Duration

	// PCM is the raw audio of the trimmed window, concatenated frame data
	// in capture order. No re-encoding is performed.
	PCM []byte

	// RMS is the root-mean-square of the normalized levels inside the
	// trimmed window, used for loudness validation.
	RMS float64
}
