package vad

import "github.com/XMaster-Denis/mock-tech-interview-ai/pkg/audio"

// EventType classifies the discrete events emitted by a [Detector].
type EventType int

const (
	// EventSpeechStarted indicates the level crossed the detection
	// threshold upward.
	EventSpeechStarted EventType = iota

	// EventSpeechEnded indicates a speech segment was confirmed and
	// trimmed. Event.Segment carries the captured audio.
	EventSpeechEnded

	// EventSilence indicates a candidate segment was discarded (too short
	// or too quiet) and the detector re-armed listening.
	EventSilence

	// EventCalibrated indicates the noise analyzer finished its calibration
	// run. Event.Calibration carries the result.
	EventCalibrated

	// EventError indicates a capture failure. Event.Err carries the cause.
	EventError
)

// String returns the human-readable name of the event type.
func (t EventType) String() string {
	switch t {
	case EventSpeechStarted:
		return "SPEECH_STARTED"
	case EventSpeechEnded:
		return "SPEECH_ENDED"
	case EventSilence:
		return "SILENCE"
	case EventCalibrated:
		return "CALIBRATED"
	case EventError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is one discrete voice event. Exactly one of the payload fields is
// set, matching Type.
type Event struct {
	Type EventType

	// Segment is set for EventSpeechEnded.
	Segment *audio.Segment

	// Calibration is set for EventCalibrated.
	Calibration *CalibrationResult

	// Err is set for EventError.
	Err error
}
