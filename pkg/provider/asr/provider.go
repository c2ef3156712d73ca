// Package asr defines the transcription provider contract.
//
// Transcription is a batch operation on one trimmed speech segment; the
// pipeline never streams partial audio. The call is cancellable — the
// orchestrator aborts a pending transcription the instant the user starts
// speaking again — so implementations must honour ctx promptly.
//
// Implementations must be safe for concurrent use.
package asr

import (
	"context"
	"errors"
)

// ErrTranscriptionFailed indicates a non-cancellation transcription failure.
// Cancellation is reported via [context.Canceled] so callers can treat the
// two cases differently: cancellations are silently recoverable, failures
// are surfaced to the user.
var ErrTranscriptionFailed = errors.New("asr: transcription failed")

// Request describes one transcription call.
type Request struct {
	// Audio is the trimmed segment's raw PCM.
	Audio []byte

	// Language is the expected BCP-47 language code (e.g., "en", "ru").
	Language string

	// Prompt biases recognition toward domain vocabulary — the orchestrator
	// passes a technical-terminology primer per interview language.
	Prompt string

	// Temperature controls decoder randomness. The orchestrator uses a low
	// value for deterministic technical terms.
	Temperature float64
}

// Result is the transcription outcome.
type Result struct {
	Text string
}

// Provider is the transcription backend contract.
type Provider interface {
	// Transcribe converts one speech segment to text. Returns
	// [context.Canceled] (wrapped) when ctx is cancelled mid-call and
	// [ErrTranscriptionFailed] (wrapped) on any other failure.
	Transcribe(ctx context.Context, req Request) (Result, error)
}

// IsCancelled reports whether err represents a cancelled transcription.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
