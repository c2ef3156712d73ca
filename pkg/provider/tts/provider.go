// Package tts defines the speech-synthesis provider contract.
//
// Synthesis is a batch call: one response text in, one playable clip out.
// The full-duplex manager owns playback and interruption; providers only
// produce bytes.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrSynthesisFailed indicates a non-cancellation synthesis failure.
// Cancellation is reported via [context.Canceled].
var ErrSynthesisFailed = errors.New("tts: synthesis failed")

// Voice identifies a synthesis voice.
type Voice struct {
	// ID is the provider-specific voice identifier (e.g., "alloy").
	ID string

	// Speed adjusts speaking rate (0.25–4.0, 0 means provider default).
	Speed float64
}

// Provider is the speech-synthesis backend contract.
type Provider interface {
	// Synthesize renders text to a playable audio clip. Returns
	// [context.Canceled] (wrapped) when ctx is cancelled mid-call and
	// [ErrSynthesisFailed] (wrapped) on any other failure.
	Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error)
}
