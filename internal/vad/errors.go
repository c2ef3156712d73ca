package vad

import "errors"

// ErrCaptureLost is emitted (wrapped in an [EventError]) when the capture
// stream closes while a speech segment is being recorded.
var ErrCaptureLost = errors.New("vad: capture stream closed mid-utterance")
