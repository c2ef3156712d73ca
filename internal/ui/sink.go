// Package ui defines the notification channel between the voice core and
// the front-end. The core pushes discrete, ordered notifications — user
// messages, assistant messages, task-state changes, code payloads, hints,
// and error strings — and makes no assumption about rendering.
package ui

import (
	"sync"
	"time"
)

// Kind classifies a notification.
type Kind string

const (
	// KindUserMessage carries the transcribed user utterance.
	KindUserMessage Kind = "user_message"

	// KindAssistantMessage carries the assistant's spoken text.
	KindAssistantMessage Kind = "assistant_message"

	// KindTaskState carries a task-lifecycle state change.
	KindTaskState Kind = "task_state"

	// KindCode carries a code payload (task statement or code hint).
	KindCode Kind = "code"

	// KindHint carries a text hint payload.
	KindHint Kind = "hint"

	// KindSilenceProgress carries the silence-confirmation fraction while
	// the end-of-speech timer is running.
	KindSilenceProgress Kind = "silence_progress"

	// KindAudioState carries full-duplex state changes for UI indicators.
	KindAudioState Kind = "audio_state"

	// KindWarning carries a non-fatal warning (e.g., noisy environment).
	KindWarning Kind = "warning"

	// KindError carries a user-visible error string.
	KindError Kind = "error"
)

// Notification is one ordered event pushed to the front-end. Seq is a
// strictly increasing sequence number assigned by the sink so clients can
// detect reordering or loss.
type Notification struct {
	Seq       uint64    `json:"seq"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text,omitempty"`
	Progress  float64   `json:"progress,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives notifications from the voice core. Implementations must
// preserve the order of Notify calls per sink and must not block the caller.
type Sink interface {
	Notify(n Notification)
}

// Recorder is a Sink that stores notifications in memory. Used in tests and
// as a no-op default when no front-end is connected.
type Recorder struct {
	mu   sync.Mutex
	seq  uint64
	list []Notification
}

// Notify implements [Sink].
func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	n.Seq = r.seq
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	r.list = append(r.list, n)
}

// All returns a snapshot of every recorded notification in order.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.list))
	copy(out, r.list)
	return out
}

// ByKind returns recorded notifications of one kind, in order.
func (r *Recorder) ByKind(k Kind) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.list {
		if n.Kind == k {
			out = append(out, n)
		}
	}
	return out
}

var _ Sink = (*Recorder)(nil)
