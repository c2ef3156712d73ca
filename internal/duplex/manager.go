// Package duplex implements the full-duplex audio coordinator: the single
// owner of the session's audio state, arbitrating between microphone
// listening and speech playback.
//
// Playback and capture run concurrently. The manager's one job is deciding
// who wins when they collide: user speech detected during interruptible
// playback stops the playback immediately.
//
// The manager is an actor: one run-loop goroutine consumes detector events,
// playback completions, and commands from a single channel select, so audio
// state has exactly one mutator and needs no lock beyond the state accessor.
package duplex

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/XMaster-Denis/mock-tech-interview-ai/internal/observe"
	"github.com/XMaster-Denis/mock-tech-interview-ai/internal/vad"
	"github.com/XMaster-Denis/mock-tech-interview-ai/pkg/audio"
)

// State is the unified audio state of the session.
type State int

const (
	// StateIdle means neither listening nor speaking.
	StateIdle State = iota

	// StateListening means the microphone loop is active.
	StateListening

	// StateProcessing means a captured segment is being handled by the
	// conversation layer; the microphone stays hot.
	StateProcessing

	// StateSpeaking means synthesized audio is playing.
	StateSpeaking

	// StateInterrupted is the transient state between user speech stopping
	// an interruptible playback and the playback confirming it halted.
	StateInterrupted
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateProcessing:
		return "PROCESSING"
	case StateSpeaking:
		return "SPEAKING"
	case StateInterrupted:
		return "INTERRUPTED"
	default:
		return "UNKNOWN"
	}
}

// Callbacks are the upward event hooks. All callbacks run on the manager's
// run-loop goroutine and must not block; spawn a goroutine for long work.
// Nil callbacks are skipped.
type Callbacks struct {
	// OnUserSpeechStarted fires for every detected speech onset, including
	// during playback (the conversation layer uses it to cancel a pending
	// transcription).
	OnUserSpeechStarted func()

	// OnUserSpeechEnded fires for confirmed speech segments, filtered: a
	// segment that ends while the assistant is speaking is dropped to
	// prevent feedback loops from the assistant's own voice.
	OnUserSpeechEnded func(audio.Segment)

	// OnTTSCompleted fires when playback ran to its natural end.
	OnTTSCompleted func()

	// OnTTSCancelled fires when playback was interrupted by user speech or
	// failed to start; exactly one of OnTTSCompleted/OnTTSCancelled fires
	// per Speak call.
	OnTTSCancelled func()

	// OnCalibrated fires once when the noise analyzer finishes calibrating.
	OnCalibrated func(vad.CalibrationResult)

	// OnStateChange fires after every audio-state transition.
	OnStateChange func(State)
}

// command is one message on the manager's command channel.
type command struct {
	kind             commandKind
	clip             []byte
	canBeInterrupted bool
	skipSpeechCheck  bool
}

type commandKind int

const (
	cmdStartListening commandKind = iota
	cmdStopListening
	cmdSpeak
	cmdResumeListening
)

// Manager composes a [vad.Detector] with a playback engine behind one
// unified audio state machine.
type Manager struct {
	detector *vad.Detector
	player   audio.Player
	cb       Callbacks
	metrics  *observe.Metrics

	cmds chan command

	mu    sync.Mutex
	state State

	// Run-loop-goroutine-only playback bookkeeping.
	playback      audio.Playback
	interruptible bool
	interrupted   bool
}

// New creates a Manager in the idle state. metrics may be nil in tests.
func New(detector *vad.Detector, player audio.Player, cb Callbacks, metrics *observe.Metrics) *Manager {
	return &Manager{
		detector: detector,
		player:   player,
		cb:       cb,
		metrics:  metrics,
		cmds:     make(chan command, 16),
		state:    StateIdle,
	}
}

// State returns the current audio state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StartListening arms the voice detector and enters the listening state.
func (m *Manager) StartListening() { m.cmds <- command{kind: cmdStartListening} }

// StopListening suspends detection, cancels any in-flight silence timer,
// and returns to idle.
func (m *Manager) StopListening() { m.cmds <- command{kind: cmdStopListening} }

// ResumeListening returns from processing to listening without touching the
// detector, used when a turn is aborted before any playback.
func (m *Manager) ResumeListening() { m.cmds <- command{kind: cmdResumeListening} }

// Speak begins playback of clip. When canBeInterrupted is set and
// skipSpeechCheck is not, the first detected speech onset during playback
// stops it and fires OnTTSCancelled instead of OnTTSCompleted.
// skipSpeechCheck is used for the opening greeting, which must not be
// interruptible.
func (m *Manager) Speak(clip []byte, canBeInterrupted, skipSpeechCheck bool) {
	m.cmds <- command{
		kind:             cmdSpeak,
		clip:             clip,
		canBeInterrupted: canBeInterrupted,
		skipSpeechCheck:  skipSpeechCheck,
	}
}

// Run executes the manager's event loop until ctx is cancelled. Exactly one
// Run per Manager.
func (m *Manager) Run(ctx context.Context) error {
	for {
		// Only arm the playback-done case while a clip is active.
		var doneCh <-chan error
		if m.playback != nil {
			doneCh = m.playback.Done()
		}

		select {
		case <-ctx.Done():
			if m.playback != nil {
				m.playback.Stop()
			}
			return ctx.Err()

		case cmd := <-m.cmds:
			m.handleCommand(ctx, cmd)

		case ev := <-m.detector.Events():
			m.handleVoiceEvent(ev)

		case err := <-doneCh:
			m.playbackFinished(err)
		}
	}
}

// handleCommand processes one command on the run-loop goroutine.
func (m *Manager) handleCommand(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdStartListening:
		m.detector.Reset()
		m.detector.Resume()
		m.setState(StateListening)

	case cmdStopListening:
		m.detector.Reset()
		m.detector.Pause()
		if m.playback != nil {
			m.playback.Stop()
		}
		m.setState(StateIdle)

	case cmdResumeListening:
		if m.State() == StateProcessing {
			m.setState(StateListening)
		}

	case cmdSpeak:
		if m.playback != nil {
			// One clip at a time: a new Speak supersedes the active one.
			m.playback.Stop()
		}
		pb, err := m.player.Play(ctx, cmd.clip)
		if err != nil {
			slog.Error("playback start failed", "err", err)
			m.setState(StateListening)
			if m.cb.OnTTSCancelled != nil {
				m.cb.OnTTSCancelled()
			}
			return
		}
		m.playback = pb
		m.interruptible = cmd.canBeInterrupted && !cmd.skipSpeechCheck
		m.interrupted = false
		m.setState(StateSpeaking)
	}
}

// handleVoiceEvent processes one detector event on the run-loop goroutine.
func (m *Manager) handleVoiceEvent(ev vad.Event) {
	switch ev.Type {
	case vad.EventSpeechStarted:
		if m.State() == StateSpeaking && m.playback != nil && m.interruptible {
			// Interruption precedence: user speech beats playback.
			m.interrupted = true
			m.setState(StateInterrupted)
			m.playback.Stop()
		}
		if m.cb.OnUserSpeechStarted != nil {
			m.cb.OnUserSpeechStarted()
		}

	case vad.EventSpeechEnded:
		switch m.State() {
		case StateSpeaking, StateInterrupted:
			// The assistant is (still) audible; this segment is most
			// likely its own voice. Drop it.
			slog.Debug("dropping speech segment captured during playback")
			return
		}
		m.setState(StateProcessing)
		if m.cb.OnUserSpeechEnded != nil && ev.Segment != nil {
			m.cb.OnUserSpeechEnded(*ev.Segment)
		}

	case vad.EventSilence:
		// Rejected candidate; detector already re-armed.

	case vad.EventCalibrated:
		if m.cb.OnCalibrated != nil && ev.Calibration != nil {
			m.cb.OnCalibrated(*ev.Calibration)
		}

	case vad.EventError:
		slog.Error("voice detector error", "err", ev.Err)
	}
}

// playbackFinished resolves the active clip: natural completion fires
// OnTTSCompleted, interruption or stop fires OnTTSCancelled. Either way the
// session returns to listening.
func (m *Manager) playbackFinished(err error) {
	interrupted := m.interrupted
	m.playback = nil
	m.interruptible = false
	m.interrupted = false

	m.setState(StateListening)

	switch {
	case interrupted || errors.Is(err, context.Canceled):
		if m.metrics != nil && interrupted {
			m.metrics.Interruptions.Add(context.Background(), 1)
		}
		if m.cb.OnTTSCancelled != nil {
			m.cb.OnTTSCancelled()
		}
	case err != nil:
		slog.Error("playback failed", "err", err)
		if m.cb.OnTTSCancelled != nil {
			m.cb.OnTTSCancelled()
		}
	default:
		if m.cb.OnTTSCompleted != nil {
			m.cb.OnTTSCompleted()
		}
	}
}

// setState records a transition and notifies the state-change hook.
func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()

	if prev != s && m.cb.OnStateChange != nil {
		m.cb.OnStateChange(s)
	}
}
