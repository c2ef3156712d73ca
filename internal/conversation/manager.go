// Package conversation implements the interview turn engine: it consumes
// confirmed speech segments, drives transcription, intent classification,
// one main chat completion per turn, structured-response validation with
// retry and fallback, the coding-task state machine, and speech synthesis.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/XMaster-Denis/mock-tech-interview-ai/internal/observe"
	"github.com/XMaster-Denis/mock-tech-interview-ai/internal/ui"
	"github.com/XMaster-Denis/mock-tech-interview-ai/pkg/audio"
	"github.com/XMaster-Denis/mock-tech-interview-ai/pkg/provider/asr"
	"github.com/XMaster-Denis/mock-tech-interview-ai/pkg/provider/llm"
	"github.com/XMaster-Denis/mock-tech-interview-ai/pkg/provider/tts"
)

// AudioControl is the slice of the duplex manager the conversation engine
// drives. Satisfied by [duplex.Manager].
type AudioControl interface {
	Speak(clip []byte, canBeInterrupted, skipSpeechCheck bool)
	StartListening()
	StopListening()
	ResumeListening()
}

// Config tunes the turn engine.
type Config struct {
	// MinSegmentDuration is the second-stage duration gate applied to
	// segments the detector already accepted. Segments shorter than this
	// are dropped before transcription.
	MinSegmentDuration time.Duration

	// MinSegmentRMS is the second-stage loudness gate.
	MinSegmentRMS float64

	// Greeting is spoken when the session starts. Empty uses a default.
	Greeting string

	// ContextCapacity bounds the rolling topic and question lists. Zero
	// uses the default of 5.
	ContextCapacity int
}

// DefaultConfig returns the default turn-engine configuration. The segment
// gates sit above the detector's own minimums: the detector filters
// obvious noise, this filters borderline utterances not worth a
// transcription round-trip.
func DefaultConfig() Config {
	return Config{
		MinSegmentDuration: 300 * time.Millisecond,
		MinSegmentRMS:      0.05,
		Greeting:           "Hi! I'm your interviewer today. Tell me a bit about yourself, and when you're ready we'll start with a coding task.",
	}
}

// Manager is the interview turn engine. Wire its Handle* methods into
// [duplex.Callbacks] and call [Manager.Greet] once the audio loop runs.
type Manager struct {
	cfg        Config
	asr        asr.Provider
	chat       llm.Provider
	tts        tts.Provider
	audioCtl   AudioControl
	sink       ui.Sink
	settings   SettingsSource
	classifier *Classifier
	history    *Context
	metrics    *observe.Metrics

	mu               sync.Mutex
	task             Task
	helpLevel        HelpLevel
	lastUser         string
	lastAssistant    string
	transcribeCancel context.CancelFunc
	transcribeGen    uint64
	turnInFlight     bool
	nextTask         *AIResponse
	prefetching      bool
}

// Option configures a [Manager].
type Option func(*Manager)

// WithClassifier replaces the default intent classifier.
func WithClassifier(c *Classifier) Option {
	return func(m *Manager) { m.classifier = c }
}

// WithMetrics attaches session metrics. Without it, nil-safe no-ops apply.
func WithMetrics(mx *observe.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// New creates a Manager. All providers are required; sink and settings
// must be non-nil.
func New(cfg Config, asrP asr.Provider, chatP llm.Provider, ttsP tts.Provider,
	audioCtl AudioControl, sink ui.Sink, settings SettingsSource, opts ...Option) *Manager {
	m := &Manager{
		cfg:        cfg,
		asr:        asrP,
		chat:       chatP,
		tts:        ttsP,
		audioCtl:   audioCtl,
		sink:       sink,
		settings:   settings,
		classifier: NewClassifier(),
		history:    NewContext(cfg.ContextCapacity),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Task returns a snapshot of the active task.
func (m *Manager) Task() Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.task
}

// Greet speaks the opening line. The greeting is never interruptible: it
// plays before calibration-grade trust in the detector exists, so speech
// checking is skipped entirely.
func (m *Manager) Greet(ctx context.Context) {
	s := m.settings.Snapshot()
	text := m.cfg.Greeting

	m.notify(ui.Notification{Kind: ui.KindAssistantMessage, Text: text})
	clip, err := m.synthesize(ctx, text, s)
	if err != nil {
		slog.Error("greeting synthesis failed", "err", err)
		return
	}
	m.audioCtl.Speak(clip, false, true)
}

// HandleSpeechStarted cancels a pending transcription, if any. A chat
// completion already in flight is deliberately left alone: its reply is
// moments away and discarding it wastes a full model round-trip, whereas a
// stale transcription would transcribe audio the user is now superseding.
func (m *Manager) HandleSpeechStarted() {
	m.mu.Lock()
	cancel := m.transcribeCancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// HandleSegment runs one full turn for a confirmed speech segment. It
// returns immediately; the turn runs on its own goroutine.
func (m *Manager) HandleSegment(ctx context.Context, seg audio.Segment) {
	m.mu.Lock()
	if m.turnInFlight && m.transcribeCancel == nil {
		// A reply is already being generated or synthesized; this segment
		// arrived too late to matter.
		m.mu.Unlock()
		slog.Debug("dropping segment, turn already past transcription")
		return
	}
	m.turnInFlight = true
	m.mu.Unlock()

	go m.runTurn(ctx, seg)
}

// HandleTTSCompleted is invoked when assistant playback finished naturally.
func (m *Manager) HandleTTSCompleted() {
	m.mu.Lock()
	m.turnInFlight = false
	m.mu.Unlock()
}

// HandleTTSCancelled is invoked when assistant playback was interrupted.
// The spoken reply stays on screen; the session simply listens again.
func (m *Manager) HandleTTSCancelled() {
	m.mu.Lock()
	m.turnInFlight = false
	m.mu.Unlock()
}

// ─── turn pipeline ───

// runTurn executes the turn sequence: gate, transcribe, classify, resolve
// the model call, validate, apply, synthesize.
func (m *Manager) runTurn(ctx context.Context, seg audio.Segment) {
	turnID := uuid.NewString()
	log := slog.With("turn", turnID[:8])
	s := m.settings.Snapshot()

	abort := func() {
		m.mu.Lock()
		m.turnInFlight = false
		m.mu.Unlock()
		m.audioCtl.ResumeListening()
	}

	// Second-stage gate. The detector's own thresholds are tuned to avoid
	// dropping real speech; this one is tuned to avoid paying for noise.
	if d := seg.Duration; d < m.cfg.MinSegmentDuration || seg.RMS < m.cfg.MinSegmentRMS {
		log.Debug("segment rejected", "duration", seg.Duration, "rms", seg.RMS)
		if m.metrics != nil {
			m.metrics.SegmentsRejected.Add(ctx, 1)
		}
		abort()
		return
	}

	text, err := m.transcribe(ctx, seg, s)
	switch {
	case asr.IsCancelled(err):
		// New speech superseded this segment; its replacement will arrive
		// as a fresh segment. Say nothing.
		log.Debug("transcription cancelled by new speech")
		m.mu.Lock()
		m.turnInFlight = false
		m.mu.Unlock()
		return
	case err != nil:
		log.Error("transcription failed", "err", err)
		m.notify(ui.Notification{Kind: ui.KindError, Text: "Speech recognition failed, please try again."})
		abort()
		return
	}
	if strings.TrimSpace(text) == "" {
		log.Debug("empty transcript")
		abort()
		return
	}

	m.notify(ui.Notification{Kind: ui.KindUserMessage, Text: text})

	task := m.Task()
	intent := m.classifier.Classify(text, task.Phase)
	log.Info("turn", "text", text, "intent", intent.String(), "phase", task.Phase.String())

	mode, level := m.resolveMode(intent, task)

	// A non-confirming reply while the next-task offer is pending gets a
	// canned re-prompt, no model call. A confirmed "yes" is served from the
	// prefetched slot when available, also skipping the call.
	var resp *AIResponse
	switch {
	case task.Phase == TaskWaitingConfirmation && intent != IntentConfirmYes:
		resp = holdResponse(s.Language)
	case intent == IntentConfirmYes:
		resp = m.takePrefetched()
	}
	if resp == nil {
		coaching := m.coachLanguage(ctx, task, text, s, log)
		resp, err = m.complete(ctx, mode, level, text, s, coaching, log)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				m.mu.Lock()
				m.turnInFlight = false
				m.mu.Unlock()
				return
			}
			log.Error("chat completion failed", "err", err)
			m.notify(ui.Notification{Kind: ui.KindError, Text: "The interviewer is unreachable right now."})
			abort()
			return
		}
	}

	m.apply(ctx, mode, level, text, resp, s)

	clip, err := m.synthesize(ctx, resp.SpokenText, s)
	if err != nil {
		// The reply is already on screen, so losing audio degrades rather
		// than breaks the turn.
		log.Error("synthesis failed", "err", err)
		m.notify(ui.Notification{Kind: ui.KindError, Text: "Voice output failed; see the transcript."})
		abort()
		return
	}

	if m.metrics != nil {
		m.metrics.Turns.Add(ctx, 1)
	}
	m.audioCtl.Speak(clip, s.AllowInterruption, false)
}

// transcribe runs the speech recognizer with a cancel hook that
// [HandleSpeechStarted] can fire.
func (m *Manager) transcribe(ctx context.Context, seg audio.Segment, s Settings) (string, error) {
	tctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.transcribeGen++
	gen := m.transcribeGen
	m.transcribeCancel = cancel
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if m.transcribeGen == gen {
			m.transcribeCancel = nil
		}
		m.mu.Unlock()
		cancel()
	}()

	start := time.Now()
	res, err := m.asr.Transcribe(tctx, asr.Request{
		Audio:    seg.PCM,
		Language: s.ASRLanguage,
		Prompt:   transcriptionPrompt,
	})
	if m.metrics != nil && err == nil {
		m.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// resolveMode maps the task phase and intent to the turn's model call mode
// and, for help requests, advances the help ladder. With a task on the
// table, anything that is not a help request is judged as an attempted
// solution; without one, every turn leads into the next task.
func (m *Manager) resolveMode(intent Intent, task Task) (Mode, HelpLevel) {
	switch task.Phase {
	case TaskPresented:
		if intent == IntentHelpRequest {
			m.mu.Lock()
			m.helpLevel = m.helpLevel.Next()
			level := m.helpLevel
			m.mu.Unlock()
			return ModeAssistHelp, level
		}
		return ModeCheckSolution, m.helpLevelSnapshot()
	case TaskWaitingConfirmation:
		return ModeGenerateTask, HelpNone
	default:
		return ModeGenerateTask, HelpNone
	}
}

func (m *Manager) helpLevelSnapshot() HelpLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.helpLevel
}

// coachLanguage runs the language-coaching side call for non-native
// sessions before the main turn. Only ordinary dialogue turns get one; its
// failure is never fatal to the turn.
func (m *Manager) coachLanguage(ctx context.Context, task Task, userText string, s Settings, log *slog.Logger) string {
	if task.Phase != TaskNone || s.SessionLanguage == "" || s.SessionLanguage == s.Language {
		return ""
	}

	req := llm.Request{
		System:       buildSystemPrompt(ModeLanguageCoach, s.Language, Task{}, HelpNone, ""),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: userText}},
		Temperature:  s.Temperature,
		MaxTokens:    s.MaxTokens,
		JSONResponse: true,
	}
	resp, err := m.callOnce(ctx, req)
	if err != nil || validateResponse(ModeLanguageCoach, resp) != nil {
		log.Debug("language coaching call failed", "err", err)
		return ""
	}
	return resp.SpokenText
}

// complete issues the turn's main chat completion, retrying exactly once
// on a structurally invalid reply and falling back to a canned response
// when the retry fails too.
func (m *Manager) complete(ctx context.Context, mode Mode, level HelpLevel, userText string, s Settings, coaching string, log *slog.Logger) (*AIResponse, error) {
	task := m.Task()
	summary := m.history.Summary()
	if coaching != "" {
		summary += "\nLanguage feedback on the candidate's last utterance (mention briefly when natural, do not lecture): " + coaching
	}

	system := buildSystemPrompt(mode, s.Language, task, level, summary)

	// At most four messages: system, last exchange for continuity, and the
	// current utterance. Longer continuity lives in the context summary.
	msgs := make([]llm.Message, 0, 3)
	m.mu.Lock()
	if m.lastUser != "" && m.lastAssistant != "" {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: m.lastUser},
			llm.Message{Role: llm.RoleAssistant, Content: m.lastAssistant},
		)
	}
	m.mu.Unlock()
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: userText})

	req := llm.Request{
		System:       system,
		Messages:     msgs,
		Temperature:  s.Temperature,
		MaxTokens:    s.MaxTokens,
		JSONResponse: true,
	}

	resp, err := m.callOnce(ctx, req)
	if err != nil {
		return nil, err
	}
	if vErr := validateResponse(mode, resp); vErr != nil {
		log.Warn("invalid model response, retrying", "err", vErr)
		if m.metrics != nil {
			m.metrics.ResponseRetries.Add(ctx, 1)
		}

		retryReq := req
		retryReq.System = system + "\n\n" + schemaReminder
		resp, err = m.callOnce(ctx, retryReq)
		if err != nil || validateResponse(mode, resp) != nil {
			log.Warn("retry failed, using fallback", "err", err)
			if m.metrics != nil {
				m.metrics.ResponseFallbacks.Add(ctx, 1)
			}
			return fallbackResponse(mode, task, s.Language), nil
		}
	}
	return resp, nil
}

// callOnce performs one provider call and parses the structured reply.
func (m *Manager) callOnce(ctx context.Context, req llm.Request) (*AIResponse, error) {
	start := time.Now()
	out, err := m.chat.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.ChatDuration.Record(ctx, time.Since(start).Seconds())
	}
	return parseResponse(out.Content)
}

// apply commits a validated response: task transitions, help-level resets,
// context updates, UI notifications, and the next-task prefetch.
func (m *Manager) apply(ctx context.Context, mode Mode, level HelpLevel, userText string, resp *AIResponse, s Settings) {
	m.mu.Lock()
	m.lastUser = userText
	m.lastAssistant = resp.SpokenText

	prevPhase := m.task.Phase
	switch resp.TaskState {
	case RespTaskPresented:
		m.task = Task{
			Phase:            TaskPresented,
			Description:      resp.SpokenText,
			ExpectedSolution: resp.Solution,
		}
		m.helpLevel = HelpNone
		m.nextTask = nil
	case RespWaitingConfirmation:
		m.task.Phase = TaskWaitingConfirmation
	case RespShowingSolution:
		// Solution revealed: the task is spent, wait for what the user
		// wants next.
		m.task.Phase = TaskWaitingConfirmation
		m.helpLevel = HelpSolution
	case RespNoTask:
		m.task = Task{}
		m.helpLevel = HelpNone
	}
	phase := m.task.Phase
	correct := mode == ModeCheckSolution && resp.IsCorrect != nil && *resp.IsCorrect
	m.mu.Unlock()

	m.notify(ui.Notification{Kind: ui.KindAssistantMessage, Text: resp.SpokenText})
	if resp.Code != "" {
		m.notify(ui.Notification{Kind: ui.KindCode, Text: resp.Code})
	}
	if resp.Hint != "" {
		m.notify(ui.Notification{Kind: ui.KindHint, Text: resp.Hint})
	}
	if phase != prevPhase {
		m.notify(ui.Notification{Kind: ui.KindTaskState, Text: phase.String()})
	}

	m.history.AddTopic(userText)
	if strings.HasSuffix(strings.TrimSpace(resp.SpokenText), "?") {
		m.history.AddQuestion(resp.SpokenText)
	}

	// A correct solution almost always leads to "next task, please", so the
	// next task is generated now, while the user hears the verdict.
	if correct {
		m.prefetchNextTask(ctx, s)
	}
}

// prefetchNextTask fills the single-slot next-task cache in the background.
// At most one prefetch runs at a time; a failed prefetch leaves the slot
// empty and the confirm turn falls back to a live call.
func (m *Manager) prefetchNextTask(ctx context.Context, s Settings) {
	m.mu.Lock()
	if m.prefetching || m.nextTask != nil {
		m.mu.Unlock()
		return
	}
	m.prefetching = true
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			m.prefetching = false
			m.mu.Unlock()
		}()

		system := buildSystemPrompt(ModeGenerateTask, s.Language, m.Task(), HelpNone, m.history.Summary())
		req := llm.Request{
			System:       system,
			Messages:     []llm.Message{{Role: llm.RoleUser, Content: "Give me the next task."}},
			Temperature:  s.Temperature,
			MaxTokens:    s.MaxTokens,
			JSONResponse: true,
		}
		resp, err := m.callOnce(ctx, req)
		if err != nil || validateResponse(ModeGenerateTask, resp) != nil {
			slog.Debug("next-task prefetch failed", "err", err)
			return
		}

		m.mu.Lock()
		m.nextTask = resp
		m.mu.Unlock()
		slog.Debug("next task prefetched")
	}()
}

// takePrefetched pops the cached next-task response, or nil.
func (m *Manager) takePrefetched() *AIResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	resp := m.nextTask
	m.nextTask = nil
	return resp
}

// synthesize renders text to audio with the session voice.
func (m *Manager) synthesize(ctx context.Context, text string, s Settings) ([]byte, error) {
	start := time.Now()
	clip, err := m.tts.Synthesize(ctx, text, tts.Voice{ID: s.Voice, Speed: s.VoiceSpeed})
	if err != nil {
		return nil, fmt.Errorf("conversation: synthesize: %w", err)
	}
	if m.metrics != nil {
		m.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
	}
	return clip, nil
}

func (m *Manager) notify(n ui.Notification) {
	if m.sink != nil {
		m.sink.Notify(n)
	}
}
