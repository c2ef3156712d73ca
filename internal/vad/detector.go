package vad

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/XMaster-Denis/mock-tech-interview-ai/pkg/audio"
)

const (
	defaultTickInterval      = 50 * time.Millisecond
	defaultSilenceTimeout    = 1500 * time.Millisecond
	defaultMinSpeechDuration = 200 * time.Millisecond
	defaultMinSpeechLevel    = 0.04
	defaultMaxRecording      = 30 * time.Second
	defaultPreRollTicks      = 2
	defaultEventBuffer       = 32
)

// Config holds the parameters of a [Detector].
type Config struct {
	// TickInterval is the capture cadence. One sample is expected per tick.
	TickInterval time.Duration

	// Threshold is the fixed detection threshold used when no calibrated
	// [NoiseAnalyzer] is attached.
	Threshold float64

	// SilenceTimeout is how long the level must stay below the threshold
	// after speech before the segment is confirmed ended.
	SilenceTimeout time.Duration

	// MinSpeechDuration rejects candidate segments shorter than this.
	MinSpeechDuration time.Duration

	// MinSpeechLevel rejects candidate segments whose trimmed RMS level is
	// below this value.
	MinSpeechLevel float64

	// MaxRecording force-ends a segment regardless of detected silence, to
	// bound memory and transcription payload size.
	MaxRecording time.Duration

	// PreRollTicks is how many ticks of audio before the detected speech
	// start are kept in the trimmed segment, so a soft utterance onset is
	// not clipped.
	PreRollTicks int

	// EventBuffer is the capacity of the event channel. Events are dropped
	// (with a warning) when the consumer falls behind.
	EventBuffer int
}

// DefaultConfig returns detector defaults matching the 20 Hz capture loop.
func DefaultConfig() Config {
	return Config{
		TickInterval:      defaultTickInterval,
		SilenceTimeout:    defaultSilenceTimeout,
		MinSpeechDuration: defaultMinSpeechDuration,
		MinSpeechLevel:    defaultMinSpeechLevel,
		MaxRecording:      defaultMaxRecording,
		PreRollTicks:      defaultPreRollTicks,
		EventBuffer:       defaultEventBuffer,
	}
}

// state is the speech-boundary machine state.
type state int

const (
	stateSilent  state = iota // listening, no speech active
	stateSpeech               // speech active, level above threshold
	statePending              // speech active, silence timer running
)

// frame pairs a level reading with its raw PCM for later trimming.
type frame struct {
	level float64
	pcm   []byte
}

// Option configures a [Detector] during construction.
type Option func(*Detector)

// WithAnalyzer attaches a [NoiseAnalyzer] as the threshold source. While the
// analyzer is calibrating, samples feed calibration and detection is held
// off; once calibrated its adaptive threshold replaces Config.Threshold.
func WithAnalyzer(a *NoiseAnalyzer) Option {
	return func(d *Detector) { d.analyzer = a }
}

// WithProgressFunc registers a callback reporting silence-confirmation
// progress in [0.0, 1.0] once per tick while the silence timer runs. Used to
// drive UI feedback. The callback runs on the detector's tick goroutine and
// must not block.
func WithProgressFunc(fn func(float64)) Option {
	return func(d *Detector) { d.onProgress = fn }
}

// Detector is the speech-boundary state machine. It consumes one
// [audio.Sample] per tick, buffers raw audio while speech is active, trims
// leading and trailing silence from confirmed segments, and emits discrete
// [Event] values.
//
// All exported methods are safe for concurrent use; sample processing runs
// on a single goroutine ([Detector.Run]).
type Detector struct {
	cfg        Config
	analyzer   *NoiseAnalyzer
	onProgress func(float64)
	events     chan Event

	mu           sync.Mutex
	paused       bool
	st           state
	tick         int // index of the next sample
	speechStart  int // tick of the first above-threshold sample
	lastVoice    int // tick of the most recent above-threshold sample
	silenceTicks int
	preRoll      []frame // ring of the last PreRollTicks frames while silent
	buf          []frame // frames from pre-roll through the current tick
	bufStart     int     // tick of buf[0]
}

// New creates a Detector with the given configuration. Zero-value config
// fields are replaced by defaults.
func New(cfg Config, opts ...Option) *Detector {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = defaultSilenceTimeout
	}
	if cfg.MinSpeechDuration < 0 {
		cfg.MinSpeechDuration = defaultMinSpeechDuration
	}
	if cfg.MaxRecording <= 0 {
		cfg.MaxRecording = defaultMaxRecording
	}
	if cfg.PreRollTicks < 0 {
		cfg.PreRollTicks = defaultPreRollTicks
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	d := &Detector{
		cfg:    cfg,
		events: make(chan Event, cfg.EventBuffer),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Events returns the channel on which the detector emits voice events. The
// channel is never closed by the detector; consumers select against their
// own context.
func (d *Detector) Events() <-chan Event { return d.events }

// Run consumes samples until ctx is cancelled or the channel closes. A
// channel closing mid-utterance is surfaced as an [EventError] because the
// capture device disappeared under an active recording.
func (d *Detector) Run(ctx context.Context, samples <-chan audio.Sample) error {
	if d.analyzer != nil && !d.analyzer.Calibrated() {
		d.analyzer.StartCalibration()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-samples:
			if !ok {
				d.mu.Lock()
				interrupted := d.st != stateSilent
				d.mu.Unlock()
				if interrupted {
					d.emit(Event{Type: EventError, Err: ErrCaptureLost})
				}
				return nil
			}
			d.ProcessSample(s)
		}
	}
}

// ProcessSample advances the state machine by one tick. Exposed so tests
// and alternative drivers can feed samples directly.
func (d *Detector) ProcessSample(s audio.Sample) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.paused {
		return
	}

	t := d.tick
	d.tick++

	// Calibration phase: feed the analyzer, hold off detection.
	if d.analyzer != nil {
		if d.analyzer.Calibrating() {
			d.analyzer.Analyze(s.Level)
			if d.analyzer.Calibrated() {
				res := d.analyzer.Result()
				d.emitLocked(Event{Type: EventCalibrated, Calibration: &res})
			}
			d.pushPreRoll(s)
			return
		}
	}

	voice := s.Level > d.threshold()

	switch d.st {
	case stateSilent:
		if !voice {
			d.pushPreRoll(s)
			return
		}
		// Silent → Speech: adopt the pre-roll as the buffer head.
		d.st = stateSpeech
		d.speechStart = t
		d.lastVoice = t
		d.silenceTicks = 0
		d.bufStart = t - len(d.preRoll)
		d.buf = append(d.buf[:0], d.preRoll...)
		d.buf = append(d.buf, frame{level: s.Level, pcm: s.Frame})
		d.preRoll = d.preRoll[:0]
		d.emitLocked(Event{Type: EventSpeechStarted})

	case stateSpeech:
		d.buf = append(d.buf, frame{level: s.Level, pcm: s.Frame})
		if voice {
			d.lastVoice = t
		} else {
			// Speech → Silence-Pending: start the silence timer.
			d.st = statePending
			d.silenceTicks = 1
			d.reportProgress()
		}
		d.checkMaxRecording(t)

	case statePending:
		d.buf = append(d.buf, frame{level: s.Level, pcm: s.Frame})
		if voice {
			// Speech continuing through a pause: cancel the timer.
			d.st = stateSpeech
			d.lastVoice = t
			d.silenceTicks = 0
		} else {
			d.silenceTicks++
			d.reportProgress()
			if time.Duration(d.silenceTicks)*d.cfg.TickInterval >= d.cfg.SilenceTimeout {
				d.finalizeLocked()
				return
			}
		}
		d.checkMaxRecording(t)
	}
}

// Pause suspends sample handling without discarding detector or calibration
// state. Used while the application plays back a recorded clip elsewhere.
func (d *Detector) Pause() {
	d.mu.Lock()
	d.paused = true
	d.mu.Unlock()
}

// Resume re-enables sample handling after [Detector.Pause].
func (d *Detector) Resume() {
	d.mu.Lock()
	d.paused = false
	d.mu.Unlock()
}

// Reset discards any active speech buffer and pending silence timer and
// re-arms silent listening. Calibration state is kept.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
}

// Threshold returns the currently effective detection threshold.
func (d *Detector) Threshold() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.threshold()
}

// threshold picks the adaptive value when a calibrated analyzer is attached,
// the fixed configured value otherwise. Callers hold d.mu.
func (d *Detector) threshold() float64 {
	if d.analyzer != nil && d.analyzer.Calibrated() {
		return d.analyzer.AdaptiveThreshold()
	}
	return d.cfg.Threshold
}

// pushPreRoll keeps the last PreRollTicks frames while no speech is active.
func (d *Detector) pushPreRoll(s audio.Sample) {
	if d.cfg.PreRollTicks == 0 {
		return
	}
	d.preRoll = append(d.preRoll, frame{level: s.Level, pcm: s.Frame})
	if len(d.preRoll) > d.cfg.PreRollTicks {
		d.preRoll = d.preRoll[len(d.preRoll)-d.cfg.PreRollTicks:]
	}
}

// checkMaxRecording force-ends the segment when the recording cap is hit.
func (d *Detector) checkMaxRecording(t int) {
	if time.Duration(t-d.speechStart+1)*d.cfg.TickInterval >= d.cfg.MaxRecording {
		d.finalizeLocked()
	}
}

// reportProgress invokes the silence-progress callback with the fraction of
// the silence timeout elapsed so far.
func (d *Detector) reportProgress() {
	if d.onProgress == nil {
		return
	}
	elapsed := time.Duration(d.silenceTicks) * d.cfg.TickInterval
	d.onProgress(math.Min(float64(elapsed)/float64(d.cfg.SilenceTimeout), 1.0))
}

// finalizeLocked confirms the end of speech: validates the candidate, trims
// it to the speech window, and emits either EventSpeechEnded or, when the
// candidate is rejected, EventSilence. Callers hold d.mu.
func (d *Detector) finalizeLocked() {
	speechTicks := d.lastVoice - d.speechStart + 1
	duration := time.Duration(speechTicks) * d.cfg.TickInterval

	if duration < d.cfg.MinSpeechDuration {
		slog.Debug("discarding speech candidate: too short", "duration", duration)
		d.resetLocked()
		d.emitLocked(Event{Type: EventSilence})
		return
	}

	// Trim to [speechStart − pre-roll, lastVoice] without re-encoding.
	end := d.lastVoice - d.bufStart + 1
	if end > len(d.buf) {
		end = len(d.buf)
	}
	trimmed := d.buf[:end]

	// RMS over the speech window only — pre-roll silence would dilute it.
	rms := rmsLevel(trimmed[d.speechStart-d.bufStart:])
	if rms < d.cfg.MinSpeechLevel {
		slog.Debug("discarding speech candidate: too quiet", "rms", rms)
		d.resetLocked()
		d.emitLocked(Event{Type: EventSilence})
		return
	}

	var pcm []byte
	for _, f := range trimmed {
		pcm = append(pcm, f.pcm...)
	}
	seg := &audio.Segment{
		Start:    time.Duration(d.bufStart) * d.cfg.TickInterval,
		Duration: duration,
		PCM:      pcm,
		RMS:      rms,
	}
	d.resetLocked()
	d.emitLocked(Event{Type: EventSpeechEnded, Segment: seg})
}

// resetLocked clears the active segment state. Callers hold d.mu.
func (d *Detector) resetLocked() {
	d.st = stateSilent
	d.silenceTicks = 0
	d.speechStart = 0
	d.lastVoice = 0
	d.buf = nil
	d.preRoll = d.preRoll[:0]
}

// emitLocked sends an event without blocking the tick loop. Callers hold
// d.mu; the channel send itself never blocks.
func (d *Detector) emitLocked(ev Event) {
	select {
	case d.events <- ev:
	default:
		slog.Warn("dropping voice event: consumer is behind", "type", ev.Type.String())
	}
}

// emit is emitLocked for paths that do not hold the mutex.
func (d *Detector) emit(ev Event) {
	select {
	case d.events <- ev:
	default:
		slog.Warn("dropping voice event: consumer is behind", "type", ev.Type.String())
	}
}

// rmsLevel computes the root-mean-square of the frame levels.
func rmsLevel(frames []frame) float64 {
	if len(frames) == 0 {
		return 0
	}
	var sum float64
	for _, f := range frames {
		sum += f.level * f.level
	}
	return math.Sqrt(sum / float64(len(frames)))
}
