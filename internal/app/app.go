// Package app wires the interview server's subsystems into a running
// application: audio capture, voice detection, the full-duplex manager, the
// conversation engine, and the HTTP surface (UI websocket, health, metrics).
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the session until the context ends, and Shutdown
// tears everything down in order. For testing, inject doubles via the
// functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/XMaster-Denis/mock-tech-interview-ai/internal/config"
	"github.com/XMaster-Denis/mock-tech-interview-ai/internal/conversation"
	"github.com/XMaster-Denis/mock-tech-interview-ai/internal/duplex"
	"github.com/XMaster-Denis/mock-tech-interview-ai/internal/health"
	"github.com/XMaster-Denis/mock-tech-interview-ai/internal/observe"
	"github.com/XMaster-Denis/mock-tech-interview-ai/internal/ui"
	"github.com/XMaster-Denis/mock-tech-interview-ai/internal/vad"
	"github.com/XMaster-Denis/mock-tech-interview-ai/pkg/audio"
	"github.com/XMaster-Denis/mock-tech-interview-ai/pkg/provider/asr"
	"github.com/XMaster-Denis/mock-tech-interview-ai/pkg/provider/llm"
	"github.com/XMaster-Denis/mock-tech-interview-ai/pkg/provider/tts"
)

// Providers holds one interface value per pipeline stage plus the audio
// device pair. All slots are required. Populated by main.go from the config.
type Providers struct {
	ASR     asr.Provider
	LLM     llm.Provider
	TTS     tts.Provider
	Capture audio.CaptureDevice
	Player  audio.Player
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics  *observe.Metrics
	hub      *ui.Hub
	sink     ui.Sink
	analyzer *vad.NoiseAnalyzer
	detector *vad.Detector
	duplex   *duplex.Manager
	conv     *conversation.Manager
	srv      *http.Server

	audioHandler http.Handler

	// baseCtx is the Run context; turn goroutines derive from it.
	baseCtx context.Context

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSink routes UI notifications to s instead of the websocket hub.
func WithSink(s ui.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithMetrics injects a metrics set instead of the process-wide default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithAudioHandler mounts h at /audio on the HTTP server. Used for
// websocket-bridged audio devices that need a browser connection.
func WithAudioHandler(h http.Handler) Option {
	return func(a *App) { a.audioHandler = h }
}

// New wires an App from config and providers.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.ASR == nil || providers.LLM == nil || providers.TTS == nil ||
		providers.Capture == nil || providers.Player == nil {
		return nil, errors.New("app: all providers are required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.sink == nil {
		a.hub = ui.NewHub()
		a.sink = a.hub
	}

	// ── Voice detection ──────────────────────────────────────────────────
	dcfg := detectorConfig(cfg.Audio)
	dopts := []vad.Option{
		vad.WithProgressFunc(func(p float64) {
			a.sink.Notify(ui.Notification{Kind: ui.KindSilenceProgress, Progress: p})
		}),
	}
	if cfg.Audio.Adaptive {
		a.analyzer = vad.NewNoiseAnalyzer(noiseConfig(cfg.Audio))
		dopts = append(dopts, vad.WithAnalyzer(a.analyzer))
	}
	a.detector = vad.New(dcfg, dopts...)

	// ── Duplex audio + conversation ──────────────────────────────────────
	// The duplex callbacks reference a.conv, which is assigned right after;
	// callbacks only fire once Run starts the event loop.
	a.duplex = duplex.New(a.detector, providers.Player, duplex.Callbacks{
		OnUserSpeechStarted: func() { a.conv.HandleSpeechStarted() },
		OnUserSpeechEnded: func(seg audio.Segment) {
			a.conv.HandleSegment(a.baseCtx, seg)
		},
		OnTTSCompleted: func() { a.conv.HandleTTSCompleted() },
		OnTTSCancelled: func() { a.conv.HandleTTSCancelled() },
		OnCalibrated: func(res vad.CalibrationResult) {
			slog.Info("noise calibration complete",
				"noise_floor", res.NoiseFloor,
				"threshold", res.AdaptiveThreshold,
				"too_noisy", res.TooNoisy,
			)
			if res.TooNoisy {
				a.sink.Notify(ui.Notification{
					Kind: ui.KindWarning,
					Text: "Your environment is noisy; recognition quality may suffer.",
				})
			}
		},
		OnStateChange: func(s duplex.State) {
			a.sink.Notify(ui.Notification{Kind: ui.KindAudioState, Text: s.String()})
		},
	}, a.metrics)

	ccfg := conversation.DefaultConfig()
	if cfg.Interview.Greeting != "" {
		ccfg.Greeting = cfg.Interview.Greeting
	}
	ccfg.ContextCapacity = cfg.Interview.ContextCapacity
	a.conv = conversation.New(ccfg,
		providers.ASR, providers.LLM, providers.TTS,
		a.duplex, a.sink,
		conversation.StaticSettings(sessionSettings(cfg.Interview)),
		conversation.WithMetrics(a.metrics),
	)

	// ── HTTP surface ─────────────────────────────────────────────────────
	mux := http.NewServeMux()
	if a.hub != nil {
		mux.Handle("/ws", a.hub)
	}
	if a.audioHandler != nil {
		mux.Handle("/audio", a.audioHandler)
	}
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(
		health.Probe{Name: "audio", Check: a.audioProbe},
	).Register(mux)

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.closers = append(a.closers,
		providers.Capture.Close,
		providers.Player.Close,
	)
	if a.hub != nil {
		a.closers = append(a.closers, a.hub.Close)
	}

	return a, nil
}

// Run starts the capture, detection, duplex, and HTTP loops and blocks
// until ctx ends or a loop fails.
func (a *App) Run(ctx context.Context) error {
	a.baseCtx = ctx

	samples, err := a.providers.Capture.Start(ctx)
	if err != nil {
		return fmt.Errorf("app: start capture: %w", err)
	}

	a.metrics.ActiveSessions.Add(ctx, 1)
	defer a.metrics.ActiveSessions.Add(context.Background(), -1)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.detector.Run(gctx, samples) })
	g.Go(func() error { return a.duplex.Run(gctx) })
	g.Go(func() error {
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.srv.Shutdown(shutCtx)
	})

	a.duplex.StartListening()
	a.conv.Greet(ctx)

	slog.Info("interview session running", "addr", a.srv.Addr)
	return g.Wait()
}

// Shutdown tears the application down. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// audioProbe reports readiness of the audio pipeline: once adaptive
// calibration is requested it must have completed.
func (a *App) audioProbe(context.Context) error {
	if a.analyzer != nil && !a.analyzer.Calibrated() {
		return errors.New("noise calibration in progress")
	}
	return nil
}

// ─── config mapping ──────────────────────────────────────────────────────────

// detectorConfig maps audio config onto detector defaults, overriding only
// fields that are set.
func detectorConfig(c config.AudioConfig) vad.Config {
	cfg := vad.DefaultConfig()
	if c.TickInterval > 0 {
		cfg.TickInterval = c.TickInterval.Std()
	}
	if c.Threshold > 0 {
		cfg.Threshold = c.Threshold
	}
	if c.SilenceTimeout > 0 {
		cfg.SilenceTimeout = c.SilenceTimeout.Std()
	}
	if c.MinSpeechDuration > 0 {
		cfg.MinSpeechDuration = c.MinSpeechDuration.Std()
	}
	if c.MinSpeechLevel > 0 {
		cfg.MinSpeechLevel = c.MinSpeechLevel
	}
	if c.MaxRecording > 0 {
		cfg.MaxRecording = c.MaxRecording.Std()
	}
	return cfg
}

// noiseConfig maps audio config onto noise-analyzer defaults.
func noiseConfig(c config.AudioConfig) vad.NoiseConfig {
	cfg := vad.DefaultNoiseConfig()
	if c.CalibrationSamples > 0 {
		cfg.CalibrationSamples = c.CalibrationSamples
	}
	if c.SNRMultiplier > 0 {
		cfg.SNRMultiplier = c.SNRMultiplier
	}
	if c.NoiseCeiling > 0 {
		cfg.NoiseCeiling = c.NoiseCeiling
	}
	return cfg
}

// sessionSettings maps interview config onto the turn engine's settings.
func sessionSettings(c config.InterviewConfig) conversation.Settings {
	language := c.Language
	if language == "" {
		language = "English"
	}
	return conversation.Settings{
		Language:          language,
		SessionLanguage:   c.SessionLanguage,
		Voice:             c.Voice,
		VoiceSpeed:        c.VoiceSpeed,
		AllowInterruption: c.AllowInterruption,
		ASRLanguage:       c.ASRLanguage,
	}
}
