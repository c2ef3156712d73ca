// Package vad implements voice activity detection for the interview
// pipeline: an adaptive ambient-noise estimator ([NoiseAnalyzer]) and a
// tick-driven speech-boundary state machine ([Detector]).
//
// Detection is energy-based: the capture device delivers one normalized
// level sample per tick and every decision is O(1) per tick, making the
// package suitable for the 50 ms sampling loop without buffering concerns.
package vad

import "math"

const (
	defaultCalibrationSamples  = 40 // 2 s at the 50 ms tick
	defaultSmoothingFactor     = 0.3
	defaultSNRMultiplier       = 2.0
	defaultMinSignalAboveNoise = 0.05
	defaultAbsoluteFloor       = 0.02
	defaultNoiseCeiling        = 0.30
)

// NoiseConfig holds the parameters of a [NoiseAnalyzer]. All levels are in
// the normalized [0.0, 1.0] scale of [audio.Sample].
type NoiseConfig struct {
	// CalibrationSamples is the number of level samples accumulated before
	// the noise floor is computed. Zero or negative keeps the analyzer in
	// the calibrating state forever.
	CalibrationSamples int

	// SmoothingFactor is the exponential smoothing coefficient applied
	// while folding calibration samples into the noise floor. Range (0, 1];
	// higher values weight recent samples more.
	SmoothingFactor float64

	// SNRMultiplier is the signal-to-noise ratio a sample must exceed,
	// relative to the calibrated floor, to be classified as voice.
	SNRMultiplier float64

	// MinSignalAboveNoise is the minimum absolute margin added to the noise
	// floor when deriving the adaptive threshold. Guards against a floor so
	// low that the multiplier alone yields an unusable threshold.
	MinSignalAboveNoise float64

	// AbsoluteFloor is the minimum absolute level a sample must exceed to
	// count as voice regardless of SNR.
	AbsoluteFloor float64

	// NoiseCeiling is the calibrated floor above which the environment is
	// reported as too noisy for reliable detection.
	NoiseCeiling float64
}

// DefaultNoiseConfig returns the analyzer defaults tuned for the 50 ms
// capture cadence.
func DefaultNoiseConfig() NoiseConfig {
	return NoiseConfig{
		CalibrationSamples:  defaultCalibrationSamples,
		SmoothingFactor:     defaultSmoothingFactor,
		SNRMultiplier:       defaultSNRMultiplier,
		MinSignalAboveNoise: defaultMinSignalAboveNoise,
		AbsoluteFloor:       defaultAbsoluteFloor,
		NoiseCeiling:        defaultNoiseCeiling,
	}
}

// Analysis is the verdict for a single level sample.
type Analysis struct {
	// VoiceDetected reports whether the sample is classified as voice.
	// Always false while calibration is in progress.
	VoiceDetected bool

	// Confidence is a rough score in [0.0, 1.0] of how far the sample sits
	// above the adaptive threshold.
	Confidence float64

	// SNR is the sample level relative to the calibrated noise floor.
	SNR float64

	// AdaptiveThreshold is the current detection threshold. Meaningless
	// until calibration completes.
	AdaptiveThreshold float64
}

// CalibrationResult is the immutable outcome of one calibration run.
type CalibrationResult struct {
	NoiseFloor        float64
	AdaptiveThreshold float64
	TooNoisy          bool
}

// NoiseAnalyzer estimates the ambient noise floor from an initial burst of
// level samples and derives an adaptive voice-detection threshold from it.
//
// NoiseAnalyzer is not safe for concurrent use; it is owned by a single
// [Detector] and driven from its tick loop.
type NoiseAnalyzer struct {
	cfg NoiseConfig

	calibrating bool
	calibrated  bool
	sampleCount int
	noiseFloor  float64
	threshold   float64
}

// NewNoiseAnalyzer creates an analyzer in the idle state. Call
// [NoiseAnalyzer.StartCalibration] before feeding samples.
func NewNoiseAnalyzer(cfg NoiseConfig) *NoiseAnalyzer {
	if cfg.SmoothingFactor <= 0 || cfg.SmoothingFactor > 1 {
		cfg.SmoothingFactor = defaultSmoothingFactor
	}
	return &NoiseAnalyzer{cfg: cfg}
}

// StartCalibration discards any previous calibration and begins accumulating
// level samples. Calibration completes after cfg.CalibrationSamples calls to
// [NoiseAnalyzer.Analyze].
func (a *NoiseAnalyzer) StartCalibration() {
	a.calibrating = true
	a.calibrated = false
	a.sampleCount = 0
	a.noiseFloor = 0
	a.threshold = 0
}

// Analyze records level while calibrating and classifies it once calibration
// is complete. During calibration the returned verdict is never detecting.
func (a *NoiseAnalyzer) Analyze(level float64) Analysis {
	if a.calibrating {
		a.record(level)
		return Analysis{AdaptiveThreshold: a.threshold}
	}
	if !a.calibrated {
		return Analysis{}
	}

	snr := level / math.Max(a.noiseFloor, 1e-6)
	detected := snr > a.cfg.SNRMultiplier && level > a.cfg.AbsoluteFloor

	var confidence float64
	if a.threshold > 0 && level > a.threshold {
		confidence = math.Min((level-a.threshold)/a.threshold, 1.0)
	}

	return Analysis{
		VoiceDetected:     detected,
		Confidence:        confidence,
		SNR:               snr,
		AdaptiveThreshold: a.threshold,
	}
}

// record folds one calibration sample into the smoothed noise floor and
// finalizes calibration once the configured sample count is reached.
func (a *NoiseAnalyzer) record(level float64) {
	if a.sampleCount == 0 {
		a.noiseFloor = level
	} else {
		a.noiseFloor = a.cfg.SmoothingFactor*level + (1-a.cfg.SmoothingFactor)*a.noiseFloor
	}
	a.sampleCount++

	if a.cfg.CalibrationSamples > 0 && a.sampleCount >= a.cfg.CalibrationSamples {
		a.threshold = a.noiseFloor + math.Max(a.cfg.MinSignalAboveNoise, a.noiseFloor*a.cfg.SNRMultiplier)
		a.calibrating = false
		a.calibrated = true
	}
}

// Calibrated reports whether a calibration run has completed. Callers must
// not rely on [NoiseAnalyzer.AdaptiveThreshold] before this returns true.
func (a *NoiseAnalyzer) Calibrated() bool { return a.calibrated }

// Calibrating reports whether a calibration run is in progress.
func (a *NoiseAnalyzer) Calibrating() bool { return a.calibrating }

// NoiseFloor returns the smoothed ambient level. Zero until calibrated.
func (a *NoiseAnalyzer) NoiseFloor() float64 { return a.noiseFloor }

// AdaptiveThreshold returns the derived detection threshold. Zero until
// calibrated.
func (a *NoiseAnalyzer) AdaptiveThreshold() float64 { return a.threshold }

// EnvironmentTooNoisy reports whether the calibrated floor exceeds the
// configured ceiling. Always false before calibration completes.
func (a *NoiseAnalyzer) EnvironmentTooNoisy() bool {
	return a.calibrated && a.noiseFloor > a.cfg.NoiseCeiling
}

// Result returns the immutable calibration outcome. Valid only once
// [NoiseAnalyzer.Calibrated] reports true.
func (a *NoiseAnalyzer) Result() CalibrationResult {
	return CalibrationResult{
		NoiseFloor:        a.noiseFloor,
		AdaptiveThreshold: a.threshold,
		TooNoisy:          a.EnvironmentTooNoisy(),
	}
}

// Reset discards all calibration state, returning the analyzer to idle.
func (a *NoiseAnalyzer) Reset() {
	a.calibrating = false
	a.calibrated = false
	a.sampleCount = 0
	a.noiseFloor = 0
	a.threshold = 0
}
