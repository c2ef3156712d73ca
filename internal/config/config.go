// Package config provides the configuration schema and loader for the
// interview server.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a [time.Duration] that decodes from the usual Go syntax in
// YAML ("50ms", "1.5s").
type Duration time.Duration

// UnmarshalYAML implements [yaml.Unmarshaler].
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("config: duration must be a string like \"1.5s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String returns the Go duration syntax.
func (d Duration) String() string { return time.Duration(d).String() }

// LogLevel controls log verbosity for the interview server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Providers ProvidersConfig `yaml:"providers"`
	Interview InterviewConfig `yaml:"interview"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the UI/metrics server listens on
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig tunes voice activity detection.
type AudioConfig struct {
	// TickInterval is the audio analysis cadence. Default: 50ms.
	TickInterval Duration `yaml:"tick_interval"`

	// Threshold is the fixed voice level threshold, used when Adaptive is
	// off or as the floor before calibration completes.
	Threshold float64 `yaml:"threshold"`

	// SilenceTimeout is how long sub-threshold audio must last before a
	// pause counts as end of speech. Default: 1.5s.
	SilenceTimeout Duration `yaml:"silence_timeout"`

	// MinSpeechDuration rejects utterances shorter than this. Default: 200ms.
	MinSpeechDuration Duration `yaml:"min_speech_duration"`

	// MinSpeechLevel rejects utterances whose average level stays below
	// this. Default: 0.04.
	MinSpeechLevel float64 `yaml:"min_speech_level"`

	// MaxRecording force-ends an utterance after this duration. Default: 30s.
	MaxRecording Duration `yaml:"max_recording"`

	// Adaptive enables noise calibration and an adaptive threshold.
	Adaptive bool `yaml:"adaptive"`

	// CalibrationSamples is how many ticks the noise calibration averages.
	CalibrationSamples int `yaml:"calibration_samples"`

	// SNRMultiplier scales the noise floor into the adaptive threshold.
	SNRMultiplier float64 `yaml:"snr_multiplier"`

	// NoiseCeiling marks the environment too noisy when the measured floor
	// exceeds it.
	NoiseCeiling float64 `yaml:"noise_ceiling"`
}

// ProvidersConfig declares which provider implementation serves each
// pipeline stage.
type ProvidersConfig struct {
	ASR ProviderEntry `yaml:"asr"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "openai", "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`
}

// InterviewConfig holds session behaviour settings.
type InterviewConfig struct {
	// Language is the spoken language of the interview. Default: "English".
	Language string `yaml:"language"`

	// SessionLanguage, when set and different from Language, enables
	// language-practice coaching.
	SessionLanguage string `yaml:"session_language"`

	// Voice is the synthesis voice identifier.
	Voice string `yaml:"voice"`

	// VoiceSpeed is the synthesis speed multiplier in [0.5, 2.0]; zero
	// means provider default.
	VoiceSpeed float64 `yaml:"voice_speed"`

	// AllowInterruption lets user speech cut off assistant playback.
	AllowInterruption bool `yaml:"allow_interruption"`

	// ContextCapacity bounds the rolling topic/question lists. Default: 5.
	ContextCapacity int `yaml:"context_capacity"`

	// Greeting overrides the opening line.
	Greeting string `yaml:"greeting"`

	// ASRLanguage is the ISO-639-1 transcription hint; empty auto-detects.
	ASRLanguage string `yaml:"asr_language"`
}
