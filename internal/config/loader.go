package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per pipeline stage. Used by
// [Validate] to warn about unrecognised names — unknown names are not an
// error, chat providers beyond "openai" are routed through a generic
// multi-backend client.
var ValidProviderNames = map[string][]string{
	"asr": {"openai"},
	"llm": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp"},
	"tts": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. ${VAR} references in the file are expanded from the environment
// before decoding, so API keys can stay out of the file itself.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}

	cfg, err := LoadFromReader(strings.NewReader(os.ExpandEnv(string(raw))))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("asr", cfg.Providers.ASR.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if cfg.Providers.ASR.Name == "" {
		errs = append(errs, errors.New("providers.asr.name is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}

	a := cfg.Audio
	if a.TickInterval < 0 {
		errs = append(errs, fmt.Errorf("audio.tick_interval %v must not be negative", a.TickInterval))
	}
	if a.Threshold < 0 || a.Threshold > 1 {
		errs = append(errs, fmt.Errorf("audio.threshold %.3f is out of range [0, 1]", a.Threshold))
	}
	if a.MinSpeechLevel < 0 || a.MinSpeechLevel > 1 {
		errs = append(errs, fmt.Errorf("audio.min_speech_level %.3f is out of range [0, 1]", a.MinSpeechLevel))
	}
	if a.SilenceTimeout < 0 {
		errs = append(errs, fmt.Errorf("audio.silence_timeout %v must not be negative", a.SilenceTimeout))
	}
	if a.Adaptive && a.CalibrationSamples < 0 {
		errs = append(errs, fmt.Errorf("audio.calibration_samples %d must not be negative", a.CalibrationSamples))
	}
	if !a.Adaptive && a.Threshold == 0 {
		slog.Warn("audio.adaptive is off and audio.threshold is zero; every sample will register as voice")
	}

	if v := cfg.Interview.VoiceSpeed; v != 0 && (v < 0.5 || v > 2.0) {
		errs = append(errs, fmt.Errorf("interview.voice_speed %.2f is out of range [0.5, 2.0]", v))
	}
	if cfg.Interview.ContextCapacity < 0 {
		errs = append(errs, fmt.Errorf("interview.context_capacity %d must not be negative", cfg.Interview.ContextCapacity))
	}

	return errors.Join(errs...)
}

// validateProviderName warns when a provider name is not in the known list.
// Unknown names are allowed so new backends work without a code change.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	if known, ok := ValidProviderNames[kind]; ok && !slices.Contains(known, name) {
		slog.Warn("unrecognised provider name", "kind", kind, "name", name, "known", known)
	}
}
