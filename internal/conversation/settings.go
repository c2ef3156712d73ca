package conversation

// Settings are the per-session tunables read at the start of every turn.
// Reading them through a [SettingsSource] lets the owner change them
// mid-session (from a UI or config reload) without restarting the turn
// loop.
type Settings struct {
	// Language is the spoken language of the interview, e.g. "English".
	Language string

	// SessionLanguage, when non-empty and different from Language, marks
	// the session as language practice: dialogue turns get a coaching side
	// call whose corrections feed into the interviewer's reply.
	SessionLanguage string

	// Voice is the synthesis voice identifier.
	Voice string

	// VoiceSpeed is the synthesis speed multiplier; zero means default.
	VoiceSpeed float64

	// AllowInterruption lets user speech cut off assistant playback.
	AllowInterruption bool

	// ASRLanguage is the ISO-639-1 hint passed to transcription; empty
	// means auto-detect.
	ASRLanguage string

	// Temperature for chat completions.
	Temperature float64

	// MaxTokens caps chat completion length; zero means provider default.
	MaxTokens int
}

// SettingsSource supplies the current settings snapshot. Implementations
// must be safe for concurrent use.
type SettingsSource interface {
	Snapshot() Settings
}

// StaticSettings is a SettingsSource that always returns the same value.
type StaticSettings Settings

// Snapshot implements [SettingsSource].
func (s StaticSettings) Snapshot() Settings { return Settings(s) }

var _ SettingsSource = StaticSettings{}
