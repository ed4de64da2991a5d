package interview

import "fmt"

// SessionState represents the current state of an interview session.
type SessionState int

const (
	// StateInitializing is the state before the opening interviewer line is spoken.
	StateInitializing SessionState = iota
	// StateAwaitingUtterance is when the endpointer is armed and listening.
	StateAwaitingUtterance
	// StateTranscribing is when a captured utterance is at the transcription service.
	StateTranscribing
	// StateGenerating is when the dialogue service is producing the next line.
	StateGenerating
	// StateSpeaking is when synthesized interviewer audio is playing back.
	StateSpeaking
	// StateCompleted is the terminal state for a finished interview.
	StateCompleted
	// StateAborted is the terminal state for a cancelled interview.
	StateAborted
)

// String returns a human-readable state name.
func (s SessionState) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateAwaitingUtterance:
		return "AWAITING_UTTERANCE"
	case StateTranscribing:
		return "TRANSCRIBING"
	case StateGenerating:
		return "GENERATING"
	case StateSpeaking:
		return "SPEAKING"
	case StateCompleted:
		return "COMPLETED"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether the state is Completed or Aborted.
func (s SessionState) IsTerminal() bool {
	return s == StateCompleted || s == StateAborted
}

// Role identifies which party produced a transcript turn.
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleParticipant Role = "participant"
)

// DefaultCompletionMarker is the sentinel the dialogue model emits when the
// interview should end. It is stripped before the reply is spoken or shown.
const DefaultCompletionMarker = "[INTERVIEW_COMPLETE]"

// SessionConfig holds all configuration for one interview session.
type SessionConfig struct {
	// Instructions is the interviewer instruction block injected into every
	// dialogue call. Loaded once at session creation; never re-read mid-session.
	Instructions string `json:"instructions,omitempty"`

	// Endpointing configures silence-based utterance detection.
	Endpointing EndpointConfig `json:"endpointing"`

	// Audio specifies the inbound PCM format.
	Audio AudioConfig `json:"audio"`

	// RetryBudget is how many transcription failures (including no-speech
	// mid-conversation) are tolerated per utterance before giving up.
	// Default: 2
	RetryBudget int `json:"retry_budget"`

	// RepromptLine is spoken when a retry is consumed.
	RepromptLine string `json:"reprompt_line,omitempty"`

	// MinExchanges is the minimum number of participant/interviewer pairs
	// before a completion marker is honored. Default: 3
	MinExchanges int `json:"min_exchanges"`

	// MaxExchanges forces completion even without a marker, bounding cost
	// and wall-clock time. Default: 12
	MaxExchanges int `json:"max_exchanges"`

	// CompletionMarker is the sentinel token scanned for in interviewer replies.
	CompletionMarker string `json:"completion_marker"`
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Endpointing:      DefaultEndpointConfig(),
		Audio:            DefaultAudioConfig(),
		RetryBudget:      2,
		RepromptLine:     "Sorry, I didn't catch that. Could you say that again?",
		MinExchanges:     3,
		MaxExchanges:     12,
		CompletionMarker: DefaultCompletionMarker,
	}
}

// Validate checks the configuration for values the controller cannot run with.
func (c SessionConfig) Validate() error {
	if c.Endpointing.SilenceThresholdMs <= 0 {
		return fmt.Errorf("endpointing.silence_threshold_ms must be positive, got %d", c.Endpointing.SilenceThresholdMs)
	}
	if c.Endpointing.MaxUtteranceMs <= c.Endpointing.SilenceThresholdMs {
		return fmt.Errorf("endpointing.max_utterance_ms (%d) must exceed silence_threshold_ms (%d)",
			c.Endpointing.MaxUtteranceMs, c.Endpointing.SilenceThresholdMs)
	}
	if c.RetryBudget < 0 {
		return fmt.Errorf("retry_budget must not be negative, got %d", c.RetryBudget)
	}
	if c.MaxExchanges <= 0 {
		return fmt.Errorf("max_exchanges must be positive, got %d", c.MaxExchanges)
	}
	if c.MinExchanges < 0 || c.MinExchanges > c.MaxExchanges {
		return fmt.Errorf("min_exchanges (%d) must be between 0 and max_exchanges (%d)", c.MinExchanges, c.MaxExchanges)
	}
	if c.CompletionMarker == "" {
		return fmt.Errorf("completion_marker must not be empty")
	}
	if c.Audio.BytesPerSecond() == 0 {
		return fmt.Errorf("audio config yields zero byte rate")
	}
	return nil
}

// EndpointConfig configures silence-based end-of-utterance detection.
//
// The source material describes the silence threshold as both 3 and 5
// seconds in different places; it is exposed here as a single parameter
// with a 5 second default.
type EndpointConfig struct {
	// SilenceThresholdMs is how long continuous silence must last after
	// voiced audio before the utterance is considered complete.
	// Default: 5000
	SilenceThresholdMs int `json:"silence_threshold_ms"`

	// MaxUtteranceMs caps a single utterance; reaching it forces a flush
	// regardless of trailing silence. Default: 120000
	MaxUtteranceMs int `json:"max_utterance_ms"`

	// NoSpeechTimeoutMs is how long to wait for the first voiced frame
	// before reporting no speech at all. Default: 30000
	NoSpeechTimeoutMs int `json:"no_speech_timeout_ms"`

	// EnergyThreshold is the RMS level below which a frame counts as silence.
	// Range: 0.0 to 1.0. Default: 0.02
	EnergyThreshold float64 `json:"energy_threshold"`

	// TickMs is the poll interval of the endpointer clock. Default: 100
	TickMs int `json:"tick_ms"`
}

// DefaultEndpointConfig returns an EndpointConfig with sensible defaults.
func DefaultEndpointConfig() EndpointConfig {
	return EndpointConfig{
		SilenceThresholdMs: 5000,
		MaxUtteranceMs:     120000,
		NoSpeechTimeoutMs:  30000,
		EnergyThreshold:    0.02,
		TickMs:             100,
	}
}

// AudioConfig specifies audio format parameters.
type AudioConfig struct {
	// SampleRate in Hz. Common values: 16000, 24000, 48000.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels"`

	// BitsPerSample: typically 16 for PCM.
	BitsPerSample int `json:"bits_per_sample"`
}

// DefaultAudioConfig returns the standard inbound audio configuration.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate:    16000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// BytesPerSecond returns the audio byte rate.
func (c AudioConfig) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// DurationMs returns the duration in milliseconds for the given byte count.
func (c AudioConfig) DurationMs(bytes int) int {
	if c.BytesPerSecond() == 0 {
		return 0
	}
	return (bytes * 1000) / c.BytesPerSecond()
}

// BytesForDurationMs returns the byte count for the given duration in milliseconds.
func (c AudioConfig) BytesForDurationMs(ms int) int {
	return (c.BytesPerSecond() * ms) / 1000
}
