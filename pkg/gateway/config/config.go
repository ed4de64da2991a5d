package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Provider credentials and endpoints.
	DeepgramAPIKey    string
	OpenRouterAPIKey  string
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	DialogueModel     string
	AnalysisModel     string
	LocalAnalysisURL  string // empty => remote analysis only

	// Interview behaviour.
	InstructionsPath   string
	SilenceThreshold   time.Duration
	MaxUtterance       time.Duration
	NoSpeechTimeout    time.Duration
	RetryBudget        int
	MinExchanges       int
	MaxExchanges       int
	MaxSessions        int
	MaxSessionDuration time.Duration

	// Live WebSocket transport.
	LiveMaxAudioFrameBytes  int
	LiveMaxJSONMessageBytes int64
	LiveWSPingInterval      time.Duration
	LiveWSWriteTimeout      time.Duration

	// Per-caller rate limiting. LimitRPS 0 disables the token bucket;
	// LimitMaxConcurrentInterviews 0 disables the interview cap.
	LimitRPS                     int
	LimitBurst                   int
	LimitMaxConcurrentInterviews int

	// Persistence.
	DatabasePath string

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                    envOr("INTERVIEWD_ADDR", ":8080"),
		AuthMode:                AuthMode(envOr("INTERVIEWD_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:                 make(map[string]struct{}),
		CORSAllowedOrigins:      make(map[string]struct{}),
		DeepgramAPIKey:          strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
		OpenRouterAPIKey:        strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")),
		ElevenLabsAPIKey:        strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
		ElevenLabsVoiceID:       envOr("ELEVENLABS_VOICE_ID", ""),
		DialogueModel:           envOr("INTERVIEWD_DIALOGUE_MODEL", ""),
		AnalysisModel:           envOr("INTERVIEWD_ANALYSIS_MODEL", ""),
		LocalAnalysisURL:        envOr("INTERVIEWD_LOCAL_ANALYSIS_URL", ""),
		InstructionsPath:        envOr("INTERVIEWD_INSTRUCTIONS_PATH", ""),
		SilenceThreshold:        envDurationOr("INTERVIEWD_SILENCE_THRESHOLD", 5*time.Second),
		MaxUtterance:            envDurationOr("INTERVIEWD_MAX_UTTERANCE", 2*time.Minute),
		NoSpeechTimeout:         envDurationOr("INTERVIEWD_NO_SPEECH_TIMEOUT", 30*time.Second),
		RetryBudget:             envIntOr("INTERVIEWD_RETRY_BUDGET", 2),
		MinExchanges:            envIntOr("INTERVIEWD_MIN_EXCHANGES", 3),
		MaxExchanges:            envIntOr("INTERVIEWD_MAX_EXCHANGES", 12),
		MaxSessions:             envIntOr("INTERVIEWD_MAX_SESSIONS", 8),
		MaxSessionDuration:      envDurationOr("INTERVIEWD_MAX_SESSION_DURATION", 30*time.Minute),
		LiveMaxAudioFrameBytes:  envIntOr("INTERVIEWD_LIVE_MAX_AUDIO_FRAME_BYTES", 8192),
		LiveMaxJSONMessageBytes: envInt64Or("INTERVIEWD_LIVE_MAX_JSON_MESSAGE_BYTES", 64*1024),
		LiveWSPingInterval:      envDurationOr("INTERVIEWD_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:      envDurationOr("INTERVIEWD_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		DatabasePath:            envOr("INTERVIEWD_DB_PATH", "interviews.db"),
		ReadHeaderTimeout:       envDurationOr("INTERVIEWD_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:     envDurationOr("INTERVIEWD_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}
	cfg.LimitRPS = envIntOr("INTERVIEWD_LIMIT_RPS", 10)
	cfg.LimitBurst = envIntOr("INTERVIEWD_LIMIT_BURST", 20)
	cfg.LimitMaxConcurrentInterviews = envIntOr("INTERVIEWD_LIMIT_MAX_CONCURRENT_INTERVIEWS", 2)

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("INTERVIEWD_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("INTERVIEWD_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}

	for _, origin := range splitCSV(os.Getenv("INTERVIEWD_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.DeepgramAPIKey == "" {
		return Config{}, fmt.Errorf("DEEPGRAM_API_KEY must be set")
	}
	if cfg.OpenRouterAPIKey == "" {
		return Config{}, fmt.Errorf("OPENROUTER_API_KEY must be set")
	}
	if cfg.ElevenLabsAPIKey == "" {
		return Config{}, fmt.Errorf("ELEVENLABS_API_KEY must be set")
	}
	if cfg.SilenceThreshold <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_SILENCE_THRESHOLD must be > 0")
	}
	if cfg.MaxUtterance <= cfg.SilenceThreshold {
		return Config{}, fmt.Errorf("INTERVIEWD_MAX_UTTERANCE must be > INTERVIEWD_SILENCE_THRESHOLD")
	}
	if cfg.NoSpeechTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_NO_SPEECH_TIMEOUT must be > 0")
	}
	if cfg.RetryBudget < 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_RETRY_BUDGET must be >= 0")
	}
	if cfg.MinExchanges <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_MIN_EXCHANGES must be > 0")
	}
	if cfg.MaxExchanges < cfg.MinExchanges {
		return Config{}, fmt.Errorf("INTERVIEWD_MAX_EXCHANGES must be >= INTERVIEWD_MIN_EXCHANGES")
	}
	if cfg.MaxSessions <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_MAX_SESSIONS must be > 0")
	}
	if cfg.MaxSessionDuration <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_MAX_SESSION_DURATION must be > 0")
	}
	if cfg.LiveMaxAudioFrameBytes <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_LIVE_MAX_AUDIO_FRAME_BYTES must be > 0")
	}
	if cfg.LiveMaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_LIVE_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LimitRPS < 0 || cfg.LimitBurst < 0 || cfg.LimitMaxConcurrentInterviews < 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_LIMIT_* values must be >= 0")
	}
	if cfg.LimitRPS > 0 && cfg.LimitBurst == 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_LIMIT_BURST must be > 0 when INTERVIEWD_LIMIT_RPS is set")
	}
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return Config{}, fmt.Errorf("INTERVIEWD_DB_PATH must not be empty")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("INTERVIEWD_API_KEYS must be set when INTERVIEWD_AUTH_MODE=required")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
