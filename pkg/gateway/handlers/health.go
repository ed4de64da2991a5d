package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/stafflens/interviewd/pkg/gateway/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config config.Config
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK       bool     `json:"ok"`
		AuthMode string   `json:"auth_mode"`
		Issues   []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	if h.Config.AuthMode == config.AuthModeRequired && len(h.Config.APIKeys) == 0 {
		issues = append(issues, "auth_mode=required but no api keys configured")
	}
	if h.Config.DeepgramAPIKey == "" {
		issues = append(issues, "deepgram api key not configured")
	}
	if h.Config.OpenRouterAPIKey == "" {
		issues = append(issues, "openrouter api key not configured")
	}
	if h.Config.ElevenLabsAPIKey == "" {
		issues = append(issues, "elevenlabs api key not configured")
	}
	if h.Config.SilenceThreshold <= 0 || h.Config.NoSpeechTimeout <= 0 {
		issues = append(issues, "endpointing durations must be > 0")
	}
	if h.Config.MaxSessions <= 0 {
		issues = append(issues, "max sessions must be > 0")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:       ok,
		AuthMode: string(h.Config.AuthMode),
		Issues:   issues,
	})
}
