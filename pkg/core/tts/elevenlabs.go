// Package tts synthesizes interviewer lines into playable audio.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stafflens/interviewd/pkg/core"
)

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io"
	elevenLabsDefaultModel = "eleven_flash_v2_5"
	elevenLabsDefaultVoice = "21m00Tcm4TlvDq8ikWAM"

	// pcm_16000 matches the transport's playback format so no resampling
	// happens between synthesis and the participant.
	elevenLabsOutputFormat = "pcm_16000"
)

// ElevenLabs synthesizes speech via the ElevenLabs REST API.
type ElevenLabs struct {
	apiKey     string
	voiceID    string
	modelID    string
	httpClient *http.Client
	baseURL    string
}

// NewElevenLabs creates an ElevenLabs synthesis client.
func NewElevenLabs(apiKey string) *ElevenLabs {
	return &ElevenLabs{
		apiKey:     strings.TrimSpace(apiKey),
		voiceID:    elevenLabsDefaultVoice,
		modelID:    elevenLabsDefaultModel,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    elevenLabsBaseURL,
	}
}

// WithVoice overrides the default voice.
func (e *ElevenLabs) WithVoice(voiceID string) *ElevenLabs {
	if voiceID = strings.TrimSpace(voiceID); voiceID != "" {
		e.voiceID = voiceID
	}
	return e
}

// WithBaseURL overrides the API base URL. Used in tests.
func (e *ElevenLabs) WithBaseURL(base string) *ElevenLabs {
	if base = strings.TrimSpace(base); base != "" {
		e.baseURL = strings.TrimRight(base, "/")
	}
	return e
}

// Name returns the provider identifier.
func (e *ElevenLabs) Name() string {
	return "elevenlabs"
}

type synthesisRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Synthesize converts text into 16kHz mono PCM.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("text must not be empty", "text")
	}
	if e.apiKey == "" {
		return nil, core.NewAuthenticationError("elevenlabs api key is required")
	}

	body, err := json.Marshal(synthesisRequest{Text: text, ModelID: e.modelID})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	reqURL := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		e.baseURL, url.PathEscape(e.voiceID), elevenLabsOutputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, core.NewTimeoutError("elevenlabs request timed out")
		}
		return nil, core.NewProviderError("elevenlabs", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, core.NewRateLimitError("elevenlabs rate limited", 1)
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, core.NewAuthenticationError("elevenlabs rejected the api key")
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, core.NewServiceError(fmt.Sprintf("elevenlabs error %d: %s", resp.StatusCode, string(msg)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewProviderError("elevenlabs", err)
	}
	if len(audio) == 0 {
		return nil, core.NewServiceError("elevenlabs returned no audio")
	}
	return audio, nil
}
