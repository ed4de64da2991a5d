package stt

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
	"github.com/stafflens/interviewd/pkg/core/interview"
)

const (
	deepgramBaseURL      = "https://api.deepgram.com"
	deepgramDefaultModel = "nova-2"
)

// Deepgram transcribes buffered PCM utterances via Deepgram's pre-recorded
// listen endpoint.
type Deepgram struct {
	apiKey     string
	model      string
	httpClient *http.Client
	baseURL    string
}

// NewDeepgram creates a Deepgram client.
func NewDeepgram(apiKey string) *Deepgram {
	return &Deepgram{
		apiKey:     strings.TrimSpace(apiKey),
		model:      deepgramDefaultModel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    deepgramBaseURL,
	}
}

// NewDeepgramWithClient creates a Deepgram client with a custom HTTP client.
func NewDeepgramWithClient(apiKey string, client *http.Client) *Deepgram {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Deepgram{
		apiKey:     strings.TrimSpace(apiKey),
		model:      deepgramDefaultModel,
		httpClient: client,
		baseURL:    deepgramBaseURL,
	}
}

// WithModel overrides the default model.
func (d *Deepgram) WithModel(model string) *Deepgram {
	if model = strings.TrimSpace(model); model != "" {
		d.model = model
	}
	return d
}

// WithBaseURL overrides the API base URL. Used in tests.
func (d *Deepgram) WithBaseURL(base string) *Deepgram {
	if base = strings.TrimSpace(base); base != "" {
		d.baseURL = strings.TrimRight(base, "/")
	}
	return d
}

// Name returns the provider identifier.
func (d *Deepgram) Name() string {
	return "deepgram"
}

// Transcribe converts one utterance of raw PCM to text.
// An empty recognition result maps to a no-speech error so the controller
// can drive its re-prompt edge instead of appending an empty turn.
func (d *Deepgram) Transcribe(ctx context.Context, audio []byte, format interview.AudioConfig) (string, error) {
	if len(audio) == 0 {
		return "", core.NewNoSpeechError("empty audio segment")
	}

	u, err := url.Parse(d.baseURL + "/v1/listen")
	if err != nil {
		return "", fmt.Errorf("deepgram url: %w", err)
	}
	q := u.Query()
	q.Set("model", d.model)
	q.Set("smart_format", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", fmt.Sprintf("%d", format.SampleRate))
	q.Set("channels", fmt.Sprintf("%d", format.Channels))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", "audio/raw")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", core.NewTimeoutError("deepgram request timed out")
		}
		return "", core.NewProviderError("deepgram", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", core.NewRateLimitError("deepgram rate limited", 1)
	case resp.StatusCode == http.StatusUnauthorized:
		return "", core.NewAuthenticationError("deepgram rejected the api key")
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", core.NewServiceError(fmt.Sprintf("deepgram error %d: %s", resp.StatusCode, string(body)))
	}

	var dgResp deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&dgResp); err != nil {
		return "", core.NewServiceError(fmt.Sprintf("parse deepgram response: %v", err))
	}

	text := strings.TrimSpace(dgResp.transcript())
	if text == "" {
		return "", core.NewNoSpeechError("no recognizable speech in utterance")
	}
	return text, nil
}

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (r deepgramResponse) transcript() string {
	if len(r.Results.Channels) == 0 || len(r.Results.Channels[0].Alternatives) == 0 {
		return ""
	}
	return r.Results.Channels[0].Alternatives[0].Transcript
}
