package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/stafflens/interviewd/pkg/core"
	"github.com/stafflens/interviewd/pkg/core/interview"
)

const (
	openRouterBaseURL      = "https://openrouter.ai/api/v1"
	openRouterDefaultModel = "meta-llama/llama-3.3-70b-instruct"
)

const analysisPrompt = `You evaluate a voice interview transcript for a volunteer staff application. Score the candidate from 0 to 100 on each of: communication, experience, conflict_resolution, motivation, reliability. Then give an overall fit_score from 0 to 100 and a recommendation (strong_yes, yes, maybe, no, strong_no) with a two-sentence summary.

Respond with only a JSON object shaped like:
{"scores":{"communication":0,"experience":0,"conflict_resolution":0,"motivation":0,"reliability":0},"fit_score":0,"recommendation":"maybe","summary":""}

Transcript:
%s`

// OpenRouter is the remote fallback provider. It asks an LLM to score the
// transcript and parses the JSON it returns, tolerating markdown fences.
type OpenRouter struct {
	apiKey     string
	model      string
	httpClient *http.Client
	baseURL    string
	retries    uint64
}

// NewOpenRouter creates the remote analysis provider.
func NewOpenRouter(apiKey string) *OpenRouter {
	return &OpenRouter{
		apiKey:     strings.TrimSpace(apiKey),
		model:      openRouterDefaultModel,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    openRouterBaseURL,
		retries:    3,
	}
}

// WithModel overrides the default model.
func (o *OpenRouter) WithModel(model string) *OpenRouter {
	if model = strings.TrimSpace(model); model != "" {
		o.model = model
	}
	return o
}

// WithBaseURL overrides the API base URL. Used in tests.
func (o *OpenRouter) WithBaseURL(base string) *OpenRouter {
	if base = strings.TrimSpace(base); base != "" {
		o.baseURL = strings.TrimRight(base, "/")
	}
	return o
}

// Name returns the provider identifier.
func (o *OpenRouter) Name() string {
	return "openrouter"
}

// Analyze scores the transcript via chat completion.
func (o *OpenRouter) Analyze(ctx context.Context, snapshot interview.Snapshot) (*Report, error) {
	prompt := fmt.Sprintf(analysisPrompt, transcriptText(snapshot))

	var content string
	backoff := retry.WithMaxRetries(o.retries, retry.NewExponential(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var attemptErr error
		content, attemptErr = o.complete(ctx, prompt)
		if attemptErr != nil && core.IsRetryableError(attemptErr) {
			return retry.RetryableError(attemptErr)
		}
		return attemptErr
	})
	if err != nil {
		return nil, err
	}

	return parseReportJSON(content)
}

func (o *OpenRouter) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model": o.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", core.NewTimeoutError("openrouter analysis timed out")
		}
		return "", core.NewProviderError("openrouter", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", core.NewRateLimitError("openrouter rate limited", 2)
	case resp.StatusCode >= 500:
		return "", core.NewServiceError(fmt.Sprintf("openrouter error %d", resp.StatusCode))
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", core.NewInvalidRequestError(fmt.Sprintf("openrouter error %d: %s", resp.StatusCode, string(msg)))
	}

	var chatResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", core.NewServiceError(fmt.Sprintf("parse openrouter response: %v", err))
	}
	if len(chatResp.Choices) == 0 {
		return "", core.NewServiceError("openrouter returned no choices")
	}
	return chatResp.Choices[0].Message.Content, nil
}

// parseReportJSON extracts the report object from model output, which may
// wrap the JSON in markdown fences or surrounding prose.
func parseReportJSON(content string) (*Report, error) {
	raw := extractJSON(content)
	if raw == "" {
		return nil, core.NewServiceError("no JSON object in analysis reply")
	}

	var parsed struct {
		Scores         map[string]float64 `json:"scores"`
		FitScore       float64            `json:"fit_score"`
		Recommendation string             `json:"recommendation"`
		Summary        string             `json:"summary"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, core.NewServiceError(fmt.Sprintf("parse analysis JSON: %v", err))
	}

	scores := make(map[string]float64, len(parsed.Scores))
	for trait, score := range parsed.Scores {
		scores[trait] = ClampScore(score)
	}
	return &Report{
		Scores:         scores,
		FitScore:       ClampScore(parsed.FitScore),
		Recommendation: NormalizeRecommendation(parsed.Recommendation),
		Summary:        strings.TrimSpace(parsed.Summary),
	}, nil
}

// extractJSON returns the first top-level {...} span in the content.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}
