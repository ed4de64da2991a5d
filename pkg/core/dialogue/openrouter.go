// Package dialogue generates the interviewer's next line from the
// transcript so far.
package dialogue

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

	// Interviewer questions are short by design; a tight token cap keeps
	// replies conversational and bounds cost per turn.
	defaultMaxTokens = 200
)

// OpenRouter produces interviewer lines via the OpenRouter chat completions
// API. Transient failures are retried with backoff; the controller
// guarantees at most one outstanding call per session.
type OpenRouter struct {
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
	baseURL    string
	retries    uint64
}

// NewOpenRouter creates an OpenRouter dialogue client.
func NewOpenRouter(apiKey string) *OpenRouter {
	return &OpenRouter{
		apiKey:     strings.TrimSpace(apiKey),
		model:      openRouterDefaultModel,
		maxTokens:  defaultMaxTokens,
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

// WithHTTPClient overrides the HTTP client.
func (o *OpenRouter) WithHTTPClient(client *http.Client) *OpenRouter {
	if client != nil {
		o.httpClient = client
	}
	return o
}

// Name returns the provider identifier.
func (o *OpenRouter) Name() string {
	return "openrouter"
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Reply generates the next interviewer utterance.
func (o *OpenRouter) Reply(ctx context.Context, instructions string, transcript []interview.Turn) (string, error) {
	messages := make([]chatMessage, 0, len(transcript)+1)
	if instructions != "" {
		messages = append(messages, chatMessage{Role: "system", Content: instructions})
	}
	for _, turn := range transcript {
		role := "user"
		if turn.Role == interview.RoleInterviewer {
			role = "assistant"
		}
		messages = append(messages, chatMessage{Role: role, Content: turn.Text})
	}
	if len(transcript) == 0 {
		messages = append(messages, chatMessage{Role: "user", Content: "Please greet the applicant and begin the interview."})
	}

	body, err := json.Marshal(chatRequest{
		Model:     o.model,
		Messages:  messages,
		MaxTokens: o.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var reply string
	backoff := retry.WithMaxRetries(o.retries, retry.NewFibonacci(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var attemptErr error
		reply, attemptErr = o.complete(ctx, body)
		if attemptErr != nil && core.IsRetryableError(attemptErr) {
			return retry.RetryableError(attemptErr)
		}
		return attemptErr
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (o *OpenRouter) complete(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", core.NewTimeoutError("openrouter request timed out")
		}
		return "", core.NewProviderError("openrouter", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", core.NewRateLimitError("openrouter rate limited", 2)
	case resp.StatusCode == http.StatusUnauthorized:
		return "", core.NewAuthenticationError("openrouter rejected the api key")
	case resp.StatusCode >= 500:
		return "", core.NewServiceError(fmt.Sprintf("openrouter error %d", resp.StatusCode))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", core.NewInvalidRequestError(fmt.Sprintf("openrouter error %d: %s", resp.StatusCode, string(body)))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", core.NewServiceError(fmt.Sprintf("parse openrouter response: %v", err))
	}
	if chatResp.Error != nil {
		return "", core.NewServiceError("openrouter: " + chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", core.NewServiceError("openrouter returned no choices")
	}

	reply := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if reply == "" {
		return "", core.NewServiceError("openrouter returned an empty reply")
	}
	return reply, nil
}
