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

	"github.com/stafflens/interviewd/pkg/core"
	"github.com/stafflens/interviewd/pkg/core/interview"
)

// Local scores transcripts against a self-hosted trait-analysis endpoint.
// It is cheap and private, so it runs first; connection failures simply
// fall through to the next provider in the handoff order.
type Local struct {
	baseURL    string
	httpClient *http.Client
}

// NewLocal creates a local analysis provider for the given endpoint.
func NewLocal(baseURL string) *Local {
	return &Local{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// Name returns the provider identifier.
func (l *Local) Name() string {
	return "local"
}

type localRequest struct {
	SessionID  string           `json:"session_id"`
	Transcript []interview.Turn `json:"transcript"`
}

type localResponse struct {
	Scores         map[string]float64 `json:"scores"`
	FitScore       float64            `json:"fit_score"`
	Recommendation string             `json:"recommendation"`
	Summary        string             `json:"summary,omitempty"`
}

// Analyze posts the transcript to the local endpoint.
func (l *Local) Analyze(ctx context.Context, snapshot interview.Snapshot) (*Report, error) {
	if l.baseURL == "" {
		return nil, core.NewServiceError("local analysis endpoint not configured")
	}

	body, err := json.Marshal(localRequest{SessionID: snapshot.ID, Transcript: snapshot.Transcript})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, core.NewTimeoutError("local analysis timed out")
		}
		// Endpoint down or unreachable; the handoff falls through.
		return nil, core.NewProviderError("local", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, core.NewServiceError(fmt.Sprintf("local analysis error %d: %s", resp.StatusCode, string(msg)))
	}

	var localResp localResponse
	if err := json.NewDecoder(resp.Body).Decode(&localResp); err != nil {
		return nil, core.NewServiceError(fmt.Sprintf("parse local analysis response: %v", err))
	}

	scores := make(map[string]float64, len(localResp.Scores))
	for trait, score := range localResp.Scores {
		scores[trait] = ClampScore(score)
	}
	return &Report{
		Scores:         scores,
		FitScore:       ClampScore(localResp.FitScore),
		Recommendation: NormalizeRecommendation(localResp.Recommendation),
		Summary:        localResp.Summary,
	}, nil
}
