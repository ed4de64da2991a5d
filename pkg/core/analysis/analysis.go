// Package analysis turns finished interview transcripts into candidate
// reports. Providers are tried in order; the first success wins.
package analysis

import (
	"context"
	"log/slog"
	"strings"

	"github.com/stafflens/interviewd/pkg/core"
	"github.com/stafflens/interviewd/pkg/core/interview"
)

// Report is a normalized analysis result.
type Report struct {
	Provider       string             `json:"provider"`
	Scores         map[string]float64 `json:"scores"`
	FitScore       float64            `json:"fit_score"`
	Recommendation string             `json:"recommendation"`
	Summary        string             `json:"summary,omitempty"`
	Partial        bool               `json:"partial"`
}

// Provider scores one finished (possibly partial) interview.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, snapshot interview.Snapshot) (*Report, error)
}

// Sink receives the winning report. Typically the persistence layer.
type Sink interface {
	SaveReport(ctx context.Context, sessionID string, report *Report) error
}

// Handoff receives terminal transcripts from the session controller and
// fans them out to the first provider that can produce a report. It is
// invoked at most once per session; the controller never depends on its
// result.
type Handoff struct {
	providers []Provider
	sink      Sink
	logger    *slog.Logger
}

// NewHandoff creates a handoff over an ordered provider list. A nil sink
// just drops reports after logging them.
func NewHandoff(providers []Provider, sink Sink, logger *slog.Logger) *Handoff {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handoff{
		providers: providers,
		sink:      sink,
		logger:    logger,
	}
}

// Deliver implements interview.AnalysisHandoff.
func (h *Handoff) Deliver(ctx context.Context, snapshot interview.Snapshot, partial bool) error {
	if len(h.providers) == 0 {
		return core.NewServiceError("no analysis providers configured")
	}

	var lastErr error
	for _, provider := range h.providers {
		report, err := provider.Analyze(ctx, snapshot)
		if err != nil {
			h.logger.Warn("analysis provider failed",
				"provider", provider.Name(),
				"session_id", snapshot.ID,
				"error", err,
			)
			lastErr = err
			continue
		}
		report.Provider = provider.Name()
		report.Partial = partial
		h.logger.Info("analysis complete",
			"provider", provider.Name(),
			"session_id", snapshot.ID,
			"fit_score", report.FitScore,
			"recommendation", report.Recommendation,
			"partial", partial,
		)
		if h.sink != nil {
			if err := h.sink.SaveReport(ctx, snapshot.ID, report); err != nil {
				h.logger.Warn("report save failed", "session_id", snapshot.ID, "error", err)
			}
		}
		return nil
	}
	return lastErr
}

// NormalizeRecommendation maps free-form model output onto the fixed
// recommendation scale.
func NormalizeRecommendation(raw string) string {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", " ")
	normalized = strings.ReplaceAll(normalized, "_", " ")

	switch {
	case strings.Contains(normalized, "strong yes"), strings.Contains(normalized, "strong hire"):
		return "strong_yes"
	case strings.Contains(normalized, "strong no"), strings.Contains(normalized, "no hire"):
		return "strong_no"
	case strings.Contains(normalized, "yes"), strings.Contains(normalized, "hire"):
		return "yes"
	case strings.Contains(normalized, "no"):
		return "no"
	default:
		return "maybe"
	}
}

// ClampScore bounds a score to the 0..100 scale.
func ClampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// transcriptText renders a snapshot transcript as plain dialogue lines for
// prompt building.
func transcriptText(snapshot interview.Snapshot) string {
	var b strings.Builder
	for _, turn := range snapshot.Transcript {
		b.WriteString(string(turn.Role))
		b.WriteString(": ")
		b.WriteString(turn.Text)
		b.WriteString("\n")
	}
	return b.String()
}
