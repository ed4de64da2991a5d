package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stafflens/interviewd/pkg/core/analysis"
	"github.com/stafflens/interviewd/pkg/core/interview"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "interviews.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func finishedSnapshot(id string, endedAt time.Time) interview.Snapshot {
	return interview.Snapshot{
		ID:            id,
		ParticipantID: "user-1",
		ChannelID:     "chan-" + id,
		State:         "COMPLETED",
		EndReason:     "interview complete",
		TurnCount:     2,
		CreatedAt:     endedAt.Add(-5 * time.Minute),
		LastActivityAt: endedAt,
		Transcript: []interview.Turn{
			{Role: interview.RoleInterviewer, Text: "Welcome! Why do you want to join?", Timestamp: endedAt.Add(-4 * time.Minute)},
			{Role: interview.RoleParticipant, Text: "I like helping new players.", Timestamp: endedAt.Add(-3 * time.Minute)},
			{Role: interview.RoleInterviewer, Text: "Thanks for your time.", Timestamp: endedAt.Add(-time.Minute)},
		},
	}
}

func TestSaveAndReadSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ended := time.Now().Truncate(time.Millisecond)

	if err := s.SaveSession(ctx, finishedSnapshot("sess_a", ended)); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	recs, err := s.RecentSessions(ctx, 10)
	if err != nil {
		t.Fatalf("RecentSessions failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Got %d sessions, want 1", len(recs))
	}
	rec := recs[0]
	if rec.ID != "sess_a" || rec.State != "COMPLETED" || rec.TurnCount != 2 {
		t.Errorf("Record = %+v", rec)
	}
	if !rec.EndedAt.Equal(ended) {
		t.Errorf("EndedAt = %v, want %v", rec.EndedAt, ended)
	}

	turns, err := s.Transcript(ctx, "sess_a")
	if err != nil {
		t.Fatalf("Transcript failed: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("Got %d turns, want 3", len(turns))
	}
	if turns[0].Role != interview.RoleInterviewer || turns[1].Role != interview.RoleParticipant {
		t.Errorf("Turn order wrong: %v then %v", turns[0].Role, turns[1].Role)
	}
	if turns[1].Text != "I like helping new players." {
		t.Errorf("Turn text = %q", turns[1].Text)
	}
}

func TestSaveSessionIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	snap := finishedSnapshot("sess_b", time.Now())

	if err := s.SaveSession(ctx, snap); err != nil {
		t.Fatalf("First SaveSession failed: %v", err)
	}
	if err := s.SaveSession(ctx, snap); err != nil {
		t.Fatalf("Second SaveSession failed: %v", err)
	}

	turns, err := s.Transcript(ctx, "sess_b")
	if err != nil {
		t.Fatalf("Transcript failed: %v", err)
	}
	if len(turns) != 3 {
		t.Errorf("Got %d turns after re-save, want 3", len(turns))
	}
}

func TestRecentSessionsOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"sess_1", "sess_2", "sess_3"} {
		snap := finishedSnapshot(id, base.Add(time.Duration(i)*time.Minute))
		if err := s.SaveSession(ctx, snap); err != nil {
			t.Fatalf("SaveSession(%s) failed: %v", id, err)
		}
	}

	recs, err := s.RecentSessions(ctx, 2)
	if err != nil {
		t.Fatalf("RecentSessions failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Got %d sessions, want 2", len(recs))
	}
	if recs[0].ID != "sess_3" || recs[1].ID != "sess_2" {
		t.Errorf("Order = %s, %s; want newest first", recs[0].ID, recs[1].ID)
	}
}

func TestSaveAndReadReport(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveSession(ctx, finishedSnapshot("sess_r", time.Now())); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	in := &analysis.Report{
		Provider:       "local",
		Scores:         map[string]float64{"communication": 82, "reliability": 74},
		FitScore:       78,
		Recommendation: "yes",
		Summary:        "Communicates clearly.",
		Partial:        true,
	}
	if err := s.SaveReport(ctx, "sess_r", in); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}

	out, err := s.Report(ctx, "sess_r")
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if out == nil {
		t.Fatal("Report returned nil")
	}
	if out.Provider != "local" || out.FitScore != 78 || out.Recommendation != "yes" || !out.Partial {
		t.Errorf("Report = %+v", out)
	}
	if out.Scores["communication"] != 82 {
		t.Errorf("Scores = %+v", out.Scores)
	}
}

func TestReportMissing(t *testing.T) {
	s := openTestStore(t)

	out, err := s.Report(context.Background(), "sess_missing")
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if out != nil {
		t.Errorf("Got %+v, want nil for missing report", out)
	}
}
