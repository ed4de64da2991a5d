package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/stafflens/interviewd/internal/store"
	"github.com/stafflens/interviewd/pkg/core"
	"github.com/stafflens/interviewd/pkg/core/analysis"
	"github.com/stafflens/interviewd/pkg/core/interview"
	"github.com/stafflens/interviewd/pkg/gateway/mw"
)

// InterviewReader is the persisted-history surface of internal/store.
type InterviewReader interface {
	RecentSessions(ctx context.Context, limit int) ([]store.SessionRecord, error)
	Transcript(ctx context.Context, sessionID string) ([]interview.Turn, error)
	Report(ctx context.Context, sessionID string) (*analysis.Report, error)
}

// InterviewsListHandler returns recently finished interviews from storage.
type InterviewsListHandler struct {
	Store InterviewReader
}

func (h InterviewsListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			writeCoreErrorJSON(w, reqID, &core.Error{
				Type:    core.ErrInvalidRequest,
				Message: "limit must be an integer in 1..200",
				Param:   "limit",
			}, http.StatusBadRequest)
			return
		}
		limit = n
	}

	recs, err := h.Store.RecentSessions(r.Context(), limit)
	if err != nil {
		writeError(w, reqID, err)
		return
	}
	type listResp struct {
		Interviews []store.SessionRecord `json:"interviews"`
		Count      int                   `json:"count"`
	}
	if recs == nil {
		recs = []store.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, listResp{Interviews: recs, Count: len(recs)})
}

// InterviewGetHandler returns one finished interview's transcript and, when
// available, its analysis report.
type InterviewGetHandler struct {
	Store InterviewReader
}

func (h InterviewGetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	sessionID := strings.TrimSpace(r.PathValue("id"))
	if sessionID == "" {
		writeCoreErrorJSON(w, reqID, &core.Error{
			Type:    core.ErrInvalidRequest,
			Message: "missing interview id",
			Param:   "id",
		}, http.StatusBadRequest)
		return
	}

	transcript, err := h.Store.Transcript(r.Context(), sessionID)
	if err != nil {
		writeError(w, reqID, err)
		return
	}
	if len(transcript) == 0 {
		writeCoreErrorJSON(w, reqID, &core.Error{
			Type:    core.ErrNotFound,
			Message: "interview not found",
			Param:   "id",
		}, http.StatusNotFound)
		return
	}

	report, err := h.Store.Report(r.Context(), sessionID)
	if err != nil {
		writeError(w, reqID, err)
		return
	}

	type getResp struct {
		ID         string           `json:"id"`
		Transcript []interview.Turn `json:"transcript"`
		Report     *analysis.Report `json:"report,omitempty"`
	}
	writeJSON(w, http.StatusOK, getResp{ID: sessionID, Transcript: transcript, Report: report})
}
