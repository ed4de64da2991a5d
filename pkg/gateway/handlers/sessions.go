package handlers

import (
	"net/http"
	"strings"

	"github.com/stafflens/interviewd/pkg/core"
	"github.com/stafflens/interviewd/pkg/core/interview"
	"github.com/stafflens/interviewd/pkg/gateway/mw"
)

// SessionsListHandler returns point-in-time snapshots of every live session,
// oldest first. Snapshots are copies; callers cannot mutate a running
// interview through this surface.
type SessionsListHandler struct {
	Registry *interview.Registry
}

func (h SessionsListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type listResp struct {
		Sessions []interview.Snapshot `json:"sessions"`
		Count    int                  `json:"count"`
	}
	snaps := h.Registry.Snapshots()
	writeJSON(w, http.StatusOK, listResp{Sessions: snaps, Count: len(snaps)})
}

// SessionGetHandler returns the snapshot for one channel's live session.
type SessionGetHandler struct {
	Registry *interview.Registry
}

func (h SessionGetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	channelID := strings.TrimSpace(r.PathValue("channel"))
	if channelID == "" {
		writeCoreErrorJSON(w, reqID, &core.Error{
			Type:    core.ErrInvalidRequest,
			Message: "missing channel",
			Param:   "channel",
		}, http.StatusBadRequest)
		return
	}

	snap, ok := h.Registry.Snapshot(channelID)
	if !ok {
		writeCoreErrorJSON(w, reqID, &core.Error{
			Type:    core.ErrNotFound,
			Message: "no live session for channel",
			Param:   "channel",
		}, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// SessionAbortHandler cancels one channel's live session. Cancellation is a
// request; the session resolves to Aborted on its own goroutine.
type SessionAbortHandler struct {
	Registry *interview.Registry
}

func (h SessionAbortHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	channelID := strings.TrimSpace(r.PathValue("channel"))
	if channelID == "" {
		writeCoreErrorJSON(w, reqID, &core.Error{
			Type:    core.ErrInvalidRequest,
			Message: "missing channel",
			Param:   "channel",
		}, http.StatusBadRequest)
		return
	}

	if !h.Registry.Abort(channelID) {
		writeCoreErrorJSON(w, reqID, &core.Error{
			Type:    core.ErrNotFound,
			Message: "no live session for channel",
			Param:   "channel",
		}, http.StatusNotFound)
		return
	}

	type abortResp struct {
		Aborted bool   `json:"aborted"`
		Channel string `json:"channel"`
	}
	writeJSON(w, http.StatusAccepted, abortResp{Aborted: true, Channel: channelID})
}
