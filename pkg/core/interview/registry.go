package interview

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/stafflens/interviewd/pkg/core"
)

// Registry is the process-wide session lifecycle manager. It enforces the
// one-session-per-channel invariant and the concurrency ceiling, and drains
// live sessions at shutdown.
type Registry struct {
	maxSessions int
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*registeredSession
	wg       sync.WaitGroup
	closed   bool
}

type registeredSession struct {
	session *Session
	once    sync.Once
}

// NewRegistry creates an empty registry. maxSessions caps the number of
// simultaneously active sessions; zero or negative means no ceiling.
func NewRegistry(maxSessions int, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		maxSessions: maxSessions,
		logger:      logger,
		sessions:    make(map[string]*registeredSession),
	}
}

// Create registers a new session for the channel.
// Fails with a duplicate-session error if the channel already has one, and
// with a capacity error once the ceiling is reached.
func (r *Registry) Create(participantID, channelID string, config SessionConfig) (*Session, error) {
	if err := config.Validate(); err != nil {
		return nil, core.NewInvalidRequestError(err.Error())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, core.NewServiceError("registry is shutting down")
	}
	if _, exists := r.sessions[channelID]; exists {
		return nil, core.NewDuplicateSessionError(channelID)
	}
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		return nil, core.NewCapacityExceededError(r.maxSessions)
	}

	session := newSession(participantID, channelID, config)
	r.sessions[channelID] = &registeredSession{session: session}
	r.wg.Add(1)

	r.logger.Info("session created",
		"session_id", session.ID,
		"participant_id", participantID,
		"channel_id", channelID,
		"active", len(r.sessions),
	)
	return session, nil
}

// Get returns the live session for a channel, if any. Reserved for the
// transport that owns the session; administrative callers use snapshots.
func (r *Registry) Get(channelID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[channelID]
	if !ok {
		return nil, false
	}
	return entry.session, true
}

// Snapshot returns an immutable copy of the channel's session state.
func (r *Registry) Snapshot(channelID string) (Snapshot, bool) {
	session, ok := r.Get(channelID)
	if !ok {
		return Snapshot{}, false
	}
	return session.Snapshot(), true
}

// Snapshots returns copies of every active session, oldest first.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, entry := range r.sessions {
		sessions = append(sessions, entry.session)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Abort signals cancellation on the channel's session. It reports whether a
// session existed; a missing session is a no-op, not an error.
func (r *Registry) Abort(channelID string) bool {
	session, ok := r.Get(channelID)
	if !ok {
		return false
	}
	r.logger.Info("session abort requested", "session_id", session.ID, "channel_id", channelID)
	session.Cancel()
	return true
}

// Remove drops the channel's session from the registry. Idempotent; called
// once a session reaches a terminal state.
func (r *Registry) Remove(channelID string) {
	r.mu.Lock()
	entry, ok := r.sessions[channelID]
	if ok {
		delete(r.sessions, channelID)
	}
	r.mu.Unlock()

	if ok {
		entry.once.Do(r.wg.Done)
	}
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CancelAll requests cancellation on every live session. Used at shutdown.
func (r *Registry) CancelAll() (cancelled int) {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, entry := range r.sessions {
		sessions = append(sessions, entry.session)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Cancel()
		cancelled++
	}
	return cancelled
}

// Wait blocks until every registered session has been removed, or until ctx
// is done. Returns true on a clean drain.
func (r *Registry) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
