package interview

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Turn is one utterance by either party, recorded as a single transcript entry.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is one end-to-end interview tied to a channel and participant.
//
// The transcript and state are mutated only by the session's own controller
// goroutine; everything else reads point-in-time snapshots.
type Session struct {
	ID            string
	ParticipantID string
	ChannelID     string

	config SessionConfig

	mu             sync.Mutex
	state          SessionState
	transcript     []Turn
	turnCount      int
	createdAt      time.Time
	lastActivityAt time.Time
	endReason      string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newSession(participantID, channelID string, config SessionConfig) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	return &Session{
		ID:             "sess_" + uuid.NewString(),
		ParticipantID:  participantID,
		ChannelID:      channelID,
		config:         config,
		state:          StateInitializing,
		createdAt:      now,
		lastActivityAt: now,
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
}

// Config returns the immutable session configuration.
func (s *Session) Config() SessionConfig {
	return s.config
}

// Context returns the session-scoped cancellation context. It is done once
// cancellation has been requested, whether by abort, departure, or shutdown.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Cancel requests cancellation. Safe to call more than once and after the
// session has already reached a terminal state.
func (s *Session) Cancel() {
	s.cancel()
}

// Cancelled reports whether cancellation has been requested.
func (s *Session) Cancelled() bool {
	return s.ctx.Err() != nil
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// State returns the current state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TurnCount returns the number of completed participant/interviewer pairs.
func (s *Session) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnCount
}

// setState transitions to a new state and returns the previous one.
// Terminal states are sticky: once Completed or Aborted, no further
// transitions are applied.
func (s *Session) setState(to SessionState) (from SessionState, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from = s.state
	if from.IsTerminal() || from == to {
		return from, false
	}
	s.state = to
	s.lastActivityAt = time.Now()
	return from, true
}

// appendTurn appends one transcript entry. Interviewer turns close a pair,
// so the pair counter advances on the interviewer side.
func (s *Session) appendTurn(role Role, text string) Turn {
	turn := Turn{Role: role, Text: text, Timestamp: time.Now()}
	s.mu.Lock()
	s.transcript = append(s.transcript, turn)
	if role == RoleInterviewer {
		s.turnCount++
	}
	s.lastActivityAt = turn.Timestamp
	s.mu.Unlock()
	return turn
}

// setEndReason records why the session ended; shown on the admin surface.
func (s *Session) setEndReason(reason string) {
	s.mu.Lock()
	s.endReason = reason
	s.mu.Unlock()
}

// markDone closes the done channel exactly once.
func (s *Session) markDone() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// Transcript returns a copy of the transcript.
func (s *Session) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Snapshot is an immutable point-in-time copy of a session for read-only
// callers. Mutating a snapshot never affects the live session.
type Snapshot struct {
	ID             string    `json:"id"`
	ParticipantID  string    `json:"participant_id"`
	ChannelID      string    `json:"channel_id"`
	State          string    `json:"state"`
	Transcript     []Turn    `json:"transcript"`
	TurnCount      int       `json:"turn_count"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	EndReason      string    `json:"end_reason,omitempty"`
}

// Snapshot returns an immutable copy of the session's current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	transcript := make([]Turn, len(s.transcript))
	copy(transcript, s.transcript)

	return Snapshot{
		ID:             s.ID,
		ParticipantID:  s.ParticipantID,
		ChannelID:      s.ChannelID,
		State:          s.state.String(),
		Transcript:     transcript,
		TurnCount:      s.turnCount,
		CreatedAt:      s.createdAt,
		LastActivityAt: s.lastActivityAt,
		EndReason:      s.endReason,
	}
}
