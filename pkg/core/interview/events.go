package interview

import "time"

// Event is the interface for all session events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// SessionCreatedEvent is emitted when a session is registered for a channel.
type SessionCreatedEvent struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	ChannelID     string `json:"channel_id"`
}

func (e *SessionCreatedEvent) EventType() string { return "session.created" }

// StateChangedEvent is emitted on every state transition.
type StateChangedEvent struct {
	From SessionState `json:"from"`
	To   SessionState `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// TurnAppendedEvent is emitted when a turn is appended to the transcript.
type TurnAppendedEvent struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	TurnCount int       `json:"turn_count"`
}

func (e *TurnAppendedEvent) EventType() string { return "turn.appended" }

// InterviewerLineEvent carries the cleaned interviewer text for display,
// emitted alongside the synthesized audio.
type InterviewerLineEvent struct {
	Text string `json:"text"`
}

func (e *InterviewerLineEvent) EventType() string { return "interviewer.line" }

// InterviewerAudioEvent carries a chunk of synthesized interviewer audio.
type InterviewerAudioEvent struct {
	Audio []byte `json:"-"`
}

func (e *InterviewerAudioEvent) EventType() string { return "interviewer.audio" }

// UtteranceCapturedEvent is emitted when the endpointer flushes an utterance.
type UtteranceCapturedEvent struct {
	DurationMs int  `json:"duration_ms"`
	Forced     bool `json:"forced,omitempty"`
}

func (e *UtteranceCapturedEvent) EventType() string { return "utterance.captured" }

// NoSpeechEvent is emitted when the wait timeout elapses without voiced audio.
type NoSpeechEvent struct {
	WaitedMs int `json:"waited_ms"`
}

func (e *NoSpeechEvent) EventType() string { return "utterance.no_speech" }

// RepromptEvent is emitted when a retry is consumed and the participant is re-asked.
type RepromptEvent struct {
	Attempt int    `json:"attempt"`
	Reason  string `json:"reason"`
}

func (e *RepromptEvent) EventType() string { return "session.reprompt" }

// SessionEndedEvent is emitted exactly once when the session reaches a terminal state.
type SessionEndedEvent struct {
	State     SessionState `json:"state"`
	Reason    string       `json:"reason,omitempty"`
	TurnCount int          `json:"turn_count"`
}

func (e *SessionEndedEvent) EventType() string { return "session.ended" }

// ErrorEvent reports a non-fatal error surfaced to observers.
type ErrorEvent struct {
	Message string `json:"message"`
}

func (e *ErrorEvent) EventType() string { return "error" }
