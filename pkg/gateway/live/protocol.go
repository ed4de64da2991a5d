package live

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stafflens/interviewd/pkg/core/interview"
)

const ProtocolVersion1 = "1"

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// ClientJoin is the first text frame on a live connection. The channel comes
// from the URL; join carries the participant identity and audio shape.
type ClientJoin struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ParticipantID   string `json:"participant_id"`
	SampleRateHz    int    `json:"sample_rate_hz,omitempty"`
	Channels        int    `json:"channels,omitempty"`
}

// ClientLeave ends the interview deliberately. Closing the socket has the
// same effect.
type ClientLeave struct {
	Type string `json:"type"`
}

// DecodeClientMessage parses one inbound text frame.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "join":
		var msg ClientJoin
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid join frame", "")
		}
		if err := ValidateJoin(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "leave":
		var msg ClientLeave
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid leave frame", "")
		}
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

func ValidateJoin(msg ClientJoin) error {
	if strings.TrimSpace(msg.ProtocolVersion) == "" {
		return badRequest("join.protocol_version is required", "protocol_version")
	}
	if msg.ProtocolVersion != ProtocolVersion1 {
		return badRequest("unsupported protocol_version", "protocol_version")
	}
	if strings.TrimSpace(msg.ParticipantID) == "" {
		return badRequest("join.participant_id is required", "participant_id")
	}
	if msg.SampleRateHz < 0 {
		return badRequest("join.sample_rate_hz must be >= 0", "sample_rate_hz")
	}
	if msg.Channels < 0 {
		return badRequest("join.channels must be >= 0", "channels")
	}
	return nil
}

// ServerJoined acknowledges a join and pins the session's audio format.
type ServerJoined struct {
	Type            string                `json:"type"`
	ProtocolVersion string                `json:"protocol_version"`
	SessionID       string                `json:"session_id"`
	Audio           interview.AudioConfig `json:"audio"`
	Limits          ServerLimits          `json:"limits"`
}

type ServerLimits struct {
	MaxAudioFrameBytes int `json:"max_audio_frame_bytes"`
	SilenceThresholdMs int `json:"silence_threshold_ms"`
	MaxUtteranceMs     int `json:"max_utterance_ms"`
}

// ServerEvent wraps a session event for the wire. Audio payloads travel as a
// separate binary frame announced by an audio header event.
type ServerEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	State     string `json:"state,omitempty"`
	From      string `json:"from,omitempty"`
	Role      string `json:"role,omitempty"`
	Text      string `json:"text,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Attempt   int    `json:"attempt,omitempty"`
	Bytes     int    `json:"bytes,omitempty"`
}

// ServerError reports a failure to the client.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Close   bool   `json:"close,omitempty"`
}
