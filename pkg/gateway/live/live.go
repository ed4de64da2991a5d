// Package live carries one interview over a WebSocket: a JSON join, binary
// PCM frames inbound, JSON events plus binary synthesized audio outbound.
// The socket closing before the interview ends is a participant departure
// and aborts the session.
package live

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stafflens/interviewd/pkg/core"
	"github.com/stafflens/interviewd/pkg/core/interview"
	"github.com/stafflens/interviewd/pkg/gateway/metrics"
)

const joinTimeout = 10 * time.Second

// SessionSaver persists a finished session. Implemented by internal/store.
type SessionSaver interface {
	SaveSession(ctx context.Context, snap interview.Snapshot) error
}

// HandlerConfig carries the transport and session tuning for the live
// endpoint.
type HandlerConfig struct {
	Base                interview.SessionConfig
	MaxAudioFrameBytes  int
	MaxJSONMessageBytes int64
	PingInterval        time.Duration
	WriteTimeout        time.Duration
	MaxSessionDuration  time.Duration
}

// Handler upgrades /v1/channels/{channel}/audio and runs the interview over
// the socket.
type Handler struct {
	cfg      HandlerConfig
	registry *interview.Registry
	clients  interview.Clients
	metrics  *metrics.Metrics
	saver    SessionSaver
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(cfg HandlerConfig, registry *interview.Registry, clients interview.Clients, m *metrics.Metrics, saver SessionSaver, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAudioFrameBytes <= 0 {
		cfg.MaxAudioFrameBytes = 8192
	}
	if cfg.MaxJSONMessageBytes <= 0 {
		cfg.MaxJSONMessageBytes = 64 * 1024
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Handler{
		cfg:      cfg,
		registry: registry,
		clients:  clients,
		metrics:  m,
		saver:    saver,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			// Origin allowlisting happens in the CORS middleware; auth has
			// already run by the time we upgrade.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	channelID := strings.TrimSpace(r.PathValue("channel"))
	if channelID == "" {
		http.Error(w, "missing channel", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("websocket upgrade failed", "channel_id", channelID, "error", err)
		return
	}
	c := newConn(ws, h.cfg.WriteTimeout)

	join, err := h.readJoin(ws)
	if err != nil {
		h.rejectAndClose(c, err)
		return
	}

	session, err := h.registry.Create(join.ParticipantID, channelID, h.cfg.Base)
	if err != nil {
		h.rejectAndClose(c, err)
		return
	}

	started := time.Now()
	if h.metrics != nil {
		h.metrics.RecordSessionStart()
	}

	controller := interview.NewTurnController(session, h.clients, &wsPlayback{conn: c, metrics: h.metrics}, h.logger)
	controller.SetOnTerminal(func(s *interview.Session) {
		h.registry.Remove(s.ChannelID)
		snap := s.Snapshot()
		if h.metrics != nil {
			h.metrics.RecordSessionEnd(outcomeFor(snap), time.Since(started))
		}
		if h.saver != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := h.saver.SaveSession(ctx, snap); err != nil {
				h.logger.Warn("session persist failed", "session_id", snap.ID, "error", err)
			}
		}
	})

	if err := c.WriteJSON(ServerJoined{
		Type:            "joined",
		ProtocolVersion: ProtocolVersion1,
		SessionID:       session.ID,
		Audio:           h.cfg.Base.Audio,
		Limits: ServerLimits{
			MaxAudioFrameBytes: h.cfg.MaxAudioFrameBytes,
			SilenceThresholdMs: h.cfg.Base.Endpointing.SilenceThresholdMs,
			MaxUtteranceMs:     h.cfg.Base.Endpointing.MaxUtteranceMs,
		},
	}); err != nil {
		session.Cancel()
		h.registry.Remove(channelID)
		c.Close(websocket.CloseInternalServerErr, "joined write failed")
		return
	}

	if h.cfg.MaxSessionDuration > 0 {
		wallClock := time.AfterFunc(h.cfg.MaxSessionDuration, session.Cancel)
		defer wallClock.Stop()
	}

	go controller.Run()
	go h.pumpEvents(controller, c)
	go h.pingLoop(session, c)

	h.readLoop(ws, session, controller)

	// The read loop only returns once the socket is dead or the participant
	// left; either way the session must not outlive the connection.
	session.Cancel()
	select {
	case <-session.Done():
	case <-time.After(h.cfg.WriteTimeout):
	}
	c.Close(websocket.CloseNormalClosure, "")
}

// readJoin waits for the initial join frame.
func (h *Handler) readJoin(ws *websocket.Conn) (ClientJoin, error) {
	ws.SetReadLimit(h.cfg.MaxJSONMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(joinTimeout))
	defer ws.SetReadDeadline(time.Time{})

	msgType, data, err := ws.ReadMessage()
	if err != nil {
		return ClientJoin{}, badRequest("join frame not received", "")
	}
	if msgType != websocket.TextMessage {
		return ClientJoin{}, badRequest("first frame must be a join message", "")
	}
	msg, err := DecodeClientMessage(data)
	if err != nil {
		return ClientJoin{}, err
	}
	join, ok := msg.(ClientJoin)
	if !ok {
		return ClientJoin{}, badRequest("first frame must be a join message", "type")
	}
	return join, nil
}

// readLoop feeds participant audio to the controller until the socket closes
// or the participant leaves.
func (h *Handler) readLoop(ws *websocket.Conn, session *interview.Session, controller *interview.TurnController) {
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("read loop ended", "session_id", session.ID, "error", err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if len(data) > h.cfg.MaxAudioFrameBytes {
				h.logger.Warn("oversized audio frame dropped", "session_id", session.ID, "bytes", len(data))
				continue
			}
			if h.metrics != nil {
				h.metrics.RecordAudio("in", len(data))
			}
			controller.PushFrame(data)
		case websocket.TextMessage:
			msg, err := DecodeClientMessage(data)
			if err != nil {
				h.logger.Debug("bad client frame", "session_id", session.ID, "error", err)
				continue
			}
			if _, ok := msg.(ClientLeave); ok {
				return
			}
		}
	}
}

// pumpEvents forwards session events to the socket until the controller
// closes the stream.
func (h *Handler) pumpEvents(controller *interview.TurnController, c *conn) {
	sessionID := controller.Session().ID
	for event := range controller.Events() {
		var err error
		switch e := event.(type) {
		case *interview.StateChangedEvent:
			err = c.WriteJSON(ServerEvent{Type: e.EventType(), SessionID: sessionID, From: e.From.String(), State: e.To.String()})
		case *interview.TurnAppendedEvent:
			err = c.WriteJSON(ServerEvent{Type: e.EventType(), SessionID: sessionID, Role: string(e.Role), Text: e.Text})
			if h.metrics != nil && e.Role == interview.RoleInterviewer {
				h.metrics.RecordTurn()
			}
		case *interview.InterviewerLineEvent:
			err = c.WriteJSON(ServerEvent{Type: e.EventType(), SessionID: sessionID, Text: e.Text})
		case *interview.InterviewerAudioEvent:
			// Delivered by playback; nothing extra to send here.
		case *interview.NoSpeechEvent:
			err = c.WriteJSON(ServerEvent{Type: e.EventType(), SessionID: sessionID})
			if h.metrics != nil {
				h.metrics.RecordNoSpeech()
			}
		case *interview.RepromptEvent:
			err = c.WriteJSON(ServerEvent{Type: e.EventType(), SessionID: sessionID, Attempt: e.Attempt, Reason: e.Reason})
			if h.metrics != nil {
				h.metrics.RecordReprompt()
			}
		case *interview.SessionEndedEvent:
			err = c.WriteJSON(ServerEvent{Type: e.EventType(), SessionID: sessionID, State: e.State.String(), Reason: e.Reason})
		case *interview.ErrorEvent:
			err = c.WriteJSON(ServerError{Type: "error", Code: "session_error", Message: e.Message})
		default:
			err = c.WriteJSON(ServerEvent{Type: event.EventType(), SessionID: sessionID})
		}
		if err != nil {
			// Socket gone; the read loop tears the session down.
			return
		}
	}
	c.Close(websocket.CloseNormalClosure, "")
}

func (h *Handler) pingLoop(session *interview.Session, c *conn) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-session.Done():
			return
		case <-ticker.C:
			if err := c.Ping(); err != nil {
				return
			}
		}
	}
}

// rejectAndClose reports a pre-session failure and drops the connection.
func (h *Handler) rejectAndClose(c *conn, err error) {
	code := "bad_request"
	message := err.Error()
	var decodeErr *DecodeError
	var coreErr *core.Error
	switch {
	case errors.As(err, &decodeErr):
		code = decodeErr.Code
	case errors.As(err, &coreErr):
		code = string(coreErr.Type)
		message = coreErr.Message
	}
	_ = c.WriteJSON(ServerError{Type: "error", Code: code, Message: message, Close: true})
	c.Close(websocket.ClosePolicyViolation, code)
}

func outcomeFor(snap interview.Snapshot) string {
	if snap.State == interview.StateCompleted.String() {
		return "completed"
	}
	return "aborted"
}

// wsPlayback delivers interviewer lines over the socket: a text header frame
// then the raw PCM. Text-only lines (synthesis degraded) skip the binary.
type wsPlayback struct {
	conn    *conn
	metrics *metrics.Metrics
}

func (p *wsPlayback) Play(ctx context.Context, text string, audio []byte) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if len(audio) == 0 {
		return nil
	}
	if err := p.conn.WriteAudio(ServerEvent{Type: "interviewer.audio", Text: text, Bytes: len(audio)}, audio); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.RecordAudio("out", len(audio))
	}
	return nil
}
