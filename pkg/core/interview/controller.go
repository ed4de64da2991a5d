package interview

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// TranscriptionClient converts one buffered utterance into text.
type TranscriptionClient interface {
	Transcribe(ctx context.Context, audio []byte, format AudioConfig) (string, error)
}

// DialogueClient produces the next interviewer line from the transcript so
// far. Callers guarantee at most one outstanding call per session.
type DialogueClient interface {
	Reply(ctx context.Context, instructions string, transcript []Turn) (string, error)
}

// SynthesisClient converts interviewer text into playable audio.
type SynthesisClient interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// AnalysisHandoff receives the final transcript once per session. The
// controller does not depend on its result.
type AnalysisHandoff interface {
	Deliver(ctx context.Context, snapshot Snapshot, partial bool) error
}

// Playback delivers one interviewer line to the participant: display text
// plus synthesized audio. It blocks until playback has been handed to the
// transport, and must return promptly once ctx is cancelled. A nil audio
// slice means text-only delivery.
type Playback interface {
	Play(ctx context.Context, text string, audio []byte) error
}

// Clients bundles the external collaborators for one session.
type Clients struct {
	Transcription TranscriptionClient
	Dialogue      DialogueClient
	Synthesis     SynthesisClient
	Analysis      AnalysisHandoff
}

// errCancelled is the controller-internal signal that cancellation was
// observed at a suspension point.
var errCancelled = errors.New("session cancelled")

// handoffTimeout bounds the analysis delivery after a session ends. It uses
// a fresh context because the session context is cancelled on abort.
const handoffTimeout = 30 * time.Second

// endpointSignal carries one endpointer decision into the run loop.
type endpointSignal struct {
	audio    []byte
	forced   bool
	noSpeech bool
	waitedMs int
}

// TurnController drives one session through the turn cycle:
//
//	Initializing → Generating (opening line) → Speaking → AwaitingUtterance
//	→ Transcribing → Generating → Speaking → (loop) → Completed | Aborted
//
// All stages run strictly sequentially on the controller's own goroutine.
// Cancellation is checked before and after every suspension point; a late
// collaborator result never mutates a session that has moved on.
type TurnController struct {
	session    *Session
	clients    Clients
	endpointer *Endpointer
	playback   Playback
	logger     *slog.Logger

	events  chan Event
	signals chan endpointSignal

	// markerSeen records whether the most recent interviewer reply carried
	// the completion marker. Only touched by the run goroutine.
	markerSeen bool

	// onTerminal runs after the session reaches a terminal state and the
	// analysis handoff has been attempted. Used for registry removal and
	// persistence.
	onTerminal func(*Session)
}

// NewTurnController wires a controller for the given session.
func NewTurnController(session *Session, clients Clients, playback Playback, logger *slog.Logger) *TurnController {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := session.Config()
	c := &TurnController{
		session:    session,
		clients:    clients,
		endpointer: NewEndpointer(cfg.Endpointing, cfg.Audio),
		playback:   playback,
		logger:     logger.With("session_id", session.ID, "channel_id", session.ChannelID),
		events:     make(chan Event, 64),
		signals:    make(chan endpointSignal, 1),
	}
	c.endpointer.SetCallbacks(c.onUtterance, c.onNoSpeech, c.onEndpointDebug)
	return c
}

// SetOnTerminal registers the terminal hook. Must be called before Run.
func (c *TurnController) SetOnTerminal(fn func(*Session)) {
	c.onTerminal = fn
}

// Events returns the session event stream. The channel is buffered and
// never blocks the turn loop; slow consumers lose events, not turns.
func (c *TurnController) Events() <-chan Event {
	return c.events
}

// PushFrame feeds inbound participant audio from the transport.
func (c *TurnController) PushFrame(pcm []byte) {
	c.endpointer.PushFrame(pcm)
}

// Session returns the controlled session.
func (c *TurnController) Session() *Session {
	return c.session
}

// Run executes the turn loop until the session reaches a terminal state.
// It blocks; callers run it on its own goroutine. Any panic inside a stage
// still resolves the session to Aborted and releases its resources.
func (c *TurnController) Run() {
	defer func() {
		if v := recover(); v != nil {
			c.logger.Error("turn loop panic", "panic", v)
			c.finish(StateAborted, "internal error")
		}
	}()

	c.endpointer.Start(c.session.Context())
	c.emit(&SessionCreatedEvent{
		SessionID:     c.session.ID,
		ParticipantID: c.session.ParticipantID,
		ChannelID:     c.session.ChannelID,
	})

	// Bootstrap: the interviewer speaks first.
	if err := c.generateAndSpeak(); err != nil {
		c.abortOn(err, "opening line failed")
		return
	}

	retries := 0
	cfg := c.session.Config()

	for {
		if c.session.Cancelled() {
			c.finish(StateAborted, "cancelled")
			return
		}
		if c.markerSeen {
			if c.session.TurnCount() >= cfg.MinExchanges {
				c.finish(StateCompleted, "completion marker")
				return
			}
			// Premature marker: the model tried to wrap up before the
			// minimum exchange count. Keep interviewing.
			c.logger.Info("ignoring premature completion marker", "turns", c.session.TurnCount())
			c.markerSeen = false
		}
		if c.session.TurnCount() >= cfg.MaxExchanges {
			c.logger.Info("max exchanges reached, forcing completion", "turns", c.session.TurnCount())
			c.wrapUp("that's everything I needed to ask")
			c.finish(StateCompleted, "max exchanges reached")
			return
		}

		sig, err := c.awaitUtterance()
		if err != nil {
			c.finish(StateAborted, "cancelled while listening")
			return
		}

		if sig.noSpeech {
			retries++
			c.emit(&NoSpeechEvent{WaitedMs: sig.waitedMs})
			if retries > cfg.RetryBudget {
				c.logger.Info("no speech past retry budget", "attempts", retries)
				c.finish(StateAborted, "no speech detected")
				return
			}
			if err := c.reprompt(retries, "no speech"); err != nil {
				c.finish(StateAborted, "cancelled during re-prompt")
				return
			}
			continue
		}

		c.emit(&UtteranceCapturedEvent{
			DurationMs: cfg.Audio.DurationMs(len(sig.audio)),
			Forced:     sig.forced,
		})

		text, err := c.transcribe(sig.audio)
		switch {
		case errors.Is(err, errCancelled):
			c.finish(StateAborted, "cancelled during transcription")
			return
		case err != nil:
			retries++
			c.logger.Warn("transcription failed", "attempt", retries, "error", err)
			if retries > cfg.RetryBudget {
				// The participant is there and talking; end politely rather
				// than looping against a broken service.
				c.wrapUp("I'm having trouble hearing you, so let's stop here")
				c.finish(StateCompleted, "transcription retries exhausted")
				return
			}
			if err := c.reprompt(retries, "transcription failed"); err != nil {
				c.finish(StateAborted, "cancelled during re-prompt")
				return
			}
			continue
		}

		retries = 0
		turn := c.session.appendTurn(RoleParticipant, text)
		c.emit(&TurnAppendedEvent{Role: turn.Role, Text: turn.Text, Timestamp: turn.Timestamp, TurnCount: c.session.TurnCount()})

		if err := c.generateAndSpeak(); err != nil {
			if errors.Is(err, errCancelled) {
				c.finish(StateAborted, "cancelled during generation")
			} else {
				c.abortOn(err, "dialogue failed")
			}
			return
		}
	}
}

// awaitUtterance arms the endpointer and suspends until it decides.
func (c *TurnController) awaitUtterance() (endpointSignal, error) {
	if c.session.Cancelled() {
		return endpointSignal{}, errCancelled
	}
	c.setState(StateAwaitingUtterance)

	// Drop any signal that raced with the previous disarm.
	select {
	case <-c.signals:
	default:
	}

	c.endpointer.Arm()
	defer c.endpointer.Disarm()

	select {
	case <-c.session.Context().Done():
		return endpointSignal{}, errCancelled
	case sig := <-c.signals:
		if c.session.Cancelled() {
			return endpointSignal{}, errCancelled
		}
		return sig, nil
	}
}

// transcribe runs the transcription stage for one captured utterance.
func (c *TurnController) transcribe(audio []byte) (string, error) {
	if c.session.Cancelled() {
		return "", errCancelled
	}
	c.setState(StateTranscribing)

	text, err := c.clients.Transcription.Transcribe(c.session.Context(), audio, c.session.Config().Audio)
	if c.session.Cancelled() {
		// A late result must not reach the transcript.
		return "", errCancelled
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// generateAndSpeak runs the Generating and Speaking stages for one
// interviewer reply, appending the cleaned text to the transcript.
func (c *TurnController) generateAndSpeak() error {
	if c.session.Cancelled() {
		return errCancelled
	}
	c.setState(StateGenerating)

	cfg := c.session.Config()
	reply, err := c.clients.Dialogue.Reply(c.session.Context(), cfg.Instructions, c.session.Transcript())
	if c.session.Cancelled() {
		return errCancelled
	}
	if err != nil {
		return err
	}

	c.markerSeen = ContainsMarker(reply, cfg.CompletionMarker)
	if c.markerSeen {
		reply = StripMarker(reply, cfg.CompletionMarker)
	}

	display := CleanForDisplay(reply)
	if display == "" {
		// A reply that was only the marker still needs a sign-off.
		display = "Thank you, that's all my questions. Goodbye!"
	}

	turn := c.session.appendTurn(RoleInterviewer, display)
	c.emit(&TurnAppendedEvent{Role: turn.Role, Text: turn.Text, Timestamp: turn.Timestamp, TurnCount: c.session.TurnCount()})

	return c.speak(display)
}

// speak synthesizes and plays one line. Synthesis failure degrades to a
// text-only delivery rather than ending the interview.
func (c *TurnController) speak(text string) error {
	if c.session.Cancelled() {
		return errCancelled
	}
	c.setState(StateSpeaking)

	spoken := CleanForSpeech(text)
	var audio []byte
	if spoken != "" && c.clients.Synthesis != nil {
		var err error
		audio, err = c.clients.Synthesis.Synthesize(c.session.Context(), spoken)
		if c.session.Cancelled() {
			return errCancelled
		}
		if err != nil {
			c.logger.Warn("synthesis failed, delivering text only", "error", err)
			c.emit(&ErrorEvent{Message: "synthesis failed: " + err.Error()})
			audio = nil
		}
	}

	c.emit(&InterviewerLineEvent{Text: text})
	if len(audio) > 0 {
		c.emit(&InterviewerAudioEvent{Audio: audio})
	}

	if c.playback != nil {
		if err := c.playback.Play(c.session.Context(), text, audio); err != nil {
			if c.session.Cancelled() {
				return errCancelled
			}
			c.logger.Warn("playback failed", "error", err)
		}
	}
	if c.session.Cancelled() {
		return errCancelled
	}
	return nil
}

// reprompt consumes one retry and re-asks the participant. The re-prompt is
// conversational plumbing, not interview content, so it never enters the
// transcript.
func (c *TurnController) reprompt(attempt int, reason string) error {
	c.emit(&RepromptEvent{Attempt: attempt, Reason: reason})
	line := c.session.Config().RepromptLine
	if line == "" {
		return nil
	}
	return c.speak(line)
}

// wrapUp speaks a final line on the way to forced completion. Errors are
// deliberately ignored; the session is ending either way.
func (c *TurnController) wrapUp(line string) {
	if c.session.Cancelled() {
		return
	}
	_ = c.speak("Thank you for your time, " + line + ". Goodbye!")
}

func (c *TurnController) abortOn(err error, reason string) {
	c.logger.Error(reason, "error", err)
	c.emit(&ErrorEvent{Message: err.Error()})
	c.finish(StateAborted, reason)
}

// finish resolves the session to a terminal state, releases endpointer
// resources, delivers the transcript to analysis at most once, and fires
// the terminal hook.
func (c *TurnController) finish(state SessionState, reason string) {
	c.endpointer.Stop()

	from, changed := c.session.setState(state)
	if !changed && from.IsTerminal() {
		return
	}
	c.session.setEndReason(reason)
	c.emit(&StateChangedEvent{From: from, To: state})
	c.emit(&SessionEndedEvent{State: state, Reason: reason, TurnCount: c.session.TurnCount()})
	c.logger.Info("session ended", "state", state.String(), "reason", reason, "turns", c.session.TurnCount())

	snap := c.session.Snapshot()
	if c.clients.Analysis != nil && len(snap.Transcript) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), handoffTimeout)
		if err := c.clients.Analysis.Deliver(ctx, snap, state == StateAborted); err != nil {
			c.logger.Warn("analysis handoff failed", "error", err)
		}
		cancel()
	}

	c.session.markDone()
	if c.onTerminal != nil {
		c.onTerminal(c.session)
	}
	close(c.events)
}

func (c *TurnController) setState(to SessionState) {
	if from, changed := c.session.setState(to); changed {
		c.emit(&StateChangedEvent{From: from, To: to})
	}
}

// emit delivers an event without ever blocking the turn loop.
func (c *TurnController) emit(event Event) {
	select {
	case c.events <- event:
	default:
	}
}

func (c *TurnController) onUtterance(audio []byte, forced bool) {
	select {
	case c.signals <- endpointSignal{audio: audio, forced: forced}:
	default:
	}
}

func (c *TurnController) onNoSpeech(waitedMs int) {
	select {
	case c.signals <- endpointSignal{noSpeech: true, waitedMs: waitedMs}:
	default:
	}
}

func (c *TurnController) onEndpointDebug(category, message string) {
	c.logger.Debug(message, "category", category)
}
