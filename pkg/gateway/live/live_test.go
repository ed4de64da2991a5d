package live

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stafflens/interviewd/pkg/core/interview"
	"github.com/stafflens/interviewd/pkg/gateway/metrics"
)

type fakeDialogue struct {
	replies []string
	calls   int
}

func (f *fakeDialogue) Reply(ctx context.Context, instructions string, transcript []interview.Turn) (string, error) {
	i := f.calls
	f.calls++
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	return f.replies[i], nil
}

type fakeTranscriber struct{ text string }

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, format interview.AudioConfig) (string, error) {
	return f.text, nil
}

type fakeSynth struct{ audio []byte }

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return f.audio, nil
}

type fakeAnalysis struct{ delivered chan interview.Snapshot }

func (f *fakeAnalysis) Deliver(ctx context.Context, snap interview.Snapshot, partial bool) error {
	select {
	case f.delivered <- snap:
	default:
	}
	return nil
}

type fakeSaver struct{ saved chan interview.Snapshot }

func (f *fakeSaver) SaveSession(ctx context.Context, snap interview.Snapshot) error {
	select {
	case f.saved <- snap:
	default:
	}
	return nil
}

type liveFixture struct {
	registry *interview.Registry
	analysis *fakeAnalysis
	saver    *fakeSaver
	server   *httptest.Server
}

func newLiveFixture(t *testing.T, base interview.SessionConfig, dialogue *fakeDialogue) *liveFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &liveFixture{
		registry: interview.NewRegistry(4, logger),
		analysis: &fakeAnalysis{delivered: make(chan interview.Snapshot, 1)},
		saver:    &fakeSaver{saved: make(chan interview.Snapshot, 1)},
	}
	clients := interview.Clients{
		Transcription: &fakeTranscriber{text: "I have moderated before."},
		Dialogue:      dialogue,
		Synthesis:     &fakeSynth{audio: []byte("pcm-audio")},
		Analysis:      f.analysis,
	}
	handler := NewHandler(HandlerConfig{Base: base}, f.registry, clients, metrics.New("interviewd"), f.saver, logger)

	mux := http.NewServeMux()
	mux.Handle("GET /v1/channels/{channel}/audio", handler)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *liveFixture) dial(t *testing.T, channel string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/v1/channels/" + channel + "/audio"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	_ = ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	return ws
}

func sendJoin(t *testing.T, ws *websocket.Conn, participantID string) {
	t.Helper()
	join := ClientJoin{Type: "join", ProtocolVersion: ProtocolVersion1, ParticipantID: participantID}
	if err := ws.WriteJSON(join); err != nil {
		t.Fatalf("write join: %v", err)
	}
}

func readJoined(t *testing.T, ws *websocket.Conn) ServerJoined {
	t.Helper()
	var joined ServerJoined
	if err := ws.ReadJSON(&joined); err != nil {
		t.Fatalf("read joined: %v", err)
	}
	if joined.Type != "joined" {
		t.Fatalf("first frame type = %q, want joined", joined.Type)
	}
	return joined
}

// readUntilEnded drains frames until session.ended, recording event types and
// any binary audio payload along the way.
func readUntilEnded(t *testing.T, ws *websocket.Conn) (ended ServerEvent, types map[string]int, audio []byte) {
	t.Helper()
	types = map[string]int{}
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read before session.ended: %v (seen %v)", err, types)
		}
		if msgType == websocket.BinaryMessage {
			audio = append(audio, data...)
			continue
		}
		var event ServerEvent
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		types[event.Type]++
		if event.Type == "session.ended" {
			return event, types, audio
		}
	}
}

func waitForEmptyRegistry(t *testing.T, reg *interview.Registry) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for reg.Count() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("registry still holds %d sessions", reg.Count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLive_CompletesOnMarker(t *testing.T) {
	base := interview.DefaultSessionConfig()
	base.MinExchanges = 0

	dialogue := &fakeDialogue{replies: []string{
		"Thanks for your interest, that's everything I need. Goodbye! " + interview.DefaultCompletionMarker,
	}}
	f := newLiveFixture(t, base, dialogue)

	ws := f.dial(t, "chan-live")
	sendJoin(t, ws, "user-1")
	joined := readJoined(t, ws)
	if joined.SessionID == "" {
		t.Error("joined.session_id is empty")
	}
	if joined.Limits.MaxAudioFrameBytes != 8192 {
		t.Errorf("max frame = %d", joined.Limits.MaxAudioFrameBytes)
	}

	ended, types, audio := readUntilEnded(t, ws)
	if ended.State != "COMPLETED" {
		t.Errorf("end state = %q, want COMPLETED", ended.State)
	}
	if types["turn.appended"] == 0 {
		t.Error("no turn.appended event seen")
	}
	if types["interviewer.audio"] == 0 {
		t.Error("no interviewer.audio header seen")
	}
	if string(audio) != "pcm-audio" {
		t.Errorf("audio payload = %q", audio)
	}

	select {
	case snap := <-f.analysis.delivered:
		if len(snap.Transcript) == 0 {
			t.Error("analysis received empty transcript")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("analysis handoff never happened")
	}
	select {
	case snap := <-f.saver.saved:
		if snap.State != "COMPLETED" {
			t.Errorf("persisted state = %q", snap.State)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session was never persisted")
	}
	waitForEmptyRegistry(t, f.registry)
}

func TestLive_LeaveAbortsSession(t *testing.T) {
	dialogue := &fakeDialogue{replies: []string{"Welcome! Tell me about your moderation experience."}}
	f := newLiveFixture(t, interview.DefaultSessionConfig(), dialogue)

	ws := f.dial(t, "chan-leave")
	sendJoin(t, ws, "user-2")
	readJoined(t, ws)

	if err := ws.WriteJSON(ClientLeave{Type: "leave"}); err != nil {
		t.Fatalf("write leave: %v", err)
	}

	ended, _, _ := readUntilEnded(t, ws)
	if ended.State != "ABORTED" {
		t.Errorf("end state = %q, want ABORTED", ended.State)
	}
	select {
	case snap := <-f.saver.saved:
		if snap.State != "ABORTED" {
			t.Errorf("persisted state = %q", snap.State)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session was never persisted")
	}
	waitForEmptyRegistry(t, f.registry)
}

func TestLive_RejectsInvalidJoin(t *testing.T) {
	dialogue := &fakeDialogue{replies: []string{"unused"}}
	f := newLiveFixture(t, interview.DefaultSessionConfig(), dialogue)

	ws := f.dial(t, "chan-bad")
	if err := ws.WriteJSON(map[string]string{"type": "join", "protocol_version": "1"}); err != nil {
		t.Fatalf("write join: %v", err)
	}

	var serverErr ServerError
	if err := ws.ReadJSON(&serverErr); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if serverErr.Type != "error" || serverErr.Code != "bad_request" || !serverErr.Close {
		t.Errorf("error frame = %+v", serverErr)
	}
	if f.registry.Count() != 0 {
		t.Errorf("registry count = %d after rejected join", f.registry.Count())
	}
}

func TestLive_RejectsDuplicateChannel(t *testing.T) {
	dialogue := &fakeDialogue{replies: []string{"unused"}}
	f := newLiveFixture(t, interview.DefaultSessionConfig(), dialogue)

	if _, err := f.registry.Create("user-0", "chan-dup", interview.DefaultSessionConfig()); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	ws := f.dial(t, "chan-dup")
	sendJoin(t, ws, "user-3")

	var serverErr ServerError
	if err := ws.ReadJSON(&serverErr); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if serverErr.Code != "duplicate_session_error" || !serverErr.Close {
		t.Errorf("error frame = %+v", serverErr)
	}
	if f.registry.Count() != 1 {
		t.Errorf("registry count = %d, want the original session only", f.registry.Count())
	}
}
