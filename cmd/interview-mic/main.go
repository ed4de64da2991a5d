// Command interview-mic is a terminal client for taking an interview: it
// dials an interviewd server, streams microphone audio up, and plays the
// interviewer's synthesized lines back through the speakers.
//
// Usage:
//
//	interview-mic -server ws://localhost:8080 -channel screening-42 -participant user-7
//
// INTERVIEWD_API_KEY is attached as the api_key query parameter when set.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/stafflens/interviewd/pkg/gateway/live"
)

func main() {
	_ = godotenv.Load()

	server := flag.String("server", "ws://127.0.0.1:8080", "interviewd base URL (ws:// or wss://)")
	channel := flag.String("channel", "", "channel to interview on (required)")
	participant := flag.String("participant", "", "participant identity (required)")
	flag.Parse()

	if *channel == "" || *participant == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*server, *channel, *participant); err != nil {
		fmt.Fprintf(os.Stderr, "interview-mic: %v\n", err)
		os.Exit(1)
	}
}

func run(server, channel, participant string) error {
	endpoint, err := dialURL(server, channel)
	if err != nil {
		return err
	}

	ws, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(live.ClientJoin{
		Type:            "join",
		ProtocolVersion: live.ProtocolVersion1,
		ParticipantID:   participant,
	}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	joined, err := readJoined(ws)
	if err != nil {
		return err
	}
	fmt.Printf("joined session %s (%d Hz, %d ch, frames <= %d bytes)\n",
		joined.SessionID, joined.Audio.SampleRate, joined.Audio.Channels, joined.Limits.MaxAudioFrameBytes)
	fmt.Println("speak when prompted; Ctrl-C leaves the interview")

	audio, err := initAudio(joined.Audio.SampleRate, joined.Audio.Channels)
	if err != nil {
		return err
	}
	defer audio.Close()

	done := make(chan error, 1)
	go func() { done <- readEvents(ws, audio) }()
	go sendMic(ws, audio, joined)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-done:
		return err
	case <-sigCh:
		fmt.Println("\nleaving interview")
		_ = ws.WriteJSON(live.ClientLeave{Type: "leave"})
		return <-done
	}
}

// dialURL turns the base server URL into the live endpoint for a channel,
// attaching the API key when configured.
func dialURL(server, channel string) (string, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/v1/channels/" + url.PathEscape(channel) + "/audio"
	if key := os.Getenv("INTERVIEWD_API_KEY"); key != "" {
		q := u.Query()
		q.Set("api_key", key)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func readJoined(ws *websocket.Conn) (live.ServerJoined, error) {
	_, data, err := ws.ReadMessage()
	if err != nil {
		return live.ServerJoined{}, fmt.Errorf("read join ack: %w", err)
	}
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return live.ServerJoined{}, fmt.Errorf("decode join ack: %w", err)
	}
	if probe.Type == "error" {
		var serverErr live.ServerError
		_ = json.Unmarshal(data, &serverErr)
		return live.ServerJoined{}, fmt.Errorf("server rejected join: %s (%s)", serverErr.Message, serverErr.Code)
	}
	var joined live.ServerJoined
	if err := json.Unmarshal(data, &joined); err != nil || joined.Type != "joined" {
		return live.ServerJoined{}, errors.New("unexpected frame before joined")
	}
	return joined, nil
}

// sendMic streams captured PCM upstream in frames the server will accept.
func sendMic(ws *websocket.Conn, audio *audioIO, joined live.ServerJoined) {
	frameBytes := joined.Limits.MaxAudioFrameBytes
	if frameBytes <= 0 || frameBytes > 8192 {
		frameBytes = 8192
	}
	buf := make([]byte, frameBytes)
	for {
		n := audio.mic.Read(buf)
		if n == 0 {
			return
		}
		if err := ws.WriteMessage(websocket.BinaryMessage, buf[:n]); err != nil {
			return
		}
	}
}

// readEvents prints the interview as it happens and routes synthesized audio
// to the speaker. Returns nil once the session ends.
func readEvents(ws *websocket.Conn, audio *audioIO) error {
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}

		if msgType == websocket.BinaryMessage {
			audio.speaker.Write(data)
			continue
		}

		var event live.ServerEvent
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}
		switch event.Type {
		case "interviewer.line":
			fmt.Printf("\ninterviewer: %s\n", event.Text)
		case "turn.appended":
			if event.Role == "participant" {
				fmt.Printf("you: %s\n", event.Text)
			}
		case "utterance.no_speech":
			fmt.Println("(no speech detected)")
		case "session.reprompt":
			fmt.Printf("(re-prompt %d: %s)\n", event.Attempt, event.Reason)
		case "session.ended":
			fmt.Printf("\ninterview ended: %s (%s)\n", event.State, event.Reason)
			return nil
		case "error":
			var serverErr live.ServerError
			if json.Unmarshal(data, &serverErr) == nil && serverErr.Close {
				return fmt.Errorf("server error: %s", serverErr.Message)
			}
		}
	}
}
