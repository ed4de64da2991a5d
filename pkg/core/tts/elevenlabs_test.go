package tts

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stafflens/interviewd/pkg/core"
)

func TestElevenLabsSynthesize(t *testing.T) {
	var gotPath, gotKey, gotFormat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		gotFormat = r.URL.Query().Get("output_format")
		w.Write([]byte("pcm-bytes"))
	}))
	defer srv.Close()

	e := NewElevenLabs("el-key").WithVoice("voice-1").WithBaseURL(srv.URL)
	audio, err := e.Synthesize(context.Background(), "Welcome to the interview.")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if !bytes.Equal(audio, []byte("pcm-bytes")) {
		t.Errorf("Audio = %q", audio)
	}
	if !strings.HasSuffix(gotPath, "/v1/text-to-speech/voice-1") {
		t.Errorf("Path = %q", gotPath)
	}
	if gotKey != "el-key" {
		t.Errorf("xi-api-key = %q", gotKey)
	}
	if gotFormat != "pcm_16000" {
		t.Errorf("output_format = %q", gotFormat)
	}
}

func TestElevenLabsEmptyText(t *testing.T) {
	e := NewElevenLabs("el-key")
	if _, err := e.Synthesize(context.Background(), "  "); !core.IsType(err, core.ErrInvalidRequest) {
		t.Errorf("Expected invalid_request_error, got %v", err)
	}
}

func TestElevenLabsMissingKey(t *testing.T) {
	e := NewElevenLabs("")
	if _, err := e.Synthesize(context.Background(), "hello"); !core.IsType(err, core.ErrAuthentication) {
		t.Errorf("Expected authentication_error, got %v", err)
	}
}

func TestElevenLabsServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e := NewElevenLabs("el-key").WithBaseURL(srv.URL)
	if _, err := e.Synthesize(context.Background(), "hello"); !core.IsType(err, core.ErrService) {
		t.Errorf("Expected service_error, got %v", err)
	}
}

func TestElevenLabsEmptyAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 200 with no body
	}))
	defer srv.Close()

	e := NewElevenLabs("el-key").WithBaseURL(srv.URL)
	if _, err := e.Synthesize(context.Background(), "hello"); !core.IsType(err, core.ErrService) {
		t.Errorf("Expected service_error for empty audio, got %v", err)
	}
}
