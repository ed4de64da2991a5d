package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stafflens/interviewd/pkg/core"
	"github.com/stafflens/interviewd/pkg/core/interview"
)

func TestDeepgramTranscribe(t *testing.T) {
	var gotPath, gotAuth, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotModel = r.URL.Query().Get("model")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"I moderated a forum.","confidence":0.98}]}]}}`))
	}))
	defer srv.Close()

	d := NewDeepgram("dg-key").WithBaseURL(srv.URL)
	text, err := d.Transcribe(context.Background(), []byte{0, 0, 1, 1}, interview.DefaultAudioConfig())
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "I moderated a forum." {
		t.Errorf("Transcript = %q", text)
	}
	if gotPath != "/v1/listen" {
		t.Errorf("Path = %q", gotPath)
	}
	if gotAuth != "Token dg-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotModel != "nova-2" {
		t.Errorf("Model = %q", gotModel)
	}
}

func TestDeepgramEmptyTranscriptIsNoSpeech(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"  ","confidence":0}]}]}}`))
	}))
	defer srv.Close()

	d := NewDeepgram("dg-key").WithBaseURL(srv.URL)
	_, err := d.Transcribe(context.Background(), []byte{0, 0}, interview.DefaultAudioConfig())
	if !core.IsNoSpeech(err) {
		t.Errorf("Expected no_speech_error, got %v", err)
	}
}

func TestDeepgramEmptyAudioIsNoSpeech(t *testing.T) {
	d := NewDeepgram("dg-key")
	_, err := d.Transcribe(context.Background(), nil, interview.DefaultAudioConfig())
	if !core.IsNoSpeech(err) {
		t.Errorf("Expected no_speech_error for empty audio, got %v", err)
	}
}

func TestDeepgramErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   core.ErrorType
	}{
		{"rate limited", http.StatusTooManyRequests, core.ErrRateLimit},
		{"bad key", http.StatusUnauthorized, core.ErrAuthentication},
		{"server error", http.StatusInternalServerError, core.ErrService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			d := NewDeepgram("dg-key").WithBaseURL(srv.URL)
			_, err := d.Transcribe(context.Background(), []byte{0, 0}, interview.DefaultAudioConfig())
			if !core.IsType(err, tt.want) {
				t.Errorf("Expected %s, got %v", tt.want, err)
			}
		})
	}
}
