package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stafflens/interviewd/internal/store"
	"github.com/stafflens/interviewd/pkg/gateway/config"
)

func testConfig() config.Config {
	return config.Config{
		Addr:                    "127.0.0.1:0",
		AuthMode:                config.AuthModeDisabled,
		APIKeys:                 map[string]struct{}{},
		CORSAllowedOrigins:      map[string]struct{}{},
		DeepgramAPIKey:          "dg-test",
		OpenRouterAPIKey:        "or-test",
		ElevenLabsAPIKey:        "el-test",
		SilenceThreshold:        5 * time.Second,
		MaxUtterance:            2 * time.Minute,
		NoSpeechTimeout:         30 * time.Second,
		RetryBudget:             2,
		MinExchanges:            3,
		MaxExchanges:            12,
		MaxSessions:             4,
		MaxSessionDuration:      30 * time.Minute,
		LiveMaxAudioFrameBytes:  8192,
		LiveMaxJSONMessageBytes: 64 * 1024,
		LiveWSPingInterval:      20 * time.Second,
		LiveWSWriteTimeout:      5 * time.Second,
	}
}

func testServer(t *testing.T, cfg config.Config) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := httptest.NewServer(New(cfg, nil, logger).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestServer_Healthz(t *testing.T) {
	ts := testServer(t, testConfig())

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Request-ID"); got == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestServer_Metrics(t *testing.T) {
	ts := testServer(t, testConfig())

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "interviewd_sessions_active") {
		t.Error("metrics output missing interviewd_sessions_active")
	}
}

func TestServer_SessionsEmpty(t *testing.T) {
	ts := testServer(t, testConfig())

	resp, err := http.Get(ts.URL + "/v1/sessions")
	if err != nil {
		t.Fatalf("GET /v1/sessions: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Count != 0 {
		t.Errorf("count=%d, want 0", out.Count)
	}
}

func TestServer_UnknownRouteEnvelope(t *testing.T) {
	ts := testServer(t, testConfig())

	resp, err := http.Get(ts.URL + "/v1/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var out struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Error.Type != "not_found_error" {
		t.Errorf("error type=%q", out.Error.Type)
	}
}

func TestServer_AuthRequired(t *testing.T) {
	cfg := testConfig()
	cfg.AuthMode = config.AuthModeRequired
	cfg.APIKeys = map[string]struct{}{"sk-live": {}}
	ts := testServer(t, cfg)

	resp, err := http.Get(ts.URL + "/v1/sessions")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status=%d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer sk-live")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET with key: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated status=%d, want 200", resp.StatusCode)
	}
}

func TestServer_InterviewsDisabledWithoutStore(t *testing.T) {
	ts := testServer(t, testConfig())

	resp, err := http.Get(ts.URL + "/v1/interviews")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d, want 404 when persistence is off", resp.StatusCode)
	}
}

func TestServer_InterviewsWithStore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "interviews.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := httptest.NewServer(New(testConfig(), st, logger).Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/v1/interviews")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Count != 0 {
		t.Errorf("count=%d, want 0", out.Count)
	}
}
