package mw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stafflens/interviewd/pkg/gateway/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit_Burst429IncludesRetryAfter(t *testing.T) {
	lim := ratelimit.New(ratelimit.Config{RPS: 1, Burst: 1})
	h := RateLimit(lim, okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("first request status=%d body=%q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status=%d body=%q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	if body := rr.Body.String(); !strings.Contains(body, `"type":"rate_limit_error"`) {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestRateLimit_HealthAndPreflightExempt(t *testing.T) {
	lim := ratelimit.New(ratelimit.Config{RPS: 1, Burst: 1})
	h := RateLimit(lim, okHandler())

	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("healthz request %d status=%d", i, rr.Code)
		}
		rr = httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/v1/sessions", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("preflight request %d status=%d", i, rr.Code)
		}
	}
}

func TestRateLimit_InterviewConcurrencyCap(t *testing.T) {
	lim := ratelimit.New(ratelimit.Config{MaxConcurrentInterviews: 1})

	started := make(chan struct{})
	release := make(chan struct{})
	h := RateLimit(lim, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRequest(http.MethodGet, "/v1/channels/chan-1/audio", nil)
	first.RemoteAddr = "10.0.0.1:1111"
	go func() {
		h.ServeHTTP(httptest.NewRecorder(), first)
	}()
	<-started

	second := httptest.NewRequest(http.MethodGet, "/v1/channels/chan-2/audio", nil)
	second.RemoteAddr = "10.0.0.1:2222"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, second)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second interview status=%d, want 429", rr.Code)
	}

	close(release)
}

func TestRateLimit_NilLimiterPassthrough(t *testing.T) {
	h := RateLimit(nil, okHandler())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
}
