package mw

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stafflens/interviewd/pkg/core"
	"github.com/stafflens/interviewd/pkg/gateway/auth"
	"github.com/stafflens/interviewd/pkg/gateway/ratelimit"
)

// RateLimit throttles admin requests per caller and caps concurrent live
// interviews. Health probes and CORS preflights stay unthrottled.
func RateLimit(limiter *ratelimit.Limiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		caller := callerKey(r)

		if isLivePath(r.URL.Path) {
			dec := limiter.AcquireInterview(caller, time.Now())
			if !dec.Allowed {
				denyRateLimited(w, r, dec.RetryAfter, "concurrent interview limit reached")
				return
			}
			// Held for the whole interview; the socket handler blocks here.
			defer dec.Permit.Release()
			next.ServeHTTP(w, r)
			return
		}

		dec := limiter.AllowRequest(caller, time.Now())
		if !dec.Allowed {
			denyRateLimited(w, r, dec.RetryAfter, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isLivePath(path string) bool {
	return strings.HasPrefix(path, "/v1/channels/") && strings.HasSuffix(path, "/audio")
}

func callerKey(r *http.Request) string {
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		return ratelimit.CallerKeyFromAPIKey(p.APIKey)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func denyRateLimited(w http.ResponseWriter, r *http.Request, retryAfter int, message string) {
	reqID, _ := RequestIDFrom(r.Context())
	var ra *int
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		ra = &retryAfter
	}
	writeJSONError(w, http.StatusTooManyRequests, &core.Error{
		Type:       core.ErrRateLimit,
		Message:    message,
		RequestID:  reqID,
		RetryAfter: ra,
	})
}
