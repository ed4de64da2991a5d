// Package ratelimit bounds what one caller can do to the gateway: a token
// bucket over admin API requests and a hard cap on concurrent live
// interviews. Interviews hold provider budgets open for minutes at a time,
// so the concurrency cap is the one that actually protects spend.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sync"
	"time"
)

type Config struct {
	// RPS and Burst shape the request token bucket. RPS 0 disables it.
	RPS   int
	Burst int

	// MaxConcurrentInterviews caps live sessions per caller. 0 disables.
	MaxConcurrentInterviews int

	// Operational bounds for the in-memory caller map (single-process only).
	MaxEntries int
	EntryTTL   time.Duration
}

// Limiter tracks per-caller state. Callers are identified by hashed API key,
// or by remote address when the gateway runs unauthenticated.
type Limiter struct {
	cfg Config

	mu sync.Mutex
	m  map[string]*callerLimiter
}

type callerLimiter struct {
	mu sync.Mutex

	tb           tokenBucket
	interviewSem chan struct{}

	lastSeen time.Time
}

type tokenBucket struct {
	rps      float64
	capacity float64

	tokens float64
	last   time.Time
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	return &Limiter{
		cfg: cfg,
		m:   make(map[string]*callerLimiter),
	}
}

// CallerKeyFromAPIKey derives a stable map key without retaining the secret.
func CallerKeyFromAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return "k_" + hex.EncodeToString(sum[:16])
}

// Permit releases a held interview slot. Release is idempotent.
type Permit struct {
	release func()
}

func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	p.release()
	p.release = nil
}

type Decision struct {
	Allowed    bool
	RetryAfter int
	Permit     *Permit
}

// AllowRequest runs one request through the caller's token bucket.
func (l *Limiter) AllowRequest(caller string, now time.Time) Decision {
	if caller == "" {
		caller = "anonymous"
	}

	cl := l.getOrCreate(caller, now)
	cl.touch(now)

	if l.cfg.RPS > 0 && l.cfg.Burst > 0 {
		ok, retryAfter := cl.allowToken(now, float64(l.cfg.RPS), l.cfg.Burst)
		if !ok {
			return Decision{Allowed: false, RetryAfter: retryAfter}
		}
	}
	return Decision{Allowed: true}
}

// AcquireInterview claims a live interview slot for the caller. The returned
// permit must be released when the socket closes.
func (l *Limiter) AcquireInterview(caller string, now time.Time) Decision {
	if caller == "" {
		caller = "anonymous"
	}

	cl := l.getOrCreate(caller, now)
	cl.touch(now)

	if l.cfg.MaxConcurrentInterviews > 0 {
		select {
		case cl.interviewSem <- struct{}{}:
			return Decision{
				Allowed: true,
				Permit:  &Permit{release: func() { <-cl.interviewSem }},
			}
		default:
			return Decision{Allowed: false, RetryAfter: 1}
		}
	}
	return Decision{Allowed: true, Permit: &Permit{release: func() {}}}
}

func (l *Limiter) getOrCreate(caller string, now time.Time) *callerLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.m) >= l.cfg.MaxEntries {
		l.gcLocked(now)
		// If still too big, drop one arbitrary entry; bounded memory matters
		// more than perfect fairness here.
		if len(l.m) >= l.cfg.MaxEntries {
			for k := range l.m {
				delete(l.m, k)
				break
			}
		}
	}

	if cl, ok := l.m[caller]; ok {
		return cl
	}
	cl := &callerLimiter{
		interviewSem: make(chan struct{}, maxInt(1, l.cfg.MaxConcurrentInterviews)),
		lastSeen:     now,
	}
	l.m[caller] = cl
	return cl
}

func (l *Limiter) gcLocked(now time.Time) {
	for k, v := range l.m {
		if now.Sub(v.lastSeen) > l.cfg.EntryTTL {
			delete(l.m, k)
		}
	}
}

func (cl *callerLimiter) touch(now time.Time) {
	cl.lastSeen = now
}

func (cl *callerLimiter) allowToken(now time.Time, rps float64, burst int) (bool, int) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	capacity := float64(burst)
	if cl.tb.capacity == 0 {
		cl.tb = tokenBucket{
			rps:      rps,
			capacity: capacity,
			tokens:   capacity,
			last:     now,
		}
	}

	elapsed := now.Sub(cl.tb.last).Seconds()
	if elapsed > 0 {
		cl.tb.tokens = math.Min(cl.tb.capacity, cl.tb.tokens+(elapsed*cl.tb.rps))
		cl.tb.last = now
	}

	if cl.tb.tokens >= 1.0 {
		cl.tb.tokens -= 1.0
		return true, 0
	}

	retryAfter := int(math.Ceil((1.0 - cl.tb.tokens) / cl.tb.rps))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
