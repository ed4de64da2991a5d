package ratelimit

import (
	"testing"
	"time"
)

func TestAcquireInterview_EnforcesConcurrency(t *testing.T) {
	l := New(Config{MaxConcurrentInterviews: 1})
	now := time.Now()

	first := l.AcquireInterview("caller-1", now)
	if !first.Allowed || first.Permit == nil {
		t.Fatalf("first allowed=%v permit=%v", first.Allowed, first.Permit)
	}

	second := l.AcquireInterview("caller-1", now)
	if second.Allowed {
		t.Fatal("second interview should be denied")
	}

	other := l.AcquireInterview("caller-2", now)
	if !other.Allowed {
		t.Fatal("a different caller must not be throttled")
	}

	first.Permit.Release()
	first.Permit.Release() // idempotent
	third := l.AcquireInterview("caller-1", now)
	if !third.Allowed {
		t.Fatal("third interview should be allowed after release")
	}
}

func TestAllowRequest_TokenBucket(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 2})
	now := time.Now()

	for i := 0; i < 2; i++ {
		if dec := l.AllowRequest("caller-1", now); !dec.Allowed {
			t.Fatalf("request %d denied within burst", i)
		}
	}

	dec := l.AllowRequest("caller-1", now)
	if dec.Allowed {
		t.Fatal("burst exhausted, request should be denied")
	}
	if dec.RetryAfter < 1 {
		t.Fatalf("RetryAfter=%d, want >= 1", dec.RetryAfter)
	}

	// Tokens refill with elapsed time.
	if dec := l.AllowRequest("caller-1", now.Add(time.Second)); !dec.Allowed {
		t.Fatal("request should be allowed after refill")
	}
}

func TestAllowRequest_DisabledByZeroRPS(t *testing.T) {
	l := New(Config{})
	now := time.Now()
	for i := 0; i < 100; i++ {
		if dec := l.AllowRequest("caller-1", now); !dec.Allowed {
			t.Fatalf("request %d denied with limiting disabled", i)
		}
	}
}

func TestCallerKeyFromAPIKey(t *testing.T) {
	a := CallerKeyFromAPIKey("sk-one")
	b := CallerKeyFromAPIKey("sk-two")
	if a == b {
		t.Fatal("distinct keys must map to distinct callers")
	}
	if a != CallerKeyFromAPIKey("sk-one") {
		t.Fatal("caller key must be stable")
	}
	if len(a) != 2+32 {
		t.Fatalf("caller key length = %d", len(a))
	}
}
