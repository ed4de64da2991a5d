package apierror

import (
	"context"
	"testing"

	"github.com/stafflens/interviewd/pkg/core"
)

func TestFromError_ContextCanceled_Is408Cancelled(t *testing.T) {
	ce, status := FromError(context.Canceled, "req_test")
	if status != 408 {
		t.Fatalf("status=%d", status)
	}
	if ce.Code != "cancelled" {
		t.Fatalf("code=%q", ce.Code)
	}
	if ce.RequestID != "req_test" {
		t.Fatalf("request_id=%q", ce.RequestID)
	}
}

func TestFromError_DuplicateSession_Is409(t *testing.T) {
	ce, status := FromError(core.NewDuplicateSessionError("chan-7"), "req_test")
	if status != 409 {
		t.Fatalf("status=%d", status)
	}
	if ce.Type != core.ErrDuplicateSession {
		t.Fatalf("type=%q", ce.Type)
	}
}

func TestFromError_CapacityExceeded_Is503(t *testing.T) {
	ce, status := FromError(core.NewCapacityExceededError(8), "req_test")
	if status != 503 {
		t.Fatalf("status=%d", status)
	}
	if ce.Type != core.ErrCapacityExceeded {
		t.Fatalf("type=%q", ce.Type)
	}
}

func TestFromError_Unknown_Is500Opaque(t *testing.T) {
	ce, status := FromError(context.DeadlineExceeded, "req_test")
	if status != 504 {
		t.Fatalf("status=%d", status)
	}
	if ce.Type != core.ErrTimeout {
		t.Fatalf("type=%q", ce.Type)
	}
}
