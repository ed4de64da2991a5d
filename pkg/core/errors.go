package core

import (
	"errors"
	"fmt"
)

// Error represents a failure in the interview pipeline or its collaborators.
type Error struct {
	Type          ErrorType `json:"type"`
	Message       string    `json:"message"`
	Param         string    `json:"param,omitempty"`
	Code          string    `json:"code,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	ProviderError any       `json:"provider_error,omitempty"`
	RetryAfter    *int      `json:"retry_after,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest   ErrorType = "invalid_request_error"
	ErrAuthentication   ErrorType = "authentication_error"
	ErrNotFound         ErrorType = "not_found_error"
	ErrRateLimit        ErrorType = "rate_limit_error"
	ErrTimeout          ErrorType = "timeout_error"
	ErrService          ErrorType = "service_error"
	ErrProvider         ErrorType = "provider_error"
	ErrNoSpeech         ErrorType = "no_speech_error"
	ErrDuplicateSession ErrorType = "duplicate_session_error"
	ErrCapacityExceeded ErrorType = "capacity_exceeded_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
		Param:   param,
	}
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(message string) *Error {
	return &Error{
		Type:    ErrAuthentication,
		Message: message,
	}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{
		Type:    ErrNotFound,
		Message: message,
	}
}

// NewRateLimitError creates a rate limit error.
func NewRateLimitError(message string, retryAfter int) *Error {
	return &Error{
		Type:       ErrRateLimit,
		Message:    message,
		RetryAfter: &retryAfter,
	}
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(message string) *Error {
	return &Error{
		Type:    ErrTimeout,
		Message: message,
	}
}

// NewServiceError creates a generic service error.
func NewServiceError(message string) *Error {
	return &Error{
		Type:    ErrService,
		Message: message,
	}
}

// NewProviderError creates a provider-specific error.
func NewProviderError(provider string, underlying error) *Error {
	return &Error{
		Type:          ErrProvider,
		Message:       fmt.Sprintf("%s: %v", provider, underlying),
		ProviderError: underlying.Error(),
	}
}

// NewNoSpeechError creates an error indicating no recognizable speech.
func NewNoSpeechError(message string) *Error {
	return &Error{
		Type:    ErrNoSpeech,
		Message: message,
	}
}

// NewDuplicateSessionError creates an error for a channel that already has a session.
func NewDuplicateSessionError(channelID string) *Error {
	return &Error{
		Type:    ErrDuplicateSession,
		Message: fmt.Sprintf("channel %s already has an active session", channelID),
		Param:   "channel_id",
	}
}

// NewCapacityExceededError creates an error for the session concurrency ceiling.
func NewCapacityExceededError(limit int) *Error {
	return &Error{
		Type:    ErrCapacityExceeded,
		Message: fmt.Sprintf("active session limit reached (%d)", limit),
	}
}

// IsRetryable returns true if the error is worth retrying.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrTimeout, ErrService:
		return true
	default:
		return false
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	if ue, ok := e.ProviderError.(error); ok {
		return ue
	}
	return nil
}

// IsType reports whether err is a *Error of the given type.
func IsType(err error, t ErrorType) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Type == t
	}
	return false
}

// IsNoSpeech reports whether err indicates an utterance with no recognizable speech.
func IsNoSpeech(err error) bool { return IsType(err, ErrNoSpeech) }

// IsRetryableError reports whether err is a retryable *Error.
func IsRetryableError(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.IsRetryable()
	}
	return false
}
