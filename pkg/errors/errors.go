package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies engine failures for the collaborator surface.
type ErrorCode string

const (
	ErrCodeMediaAccessDenied    ErrorCode = "MEDIA_ACCESS_DENIED"
	ErrCodeSignalingUnavailable ErrorCode = "SIGNALING_UNAVAILABLE"
	ErrCodeICEFailed            ErrorCode = "ICE_FAILED"
	ErrCodeRelayUnreachable     ErrorCode = "RELAY_UNREACHABLE"
	ErrCodeRelayAuth            ErrorCode = "RELAY_AUTH_FAILED"
	ErrCodeRelayServer          ErrorCode = "RELAY_SERVER_ERROR"
	ErrCodeCallNotFound         ErrorCode = "CALL_NOT_FOUND"
	ErrCodeCallEnded            ErrorCode = "CALL_ALREADY_ENDED"
	ErrCodeInvalidMessage       ErrorCode = "INVALID_MESSAGE"
	ErrCodeInternal             ErrorCode = "INTERNAL_ERROR"
)

// CallError carries a code plus structured diagnostic context for one call
// failure. Conditions that prevent a call from functioning are surfaced
// exactly once with one of these; recoverable conditions stay in the logs.
type CallError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *CallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CallError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a diagnostic key/value to the error.
func (e *CallError) WithContext(key string, value interface{}) *CallError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a CallError with the given code.
func New(code ErrorCode, message string) *CallError {
	return &CallError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// Wrap wraps an underlying error with a code.
func Wrap(err error, code ErrorCode, message string) *CallError {
	return &CallError{
		Code:    code,
		Message: message,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// CodeOf extracts the ErrorCode from an error chain, or ErrCodeInternal when
// none is present.
func CodeOf(err error) ErrorCode {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether the error chain carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
