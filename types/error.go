package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the bridge.
type ErrorCode string

// Stream lifecycle error codes
const (
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrAlreadyRegistered ErrorCode = "ALREADY_REGISTERED"
	ErrProtocolViolation ErrorCode = "PROTOCOL_VIOLATION"
	ErrLateMessage       ErrorCode = "LATE_MESSAGE"
	ErrProducerFailure   ErrorCode = "PRODUCER_FAILURE"
	ErrStreamClosed      ErrorCode = "STREAM_CLOSED"
)

// Channel error codes
const (
	ErrTransportFailure ErrorCode = "TRANSPORT_FAILURE"
	ErrInvalidMessage   ErrorCode = "INVALID_MESSAGE"
)

// Generic error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StreamID   string    `json:"stream_id,omitempty"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Code)
	if e.StreamID != "" {
		prefix = fmt.Sprintf("[%s] stream %s", e.Code, e.StreamID)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithStreamID tags the error with the correlation ID it concerns.
func (e *Error) WithStreamID(id string) *Error {
	e.StreamID = id
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}

// NotFound 构造未知关联 ID 错误
func NotFound(id string) *Error {
	return NewError(ErrNotFound, "unknown correlation id").WithStreamID(id)
}

// AlreadyRegistered 构造重复注册错误
func AlreadyRegistered(id string) *Error {
	return NewError(ErrAlreadyRegistered, "correlation id already live").WithStreamID(id)
}

// ProtocolViolation 构造协议违规错误
func ProtocolViolation(id, message string) *Error {
	return NewError(ErrProtocolViolation, message).WithStreamID(id)
}
