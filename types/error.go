package types

import "fmt"

// ErrorCode represents a unified error code across the gateway.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // malformed input, fails before any backend call
	ErrBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE" // breaker denies and no fallback succeeds
	ErrTransportFailure   ErrorCode = "TRANSPORT_FAILURE"   // backend call errors or drops mid-stream
	ErrTimeout            ErrorCode = "TIMEOUT"             // handler exceeded the bounded total time
	ErrPersistenceError   ErrorCode = "PERSISTENCE_ERROR"   // turn write failed; logged only, never surfaced
	ErrSessionBusy        ErrorCode = "SESSION_BUSY"        // a request is already streaming on this connection
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
)

// safeMessages maps codes to the only texts allowed to reach a peer.
// Raw provider error text never crosses the wire (it may not even be JSON).
var safeMessages = map[ErrorCode]string{
	ErrInvalidRequest:     "your message could not be understood, please try again",
	ErrBackendUnavailable: "the assistant is temporarily unavailable, please retry shortly",
	ErrTransportFailure:   "the assistant was interrupted, please retry",
	ErrTimeout:            "the assistant took too long to answer, please retry",
	ErrSessionBusy:        "a response is still in progress, please wait for it to finish",
	ErrUnauthorized:       "authentication required",
	ErrInternalError:      "something went wrong, please retry",
}

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Backend    string    `json:"backend,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// SafeMessage returns the user-facing text for this error. Internal
// detail (Message, Cause) is for operators and logs only.
func (e *Error) SafeMessage() string {
	if msg, ok := safeMessages[e.Code]; ok {
		return msg
	}
	return safeMessages[ErrInternalError]
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

// WithBackend sets the backend the error originated from.
func (e *Error) WithBackend(backend string) *Error {
	e.Backend = backend
	return e
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}
