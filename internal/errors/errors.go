package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing errors
const (
	ErrConfig       = "CONFIG"
	ErrNotConnected = "NOT_CONNECTED"
	ErrAuth         = "AUTH"
	ErrPlatform     = "PLATFORM"
	ErrTransport    = "TRANSPORT"
	ErrParse        = "PARSE"
	ErrProtocol     = "PROTOCOL"
	ErrExec         = "EXEC"
)

// Error represents a structured error with code, message, suggestion, and optional cause.
// Rendered as:
//
//	✗ <What failed>
//
//	  <Why it failed - technical details>
//
//	  <How to fix it - actionable steps>
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap wraps an existing error with a message, defaulting to ErrTransport code.
func Wrap(err error, message string) *Error {
	return &Error{
		Code:    ErrTransport,
		Message: message,
		Cause:   err,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// NewNotConnected creates the error every executor entry point returns when
// there is no live session.
func NewNotConnected(op string) *Error {
	return &Error{
		Code:       ErrNotConnected,
		Message:    fmt.Sprintf("Can't %s: not connected", op),
		Suggestion: "Connect to a host first",
	}
}

// Error implements the error interface with formatted output.
func (e *Error) Error() string {
	var b strings.Builder

	// First line: failure symbol + main message
	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))

	// Include cause if present (why it failed)
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}

	// Include suggestion if present (how to fix)
	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}

	return b.String()
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var bErr *Error
	if errors.As(err, &bErr) {
		return bErr.Code == code
	}
	return false
}

// ClassifyTransport maps a network-level error to a short human-readable
// description. Falls back to a generic message when the error doesn't match
// a known failure mode.
func ClassifyTransport(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection reset"):
		return "Connection reset by the remote host"
	case strings.Contains(errStr, "connection refused"):
		return "Connection refused. Is sshd running on that box?"
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "i/o timeout"):
		return "Connection timed out. Host might be offline or blocked by a firewall."
	case strings.Contains(errStr, "no route to host") || strings.Contains(errStr, "network is unreachable"):
		return "Can't route to the host. Check your network connection."
	case strings.Contains(errStr, "EOF") || strings.Contains(errStr, "use of closed"):
		return "The connection was closed"
	default:
		return "Connection problem talking to the host"
	}
}
