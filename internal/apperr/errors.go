// Package apperr defines the error taxonomy shared by every scribe component.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrUnauthenticated = errors.New("authentication required")
	ErrCancelled       = errors.New("cancelled")
	ErrBusy            = errors.New("a submission is already in progress")
)

// Kind classifies an Error for display and propagation decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuth
	KindRemote
	KindParse
	KindNetwork
	KindPermission
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindRemote:
		return "remote"
	case KindParse:
		return "parse"
	case KindNetwork:
		return "network"
	case KindPermission:
		return "permission"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Message is what the user sees.
type Error struct {
	Kind    Kind
	Status  int // HTTP status when the failure came from a response
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String() + " error"
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets auth failures match ErrUnauthenticated regardless of how they were built.
func (e *Error) Is(target error) bool {
	return target == ErrUnauthenticated && e.Kind == KindAuth
}

// Validation builds a client-side rejection. It never reaches the network.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Auth builds a missing or invalidated credential failure.
func Auth(status int, msg string) *Error {
	if msg == "" {
		msg = "Session expired. Please log in again."
	}
	return &Error{Kind: KindAuth, Status: status, Message: msg, Err: ErrUnauthenticated}
}

// Remote wraps a structured error payload returned by the backend.
func Remote(status int, msg string) *Error {
	return &Error{Kind: KindRemote, Status: status, Message: msg}
}

// NotFound reports a record the backend does not have.
func NotFound(msg string) *Error {
	return &Error{Kind: KindRemote, Status: 404, Message: msg, Err: ErrNotFound}
}

// Parse reports a response body that could not be decoded.
func Parse(status int, msg string, err error) *Error {
	return &Error{Kind: KindParse, Status: status, Message: msg, Err: err}
}

// Network reports a request that never got a response.
func Network(err error) *Error {
	return &Error{
		Kind:    KindNetwork,
		Message: "Connection error. Please verify the backend is running.",
		Err:     err,
	}
}

// Permission reports a media device that could not be acquired.
func Permission(err error) *Error {
	return &Error{
		Kind:    KindPermission,
		Message: "Microphone access denied. Please allow microphone permissions.",
		Err:     err,
	}
}

// Timeout reports a bounded wait that expired.
func Timeout(err error) *Error {
	return &Error{
		Kind:    KindTimeout,
		Message: "The backend did not answer in time. Please try again.",
		Err:     err,
	}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrUnauthenticated) {
		return KindAuth
	}
	return KindUnknown
}

// StatusOf returns the HTTP status recorded on err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}
