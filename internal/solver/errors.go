package solver

import (
	"errors"
	"fmt"
)

// Operation sentinels, matchable with errors.Is.
var (
	ErrUpload = errors.New("upload")
	ErrSolve  = errors.New("solve")
)

// Failure kind sentinels, matchable with errors.Is.
var (
	// ErrTransport covers unreachable hosts, timeouts and cancelled requests.
	ErrTransport = errors.New("transport failure")
	// ErrService covers non-success HTTP statuses.
	ErrService = errors.New("service failure")
	// ErrProtocol covers response bodies that do not match the contract.
	ErrProtocol = errors.New("protocol failure")
)

// ErrEmptyQuestion is returned by SolveQuestion for an empty question; no
// request is sent.
var ErrEmptyQuestion = errors.New("question is empty")

// Generic user-facing messages used when the service gives no detail.
const (
	UploadFailedMessage = "Upload failed"
	SolveFailedMessage  = "Solving failed"
)

// Error is a collaborator call failure.
type Error struct {
	Op     error // ErrUpload or ErrSolve
	Kind   error // ErrTransport, ErrService or ErrProtocol
	Status int   // HTTP status, 0 when no response was received
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%v: %v", e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the op, the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	errs := []error{e.Op, e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Message returns the user-facing text: the service detail when present,
// otherwise the generic message for the operation.
func (e *Error) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Op == ErrSolve {
		return SolveFailedMessage
	}
	return UploadFailedMessage
}

// outcome is the metrics label for the failure kind.
func (e *Error) outcome() string {
	switch e.Kind {
	case ErrService:
		return "service"
	case ErrProtocol:
		return "protocol"
	default:
		return "transport"
	}
}

// UserMessage normalizes any error from this package into display text.
func UserMessage(err error, fallback string) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Message()
	}
	return fallback
}
