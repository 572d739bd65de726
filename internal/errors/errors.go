// Package errors defines the workbench error taxonomy and user-safe messages.
package errors

import (
	"errors"
	"fmt"
)

// Kind categorizes a workbench failure. Each kind is also a sentinel error so
// callers can use errors.Is(err, errors.ErrGraphNotFound).
type Kind string

const (
	KindNetwork         Kind = "network"
	KindServer          Kind = "server"
	KindTimeout         Kind = "timeout"
	KindGraphNotFound   Kind = "graph_not_found"
	KindIneligibleAlert Kind = "ineligible_alert"
	KindNoActiveDispute Kind = "no_active_dispute"
	KindNoSelection     Kind = "no_selection"
	KindValidation      Kind = "validation"
	KindPersistence     Kind = "persistence"
	KindNotFound        Kind = "not_found"
)

// Sentinel errors, one per kind.
var (
	ErrNetwork         = errors.New("workbench: network error")
	ErrServer          = errors.New("workbench: server error")
	ErrTimeout         = errors.New("workbench: request timed out")
	ErrGraphNotFound   = errors.New("workbench: graph not found")
	ErrIneligibleAlert = errors.New("workbench: alert is not eligible for dispute")
	ErrNoActiveDispute = errors.New("workbench: no active dispute")
	ErrNoSelection     = errors.New("workbench: no selection")
	ErrValidation      = errors.New("workbench: validation failed")
	ErrPersistence     = errors.New("workbench: persistence failed")
	ErrNotFound        = errors.New("workbench: not found")
)

var sentinels = map[Kind]error{
	KindNetwork:         ErrNetwork,
	KindServer:          ErrServer,
	KindTimeout:         ErrTimeout,
	KindGraphNotFound:   ErrGraphNotFound,
	KindIneligibleAlert: ErrIneligibleAlert,
	KindNoActiveDispute: ErrNoActiveDispute,
	KindNoSelection:     ErrNoSelection,
	KindValidation:      ErrValidation,
	KindPersistence:     ErrPersistence,
	KindNotFound:        ErrNotFound,
}

// Error wraps a workbench failure with the operation and kind.
type Error struct {
	Op      string // Operation that failed (e.g. "alerts.Fetch", "graph.Load")
	Kind    Kind
	Status  int    // HTTP status for server errors, 0 otherwise
	Message string // Server- or caller-supplied detail
	Err     error  // Underlying cause, may be nil
}

// Error returns the error message.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg = e.Message
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// New creates an Error of the given kind.
func New(op string, kind Kind, message string) *Error {
	return &Error{Op: op, Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind around a cause.
func Wrap(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Server creates a server error carrying the HTTP status and body message.
func Server(op string, status int, message string) *Error {
	return &Error{Op: op, Kind: KindServer, Status: status, Message: message}
}

// Validation creates a validation error.
func Validation(op, message string) *Error {
	return New(op, KindValidation, message)
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusOf returns the first non-zero HTTP status of any *Error in err's
// chain, so a server error wrapped by another kind still reports its status.
func StatusOf(err error) int {
	var e *Error
	for errors.As(err, &e) {
		if e.Status != 0 {
			return e.Status
		}
		err = e.Err
	}
	return 0
}

// IsNotFoundStatus reports whether err is a server error with HTTP 404.
func IsNotFoundStatus(err error) bool {
	return KindOf(err) == KindServer && StatusOf(err) == 404
}

// Is and As re-export the standard library helpers so callers importing this
// package under its own name do not also need the standard errors package.
func Is(err, target error) bool { return errors.Is(err, target) }

// As re-exports errors.As.
func As(err error, target any) bool { return errors.As(err, target) }
