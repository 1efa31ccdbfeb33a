package remote

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind is the closed set of remote failure classes.
type ErrorKind int

const (
	// KindServer is a genuine server-side failure. Surfaced to the user.
	KindServer ErrorKind = iota
	// KindValidation is a field-validation rejection. Surfaced to the user.
	KindValidation
	// KindConflict is a uniqueness violation on respondent or response
	// identity. Interpreted as an idempotent success or sync race, never
	// surfaced as a failure.
	KindConflict
	// KindNetwork is missing connectivity or a transport failure. Routed
	// to the sync queue.
	KindNetwork
)

// Error is a discriminated remote API failure. Call sites branch on Kind via
// the Is* helpers rather than sniffing message strings.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	case e.Message != "":
		return e.Message
	case e.Cause != nil:
		return e.Cause.Error()
	default:
		return "remote error"
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ValidationError returns a field-validation rejection.
func ValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// ConflictError returns a uniqueness-violation rejection.
func ConflictError(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// NetworkError wraps a transport failure.
func NetworkError(cause error) *Error {
	return &Error{Kind: KindNetwork, Message: "network failure", Cause: cause}
}

// ServerError returns a server-side failure carrying the server's message.
func ServerError(message string) *Error {
	return &Error{Kind: KindServer, Message: message}
}

func kindOf(err error) (ErrorKind, bool) {
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr.Kind, true
	}
	return 0, false
}

// IsNetwork reports whether err is a connectivity failure. A deadline that
// expired on a remote call counts: an unbounded hang and a dead link are
// indistinguishable to the caller, and both must route to the sync queue.
func IsNetwork(err error) bool {
	if kind, ok := kindOf(err); ok {
		return kind == KindNetwork
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsConflict reports whether err is a uniqueness conflict.
func IsConflict(err error) bool {
	kind, ok := kindOf(err)
	return ok && kind == KindConflict
}

// IsValidation reports whether err is a field-validation rejection.
func IsValidation(err error) bool {
	kind, ok := kindOf(err)
	return ok && kind == KindValidation
}

// Retryable reports whether err should be replayed through the sync queue
// rather than surfaced: network failures and sync-race conflicts.
func Retryable(err error) bool {
	return IsNetwork(err) || IsConflict(err)
}
