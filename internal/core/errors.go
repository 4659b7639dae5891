package core

import (
	"errors"
	"fmt"
)

// Kind classifies the error taxonomy from the error-handling design: every
// failure surfaced by the core falls into exactly one of these buckets.
type Kind int

const (
	KindInternal Kind = iota
	KindTransport
	KindNotFound
	KindOwnershipConflict
	KindLimitReached
	KindConditionFailed
	KindMissingSignal
	KindToolTimeout
	KindCancelled
	KindSchemaValidation
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "Transport"
	case KindNotFound:
		return "NotFound"
	case KindOwnershipConflict:
		return "OwnershipConflict"
	case KindLimitReached:
		return "LimitReached"
	case KindConditionFailed:
		return "ConditionFailed"
	case KindMissingSignal:
		return "MissingSignal"
	case KindToolTimeout:
		return "ToolTimeout"
	case KindCancelled:
		return "Cancelled"
	case KindSchemaValidation:
		return "SchemaValidation"
	default:
		return "Internal"
	}
}

// Error is the one error type used across the runtime. It carries a Kind for
// programmatic dispatch, a human message, and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind around an existing cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NotFound builds a KindNotFound error.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// OwnershipConflict builds a KindOwnershipConflict error.
func OwnershipConflict(message string) *Error { return New(KindOwnershipConflict, message) }

// LimitReached builds a KindLimitReached error.
func LimitReached(message string) *Error { return New(KindLimitReached, message) }

// ToolTimeout builds a KindToolTimeout error.
func ToolTimeout(message string) *Error { return New(KindToolTimeout, message) }

// Cancelled builds a KindCancelled error.
func Cancelled(message string) *Error { return New(KindCancelled, message) }

// SchemaValidation builds a KindSchemaValidation error.
func SchemaValidation(message string) *Error { return New(KindSchemaValidation, message) }

// MissingSignal builds a KindMissingSignal error.
func MissingSignal(message string) *Error { return New(KindMissingSignal, message) }

// ConditionFailed builds a KindConditionFailed error.
func ConditionFailed(message string) *Error { return New(KindConditionFailed, message) }

// Transport builds a KindTransport error.
func Transport(message string, cause error) *Error { return Wrap(KindTransport, message, cause) }

// KindOf extracts the Kind from err, defaulting to KindInternal for
// unrecognized error types.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsTransient reports whether err is worth retrying: transport failures and
// tool timeouts are transient, everything else (bad routes, validation
// failures, cancellation) is not.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindToolTimeout:
		return true
	default:
		return false
	}
}
