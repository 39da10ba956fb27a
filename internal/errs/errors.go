// Package errs provides the unified error type used across the connector.
//
// Every subsystem (database, session layer, server, …) wraps its native
// errors into *errs.Error before returning them to callers. Callers use
// the Is* predicates to handle errors without importing driver-specific
// packages.
//
// Usage:
//
//	// In the session layer — wrap native errors:
//	return errs.Wrap(errs.ErrKindIntrospectionFailed, "reading GTID set", sqlErr)
//
//	// In a caller — check error kind:
//	if errs.IsConfigConflict(err) {
//	    log.Fatal("conflicting TLS configuration")
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing driver-specific codes.
// The database layer maps go-sql-driver errors to one of these kinds,
// giving callers a single consistent API.
type ErrKind int

const (
	ErrKindUnknown             ErrKind = iota
	ErrKindNotFound                    // no rows matched the query
	ErrKindConnectionFailed            // connect, handshake or capability probe failure
	ErrKindTimeout                     // context deadline / cancellation
	ErrKindQueryFailed                 // SQL execution error
	ErrKindIntrospectionFailed         // diagnostic query (GTID, grants, variables) failed
	ErrKindInvalidInput                // bad arguments or unparseable configuration
	ErrKindConfigConflict              // process-wide property already set to a different value
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindIntrospectionFailed:
		return "introspection_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindConfigConflict:
		return "config_conflict"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all connector subsystems.
// Producers build it with New/Wrap; callers inspect it via the Is*
// predicates below.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err represents a "no rows" result.
func IsNotFound(err error) bool {
	return kindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return kindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity, auth or
// capability-probe failure.
func IsConnectionFailed(err error) bool {
	return kindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a SQL execution failure.
func IsQueryFailed(err error) bool {
	return kindOf(err) == ErrKindQueryFailed
}

// IsIntrospectionFailed reports whether err came from one of the read-only
// diagnostic queries (GTID set, grants, system variables).
func IsIntrospectionFailed(err error) bool {
	return kindOf(err) == ErrKindIntrospectionFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return kindOf(err) == ErrKindInvalidInput
}

// IsConfigConflict reports whether err was caused by a process-wide
// property already holding a value different from the configured one.
func IsConfigConflict(err error) bool {
	return kindOf(err) == ErrKindConfigConflict
}

// kindOf extracts the ErrKind from any error in the chain.
func kindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
