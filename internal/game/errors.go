// internal/game/errors.go
package game

import "fmt"

// ErrorKind classifies session errors so the socket layer can pick the right
// outbound event for the offending connection. No kind ever propagates into
// shared session state; the session is left consistent on every error return.
type ErrorKind int

const (
	// ErrValidation covers missing or out-of-range input (no room code, bad card index).
	ErrValidation ErrorKind = iota
	// ErrAuthorization covers non-host attempts at host-only actions.
	ErrAuthorization
	// ErrStateConflict covers actions invalid for the current session state
	// (already started, already selected, wrong card).
	ErrStateConflict
	// ErrCapacity means the room is full.
	ErrCapacity
	// ErrNotFound means the referenced session or player does not exist.
	ErrNotFound
	// ErrPersistence wraps a durable-registry write failure. Gameplay never
	// rolls back on it; it is logged and tolerated.
	ErrPersistence
)

// Error is the session error type carried back to the socket layer.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapPersistence tags a durable-registry write failure with ErrPersistence.
// Passes nil and already-typed errors through unchanged.
func WrapPersistence(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*Error); ok {
		return err
	}
	return newError(ErrPersistence, "durable status write failed: %v", err)
}

// KindOf extracts the ErrorKind from err, defaulting to ErrValidation for
// errors that did not originate in this package.
func KindOf(err error) ErrorKind {
	if se, ok := err.(*Error); ok {
		return se.Kind
	}
	return ErrValidation
}
