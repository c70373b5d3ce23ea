package driver

import (
	"errors"
	"fmt"
)

// Kind classifies a driver failure so the engines can switch on it
// instead of string-matching.
type Kind int

const (
	// KindNavigation covers failed page loads and lost navigations.
	KindNavigation Kind = iota + 1
	// KindNotFound means the queried element, row, or field is absent.
	KindNotFound
	// KindTimeout means a settle or render wait expired.
	KindTimeout
	// KindDisabled means the target element exists but is read-only.
	KindDisabled
	// KindInternal covers backend faults that fit no other kind.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNavigation:
		return "navigation"
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	case KindDisabled:
		return "disabled"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the failure type every Page operation returns.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("driver: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("driver: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a driver Error.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a driver Error from a format string.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// IsKind reports whether err carries the given driver error kind.
func IsKind(err error, kind Kind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}
