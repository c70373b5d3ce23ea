package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Reason classifies why a failed portal call is considered transient.
type Reason string

const (
	// ReasonNone means the error is not transient and must not be retried.
	ReasonNone Reason = ""
	// ReasonTimeout covers expired deadlines and stalled reads.
	ReasonTimeout Reason = "timeout"
	// ReasonConnectionError covers resets, refusals, and DNS failures.
	ReasonConnectionError Reason = "connection_error"
)

// TransientError marks an error as retryable with an explicit reason.
// The fast path wraps retryable HTTP statuses this way.
type TransientError struct {
	Err    error
	Reason Reason
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as retryable for the given reason.
func NewTransientError(err error, reason Reason) *TransientError {
	return &TransientError{Err: err, Reason: reason}
}

// Classify inspects an error chain and returns the transient reason it
// maps to, or ReasonNone for permanent failures. Context cancellation is
// never transient: an abandoned run must stay abandoned.
func Classify(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	if errors.Is(err, context.Canceled) {
		return ReasonNone
	}

	var te *TransientError
	if errors.As(err, &te) {
		return te.Reason
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return ReasonConnectionError
	}

	// Heuristics for errors already flattened to strings by HTTP clients.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "i/o timeout"),
		strings.Contains(msg, "tls handshake timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return ReasonTimeout
	case strings.Contains(msg, "connection reset by peer"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "server closed idle connection"),
		strings.Contains(msg, "transport connection broken"):
		return ReasonConnectionError
	}

	return ReasonNone
}

// IsTransient reports whether err maps to any retryable reason.
func IsTransient(err error) bool {
	return Classify(err) != ReasonNone
}

// IsTransientHTTPStatus reports whether an HTTP status from the portal is
// safe to retry.
func IsTransientHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
