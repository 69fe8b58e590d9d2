package jobs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"mediaforge-backend/internal/provider"
)

// ErrorKind categorizes task failures for user display and retry
// decisions.
type ErrorKind int

const (
	ErrTimeout ErrorKind = iota + 1
	ErrNetworkUnreachable
	ErrProvider
	ErrDecode
	ErrPersistence
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTimeout:
		return "timeout"
	case ErrNetworkUnreachable:
		return "network_unreachable"
	case ErrProvider:
		return "provider_error"
	case ErrDecode:
		return "decode_error"
	case ErrPersistence:
		return "persistence_error"
	default:
		return "unknown"
	}
}

// TaskError is a classified task failure. Message is always safe to
// show to the user; Err retains the cause for logs.
type TaskError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *TaskError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TaskError) Unwrap() error { return e.Err }

func newTaskError(kind ErrorKind, message string, err error) *TaskError {
	return &TaskError{Kind: kind, Message: message, Err: err}
}

// Classify translates a raw error into a user-legible TaskError. Raw
// network errors are never passed through.
func Classify(err error) *TaskError {
	var te *TaskError
	if errors.As(err, &te) {
		return te
	}

	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = "the provider rejected the request"
		}
		return newTaskError(ErrProvider, msg, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return newTaskError(ErrTimeout, "the request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newTaskError(ErrTimeout, "the request timed out", err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return newTaskError(ErrNetworkUnreachable, "could not reach the server", err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return newTaskError(ErrNetworkUnreachable, "could not connect to the server", err)
	}
	if errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.ENETDOWN) {
		return newTaskError(ErrNetworkUnreachable, "no internet connection", err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return newTaskError(ErrNetworkUnreachable, "a network error occurred", err)
	}

	return newTaskError(ErrProvider, "generation failed", err)
}

// transient reports whether an error is worth a local retry.
func transient(err error) bool {
	switch Classify(err).Kind {
	case ErrTimeout, ErrNetworkUnreachable:
		return true
	}
	return false
}
