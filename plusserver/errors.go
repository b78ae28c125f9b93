package plusserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind classifies failures of the client.
type ErrorKind int

const (
	// KindConfiguration: credentials missing, or a state check without a handle id.
	KindConfiguration ErrorKind = iota + 1
	// KindValidation: caller input rejected before any network call.
	KindValidation
	// KindCommunication: no usable answer from the provider (network, timeout).
	KindCommunication
	// KindRequest: the provider answered with a failure or an unknown payload.
	KindRequest
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindCommunication:
		return "communication"
	case KindRequest:
		return "request"
	}
	return "unknown"
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrConfiguration = errors.New("plusserver: configuration error")
	ErrValidation    = errors.New("plusserver: validation error")
	ErrCommunication = errors.New("plusserver: communication error")
	ErrRequest       = errors.New("plusserver: request error")

	// ErrDeadlineExceeded is the cause of a wait that ran out of time.
	ErrDeadlineExceeded = errors.New("wait deadline exceeded")
)

// Error is returned by every client operation.
type Error struct {
	Kind ErrorKind
	// StatusCode is the HTTP status of a non-2xx provider answer.
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, fmt.Sprintf("plusserver %s error", e.Kind))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	return target != nil && target == e.Kind.sentinel()
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindValidation:
		return ErrValidation
	case KindCommunication:
		return ErrCommunication
	case KindRequest:
		return ErrRequest
	}
	return nil
}

// KindOf returns the kind of err, or 0 when err is not a client error.
func KindOf(err error) ErrorKind {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.Kind
	}
	return 0
}

// IsTimeout reports whether err was caused by a network or wait timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// suppressible reports whether fail-silently mode may swallow err.
// Configuration and validation errors are programmer errors and always surface.
func suppressible(err error) bool {
	switch KindOf(err) {
	case KindCommunication, KindRequest:
		return true
	}
	return false
}

func configurationError(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func communicationError(message string, cause error) *Error {
	return &Error{Kind: KindCommunication, Message: message, Cause: cause}
}

func requestError(statusCode int, message string) *Error {
	return &Error{Kind: KindRequest, StatusCode: statusCode, Message: message}
}
