package xstreams

import (
	"errors"
	"fmt"
)

// ArgumentError reports a missing or invalid construction argument.
type ArgumentError struct {
	Name   string
	Reason string
}

func (e *ArgumentError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("xstreams: argument %q is required", e.Name)
	}
	return fmt.Sprintf("xstreams: argument %q %s", e.Name, e.Reason)
}

// Required returns an ArgumentError for a nil collaborator.
func Required(name string) error { return &ArgumentError{Name: name} }

var (
	// ErrInvalidToken is wrapped by token parse failures.
	ErrInvalidToken = errors.New("xstreams: invalid sequence token")
	// ErrTokenMismatch is returned when comparing tokens of different concrete types.
	ErrTokenMismatch = errors.New("xstreams: incompatible sequence token type")

	ErrReceiverClosed      = errors.New("xstreams: receiver is shut down")
	ErrShutdownTimeout     = errors.New("xstreams: receiver shutdown timed out")
	ErrNoHandler           = errors.New("xstreams: pump requires a handler")
	ErrHandlerPanic        = errors.New("xstreams: handler panic")
	ErrCodecNotRegistered  = errors.New("xstreams: codec not registered")
	ErrSubscriptionFaulted = errors.New("xstreams: subscription faulted")
	ErrNilLogger           = errors.New("xstreams: logger must not be nil")

	ErrObserverPoolShutdownTimeout = errors.New("xstreams: observer pool shutdown timed out")
)
