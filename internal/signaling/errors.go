package signaling

import (
	"errors"
	"fmt"
)

var (
	ErrUnreachable    = errors.New("signaling relay unreachable")
	ErrClosed         = errors.New("signaling client closed")
	ErrNoWelcome      = errors.New("relay did not assign a participant id")
	ErrUnknownMessage = errors.New("unknown message type")
)

type SignalingError struct {
	Op      string
	Err     error
	Details string
}

func (e *SignalingError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SignalingError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *SignalingError {
	return &SignalingError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *SignalingError {
	return &SignalingError{Op: op, Err: err, Details: details}
}
