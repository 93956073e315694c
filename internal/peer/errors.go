package peer

import (
	"errors"
	"fmt"
)

var (
	ErrChannelNotOpen = errors.New("data channel not open")
	ErrSessionClosed  = errors.New("session closed")
	ErrWrongRole      = errors.New("operation not valid for session role")

	ErrNoConnectionFactory = errors.New("no connection factory to replace the transport")
)

// NegotiationError reports a failed negotiation step with one remote.
type NegotiationError struct {
	Op       string
	RemoteID string
	Err      error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("%s with %s: %v", e.Op, e.RemoteID, e.Err)
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}

func NewNegotiationError(op, remoteID string, err error) *NegotiationError {
	return &NegotiationError{Op: op, RemoteID: remoteID, Err: err}
}
