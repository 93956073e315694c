package orchestrator

import (
	"errors"
	"fmt"
)

var (
	ErrNoSession = errors.New("no active session")
	ErrClosed    = errors.New("orchestrator closed")
)

// OrchestratorError reports a failed session operation.
type OrchestratorError struct {
	Op       string
	RemoteID string
	Err      error
}

func (e *OrchestratorError) Error() string {
	if e.RemoteID != "" {
		return fmt.Sprintf("%s (%s): %v", e.Op, e.RemoteID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OrchestratorError) Unwrap() error {
	return e.Err
}

func NewError(op, remoteID string, err error) *OrchestratorError {
	return &OrchestratorError{Op: op, RemoteID: remoteID, Err: err}
}
