package filetransfer

import (
	"errors"
	"fmt"
)

var (
	ErrChunkSend       = errors.New("chunk send failed")
	ErrControlSend     = errors.New("control message send failed")
	ErrMalformed       = errors.New("malformed control message")
	ErrUnknownControl  = errors.New("unknown control message")
	ErrTransferAborted = errors.New("transfer aborted")
)

type TransferError struct {
	Op   string
	File string
	Err  error
}

func (e *TransferError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.File, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *TransferError {
	return &TransferError{Op: op, Err: err}
}

func NewFileError(op, file string, err error) *TransferError {
	return &TransferError{Op: op, File: file, Err: err}
}

// wrapCause keeps both the sentinel and the underlying cause matchable.
func wrapCause(sentinel, cause error) error {
	return fmt.Errorf("%w: %w", sentinel, cause)
}
