package bootloader

import (
	"errors"
	"fmt"
)

var (
	// ErrTransferInProgress is returned by Start while another session is active
	ErrTransferInProgress = errors.New("firmware transfer already in progress")

	// ErrEmptyImage is returned when the image has no bytes
	ErrEmptyImage = errors.New("firmware image is empty")

	// ErrNoResponsePath is returned when replies are awaited but the transport cannot receive
	ErrNoResponsePath = errors.New("transport has no receive path")

	// ErrCancelled is the reason recorded when Cancel stops a session
	ErrCancelled = errors.New("transfer cancelled")
)

// Transfer stages reported in TransferError.
const (
	StageTrigger    = "trigger"
	StageData       = "data"
	StageCRC        = "crc"
	StageTerminator = "terminator"
	StageResponse   = "response"
)

// TransferError indicates a transport fault that ended the session.
// The image must be resent from offset zero.
type TransferError struct {
	Stage string
	Seq   byte
	Err   error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed at %s frame (seq %d): %v", e.Stage, e.Seq, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// TransferAbortedError indicates the session was stopped by Cancel or its context.
type TransferAbortedError struct {
	BytesSent  int
	TotalBytes int
	Err        error
}

func (e *TransferAbortedError) Error() string {
	return fmt.Sprintf("transfer aborted after %d of %d bytes: %v", e.BytesSent, e.TotalBytes, e.Err)
}

func (e *TransferAbortedError) Unwrap() error {
	return e.Err
}

// IsAborted returns true if err is or wraps a TransferAbortedError.
func IsAborted(err error) bool {
	var ae *TransferAbortedError
	return errors.As(err, &ae)
}
