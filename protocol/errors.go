package protocol

import (
	"errors"
	"fmt"
)

// EncodingError reports an input that cannot be encoded into a frame.
// Inputs are rejected before any frame is built; nothing is clamped.
type EncodingError struct {
	// Field names the rejected input
	Field string

	// Value is the rejected value
	Value int

	// Min and Max are the accepted bounds (inclusive)
	Min int
	Max int
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("invalid %s %d: valid range is %d-%d", e.Field, e.Value, e.Min, e.Max)
}

// IsEncodingError returns true if err is or wraps an EncodingError.
func IsEncodingError(err error) bool {
	var ee *EncodingError
	return errors.As(err, &ee)
}

// ChecksumError reports a frame whose checksum does not match its contents.
type ChecksumError struct {
	Expected uint16
	Actual   uint16
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: frame carries 0x%04X, computed 0x%04X", e.Expected, e.Actual)
}

// ErrShortFrame is returned when a buffer is too small to hold a frame.
var ErrShortFrame = errors.New("frame too short")

// FuncName returns a human-readable name for a transfer function code.
func FuncName(code byte) string {
	switch code {
	case FuncSendData:
		return "data"
	case FuncSendCRC:
		return "crc"
	default:
		return fmt.Sprintf("func(0x%02X)", code)
	}
}
