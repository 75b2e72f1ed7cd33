package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultResponseTimeout is the bounded wait applied to a device reply before
// it is treated as a transport fault.
const DefaultResponseTimeout = 5 * time.Second

// Transport sends frames to the board.
// Implementations must deliver the whole frame or return an error.
type Transport interface {
	Send(ctx context.Context, frame []byte) error
}

// Receiver is implemented by transports that have a response path.
type Receiver interface {
	// Receive waits up to timeout for incoming bytes.
	// A timeout with no data returns an *Error wrapping ErrTimeout.
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// Conn is a transport that can both send and receive.
type Conn interface {
	Transport
	Receiver
	Close() error
}

var (
	// ErrTimeout is returned when no data arrives within the receive timeout
	ErrTimeout = errors.New("timeout waiting for data")

	// ErrClosed is returned by operations on a closed transport
	ErrClosed = errors.New("transport closed")

	// ErrShortWrite is returned when the port accepts fewer bytes than given
	ErrShortWrite = errors.New("short write")
)

// Error is a send or receive failure reported by the underlying link.
// It is surfaced verbatim to callers and never retried by this module.
type Error struct {
	// Op is "send", "receive", "open" or "close"
	Op string

	// Port names the link, if known
	Port string

	Err error
}

func (e *Error) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransportError returns true if err is or wraps a transport *Error.
func IsTransportError(err error) bool {
	var te *Error
	return errors.As(err, &te)
}
