package transport

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"
)

// Stream adapts an io.ReadWriter (pipe, TCP bridge, test double) to Conn.
//
// Receive runs the blocking Read in a goroutine so the timeout and context can
// be honoured. A read abandoned on timeout keeps running; its bytes are handed
// to the next Receive call.
type Stream struct {
	rw   io.ReadWriter
	name string

	sendMu sync.Mutex
	recvMu sync.Mutex

	pending chan readResult

	closeOnce sync.Once
	closed    chan struct{}
}

type readResult struct {
	data []byte
	err  error
}

// NewStream wraps rw. The name is used in error messages.
func NewStream(rw io.ReadWriter, name string) *Stream {
	if rw == nil {
		panic("stream cannot be nil")
	}
	return &Stream{
		rw:     rw,
		name:   name,
		closed: make(chan struct{}),
	}
}

// Send writes the whole frame.
func (s *Stream) Send(ctx context.Context, frame []byte) error {
	if err := s.check(ctx); err != nil {
		return &Error{Op: "send", Port: s.name, Err: err}
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	for written := 0; written < len(frame); {
		n, err := s.rw.Write(frame[written:])
		if err != nil {
			return &Error{Op: "send", Port: s.name, Err: err}
		}
		if n == 0 {
			return &Error{Op: "send", Port: s.name, Err: ErrShortWrite}
		}
		written += n
	}
	return nil
}

// Receive waits up to timeout for the next non-empty read.
func (s *Stream) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultResponseTimeout
	}
	if err := s.check(ctx); err != nil {
		return nil, &Error{Op: "receive", Port: s.name, Err: err}
	}

	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	if s.pending == nil {
		s.pending = make(chan readResult, 1)
		go s.read(s.pending)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-s.pending:
		s.pending = nil
		if res.err != nil {
			if errors.Is(res.err, os.ErrDeadlineExceeded) {
				return nil, &Error{Op: "receive", Port: s.name, Err: ErrTimeout}
			}
			return nil, &Error{Op: "receive", Port: s.name, Err: res.err}
		}
		return res.data, nil
	case <-timer.C:
		return nil, &Error{Op: "receive", Port: s.name, Err: ErrTimeout}
	case <-ctx.Done():
		return nil, &Error{Op: "receive", Port: s.name, Err: ctx.Err()}
	case <-s.closed:
		return nil, &Error{Op: "receive", Port: s.name, Err: ErrClosed}
	}
}

func (s *Stream) read(out chan<- readResult) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.rw.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			out <- readResult{data: data}
			return
		}
		if err != nil {
			out <- readResult{err: err}
			return
		}
	}
}

// Close closes the underlying stream if it implements io.Closer.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		if c, ok := s.rw.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil {
				err = &Error{Op: "close", Port: s.name, Err: cerr}
			}
		}
	})
	return err
}

func (s *Stream) check(ctx context.Context) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	return ctx.Err()
}
