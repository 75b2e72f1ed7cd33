package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Serial port defaults used by the board's application firmware.
const (
	DefaultBaudRate    = 9600
	DefaultReadTimeout = 100 * time.Millisecond
	readBufferSize     = 128
)

// SerialConfig describes how to open a serial port.
type SerialConfig struct {
	// Port is the device name (e.g. /dev/ttyUSB0, COM3)
	Port string

	// BaudRate defaults to DefaultBaudRate
	BaudRate int

	// ReadTimeout bounds a single read; Receive loops until its own timeout
	ReadTimeout time.Duration
}

// Serial is a Conn backed by a go.bug.st/serial port, 8N1.
//
// Send and Receive may be called from different goroutines; each direction is
// serialised independently.
type Serial struct {
	name string
	port serial.Port

	sendMu sync.Mutex
	recvMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}

	readTimeout time.Duration
}

// OpenSerial opens and configures a serial port.
func OpenSerial(cfg SerialConfig) (*Serial, error) {
	if cfg.Port == "" {
		return nil, &Error{Op: "open", Err: errors.New("no port name given")}
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, &Error{Op: "open", Port: cfg.Port, Err: err}
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, &Error{Op: "open", Port: cfg.Port, Err: fmt.Errorf("set read timeout: %w", err)}
	}

	return &Serial{
		name:        cfg.Port,
		port:        port,
		closed:      make(chan struct{}),
		readTimeout: cfg.ReadTimeout,
	}, nil
}

// Name returns the port name.
func (s *Serial) Name() string {
	return s.name
}

// Send writes the whole frame to the port.
func (s *Serial) Send(ctx context.Context, frame []byte) error {
	if err := s.check(ctx); err != nil {
		return &Error{Op: "send", Port: s.name, Err: err}
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	for written := 0; written < len(frame); {
		n, err := s.port.Write(frame[written:])
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

// Receive returns the first non-empty read within timeout.
// The context is checked between port reads.
func (s *Serial) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultResponseTimeout
	}

	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	deadline := time.Now().Add(timeout)
	buf := make([]byte, readBufferSize)

	for {
		if err := s.check(ctx); err != nil {
			return nil, &Error{Op: "receive", Port: s.name, Err: err}
		}

		n, err := s.port.Read(buf)
		if err != nil {
			return nil, &Error{Op: "receive", Port: s.name, Err: err}
		}
		if n > 0 {
			out := make([]byte, n)
			copy(out, buf[:n])
			return out, nil
		}

		if !time.Now().Before(deadline) {
			return nil, &Error{Op: "receive", Port: s.name, Err: ErrTimeout}
		}
	}
}

// Close closes the port. Subsequent calls return nil.
func (s *Serial) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		if cerr := s.port.Close(); cerr != nil {
			err = &Error{Op: "close", Port: s.name, Err: cerr}
		}
	})
	return err
}

func (s *Serial) check(ctx context.Context) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	return ctx.Err()
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
