package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pipeDevice records writes and serves reads from an io.Pipe.
type pipeDevice struct {
	mu       sync.Mutex
	written  bytes.Buffer
	writeErr error

	r *io.PipeReader
	w *io.PipeWriter
}

func newPipeDevice() *pipeDevice {
	r, w := io.Pipe()
	return &pipeDevice{r: r, w: w}
}

func (d *pipeDevice) Read(p []byte) (int, error) {
	return d.r.Read(p)
}

func (d *pipeDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	return d.written.Write(p)
}

func (d *pipeDevice) Close() error {
	return d.r.Close()
}

func (d *pipeDevice) sent() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.written.Bytes()...)
}

func TestStreamSend(t *testing.T) {
	dev := newPipeDevice()
	s := NewStream(dev, "pipe")

	require.NoError(t, s.Send(context.Background(), []byte{0xCC, 0x01, 0x01, 0xBF}))
	require.NoError(t, s.Send(context.Background(), []byte{0xF5}))
	require.Equal(t, []byte{0xCC, 0x01, 0x01, 0xBF, 0xF5}, dev.sent())
}

func TestStreamSendError(t *testing.T) {
	dev := newPipeDevice()
	dev.writeErr = errors.New("device unplugged")
	s := NewStream(dev, "pipe")

	err := s.Send(context.Background(), []byte{0x01})
	require.Error(t, err)
	require.True(t, IsTransportError(err))

	var te *Error
	require.ErrorAs(t, err, &te)
	require.Equal(t, "send", te.Op)
	require.Equal(t, "send pipe: device unplugged", err.Error())
}

func TestStreamReceive(t *testing.T) {
	dev := newPipeDevice()
	s := NewStream(dev, "pipe")

	go dev.w.Write([]byte{0xAA, 0x01})

	data, err := s.Receive(context.Background(), time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0x01}, data)
}

func TestStreamReceiveTimeoutKeepsLateData(t *testing.T) {
	dev := newPipeDevice()
	s := NewStream(dev, "pipe")

	_, err := s.Receive(context.Background(), 20*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	go dev.w.Write([]byte{0x42})

	data, err := s.Receive(context.Background(), time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte{0x42}, data)
}

func TestStreamReceiveContextCancelled(t *testing.T) {
	dev := newPipeDevice()
	s := NewStream(dev, "pipe")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := s.Receive(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStreamReceiveReadError(t *testing.T) {
	dev := newPipeDevice()
	s := NewStream(dev, "pipe")

	dev.w.CloseWithError(errors.New("line noise"))

	_, err := s.Receive(context.Background(), time.Second)
	require.Error(t, err)
	require.Contains(t, err.Error(), "line noise")
}

func TestStreamClose(t *testing.T) {
	dev := newPipeDevice()
	s := NewStream(dev, "pipe")

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err := s.Send(context.Background(), []byte{0x01})
	require.ErrorIs(t, err, ErrClosed)

	_, err = s.Receive(context.Background(), time.Millisecond)
	require.ErrorIs(t, err, ErrClosed)
}

func TestNewStreamPanicsOnNil(t *testing.T) {
	require.Panics(t, func() { NewStream(nil, "nil") })
}

func TestOpenSerialRequiresPort(t *testing.T) {
	_, err := OpenSerial(SerialConfig{})
	require.True(t, IsTransportError(err))
}

func TestErrorWithoutPort(t *testing.T) {
	err := &Error{Op: "receive", Err: ErrTimeout}
	require.Equal(t, "receive: timeout waiting for data", err.Error())
	require.True(t, errors.Is(err, ErrTimeout))
}
