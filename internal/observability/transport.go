package observability

import (
	"context"
	"time"

	"github.com/moffa90/go-keymatrix/protocol"
	"github.com/moffa90/go-keymatrix/transport"
)

// InstrumentTransport counts every frame sent through t by kind.
// If t also implements transport.Receiver, so does the result.
func InstrumentTransport(t transport.Transport) transport.Transport {
	base := &instrumented{next: t}
	if r, ok := t.(transport.Receiver); ok {
		return &instrumentedReceiver{instrumented: base, recv: r}
	}
	return base
}

type instrumented struct {
	next transport.Transport
}

func (i *instrumented) Send(ctx context.Context, frame []byte) error {
	err := i.next.Send(ctx, frame)
	RecordFrameSent(protocol.FrameKind(frame), err == nil)
	return err
}

type instrumentedReceiver struct {
	*instrumented
	recv transport.Receiver
}

func (i *instrumentedReceiver) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	data, err := i.recv.Receive(ctx, timeout)
	if len(data) > 0 {
		RecordBytesReceived(len(data))
	}
	return data, err
}
