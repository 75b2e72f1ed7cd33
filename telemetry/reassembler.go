package telemetry

import (
	"bytes"

	"github.com/moffa90/go-keymatrix/protocol"
)

// MaxBuffered bounds the bytes a Reassembler holds while no frame is found.
const MaxBuffered = 1024

// Reassembler rebuilds status frames from arbitrary serial reads.
// Not safe for concurrent use.
type Reassembler struct {
	buf []byte
}

// Write appends raw bytes. It never fails.
func (r *Reassembler) Write(p []byte) (int, error) {
	r.buf = append(r.buf, p...)
	return len(p), nil
}

// Next returns the first complete AA..BF frame and drops it together with
// any garbage before it. When no frame is found and more than MaxBuffered
// bytes are held, the buffer is trimmed to start at the last marker.
func (r *Reassembler) Next() ([]byte, bool) {
	for i := 0; i+FrameSize <= len(r.buf); i++ {
		if r.buf[i] == FrameMarker && r.buf[i+trailerOffset] == protocol.FrameTrailer {
			frame := make([]byte, FrameSize)
			copy(frame, r.buf[i:i+FrameSize])
			r.buf = append(r.buf[:0], r.buf[i+FrameSize:]...)
			return frame, true
		}
	}

	if len(r.buf) > MaxBuffered {
		if last := bytes.LastIndexByte(r.buf, FrameMarker); last > 0 {
			r.buf = append(r.buf[:0], r.buf[last:]...)
		} else {
			r.buf = r.buf[:0]
		}
	}

	return nil, false
}

// Buffered returns the number of bytes waiting.
func (r *Reassembler) Buffered() int {
	return len(r.buf)
}

// Reset drops all buffered bytes.
func (r *Reassembler) Reset() {
	r.buf = r.buf[:0]
}
