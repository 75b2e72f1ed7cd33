package telemetry

import (
	"errors"
	"fmt"

	"github.com/moffa90/go-keymatrix/protocol"
)

// Status frame layout.
//
//	[0xAA][IDX][KEYS(3)][ADC(14)][LEDS(3)][XOR][0xBF]
const (
	// FrameSize is the fixed status frame length
	FrameSize = 24

	// FrameMarker is the first byte of every status frame
	FrameMarker = 0xAA

	// KeyCount is the number of key inputs reported
	KeyCount = 24

	// ADCCount is the number of analog channels reported
	ADCCount = 14

	// LEDCount is the number of LED states reported
	LEDCount = protocol.LEDCount

	indexOffset    = 1
	keysOffset     = 2
	adcOffset      = 5
	ledsOffset     = 19
	checksumOffset = 22
	trailerOffset  = 23
)

// ErrMalformedFrame is returned for buffers that do not have the status frame shape.
var ErrMalformedFrame = errors.New("malformed status frame")

// Frame is one decoded status frame.
type Frame struct {
	// Index is the board's rolling frame counter
	Index byte

	// Keys holds the pressed state of each key
	Keys [KeyCount]bool

	// ADC holds the raw analog readings (0-255)
	ADC [ADCCount]uint8

	// LEDs holds the lit state of each LED
	LEDs [LEDCount]bool

	// Raw is a copy of the 24 frame bytes
	Raw []byte

	// Valid is true when the XOR checksum matches
	Valid bool
}

// PressedKeys returns the 0-based indexes of pressed keys.
func (f Frame) PressedKeys() []int {
	var out []int
	for i, pressed := range f.Keys {
		if pressed {
			out = append(out, i)
		}
	}
	return out
}

// Decode extracts the fields of a 24-byte status frame.
// A frame with a bad checksum decodes with Valid=false; a frame with the wrong
// length, marker or trailer returns ErrMalformedFrame.
func Decode(frame []byte) (Frame, error) {
	if len(frame) != FrameSize {
		return Frame{}, fmt.Errorf("%w: %d bytes, want %d", ErrMalformedFrame, len(frame), FrameSize)
	}
	if frame[0] != FrameMarker {
		return Frame{}, fmt.Errorf("%w: marker 0x%02X", ErrMalformedFrame, frame[0])
	}
	if frame[trailerOffset] != protocol.FrameTrailer {
		return Frame{}, fmt.Errorf("%w: trailer 0x%02X", ErrMalformedFrame, frame[trailerOffset])
	}

	f := Frame{
		Index: frame[indexOffset],
		Raw:   append([]byte(nil), frame...),
		Valid: protocol.XOR8(frame[:checksumOffset]) == frame[checksumOffset],
	}

	for i := range f.Keys {
		f.Keys[i] = bit(frame[keysOffset:], i)
	}
	copy(f.ADC[:], frame[adcOffset:adcOffset+ADCCount])
	for i := range f.LEDs {
		f.LEDs[i] = bit(frame[ledsOffset:], i)
	}

	return f, nil
}

// bit reads bit i of a little-endian bitfield, LSB first.
func bit(field []byte, i int) bool {
	return field[i/8]&(1<<(i%8)) != 0
}

// DecodeLatest returns the newest frame in buf with a good checksum.
// If none verifies, the newest well-formed frame is returned with Valid=false.
// ok is false when buf holds no well-formed frame at all.
func DecodeLatest(buf []byte) (f Frame, ok bool) {
	var fallback *Frame

	for i := len(buf) - FrameSize; i >= 0; i-- {
		if buf[i] != FrameMarker || buf[i+trailerOffset] != protocol.FrameTrailer {
			continue
		}

		decoded, err := Decode(buf[i : i+FrameSize])
		if err != nil {
			continue
		}
		if decoded.Valid {
			return decoded, true
		}
		if fallback == nil {
			fallback = &decoded
		}
	}

	if fallback != nil {
		return *fallback, true
	}
	return Frame{}, false
}
