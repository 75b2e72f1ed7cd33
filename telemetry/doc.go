// Package telemetry handles the 24-byte status frames the board streams.
//
//	[0xAA][IDX][KEYS(3)][ADC(14)][LEDS(3)][XOR][0xBF]
//
// GroupFrames is a display aid that only checks frame boundaries. Decode
// extracts the key, analog and LED fields. Reassembler rebuilds frames from
// arbitrary reads, and Poller runs the periodic read loop.
package telemetry
