// Package transport carries frames between the host and the board.
//
// The protocol engine only needs a Transport (Send). Transports with a
// response path also implement Receiver. Two implementations are provided:
//
//	port, err := transport.OpenSerial(transport.SerialConfig{Port: "/dev/ttyUSB0"})
//	conn := transport.NewStream(pipe, "pipe")
//
// Failures are reported as *Error and are never retried here.
package transport
