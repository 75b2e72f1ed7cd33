// Package protocol implements the wire format spoken by the key matrix board
// and its firmware-upgrade bootloader.
//
// This package builds outbound command frames, builds and parses bootloader
// transfer frames, and provides the checksums both sides agree on.
//
// # Command Frames
//
// Three fixed-shape commands are sent to the running application firmware:
//
//	Calibration: [0x81][0x10][0x05][EN][CH][MODE][TYPE][DEV][0x00][SUM8]
//	LED test:    [0xCC][LED#][STATE][0xBF]
//	Upgrade:     [0xF5][0x5F][0x01][0xAB][0xBF]
//
// Use the Build* functions to create them:
//
//	frame, err := protocol.BuildCalibrationCmd(protocol.CalibrationConfig{
//	    Enabled: true,
//	    Channel: 1,
//	    Mode:    protocol.ModeManual,
//	    Type:    protocol.TypeRange,
//	    Device:  protocol.DeviceJoystick,
//	})
//	frame, err := protocol.BuildLEDCmd(0, true)
//	frame := protocol.BuildUpgradeTriggerCmd()
//
// Out-of-range inputs are rejected with an *EncodingError before any frame is
// built.
//
// # Transfer Frames
//
// Once the board is in its bootloader, the image is sent as:
//
//	[ADDR][FUNC][SEQ][LEN][DATA...][SUM_H][SUM_L]
//
// Where:
//   - ADDR = DeviceAddr (0x01)
//   - FUNC = FuncSendData (0x01) or FuncSendCRC (0x06)
//   - SEQ  = sequence number, wraps modulo 256
//   - LEN  = payload length (0-255); zero marks end of image
//   - SUM  = Sum16 over ADDR..DATA, big-endian
//
// The FuncSendCRC payload is the little-endian CRC32Word of the whole image.
//
// # Checksums
//
//	Sum8       calibration frame
//	Sum16      transfer frames
//	XOR8       telemetry frames
//	CRC32Word  image integrity (STM32 hardware CRC compatible)
package protocol
