package protocol

// BuildCalibrationCmd constructs a calibration command frame.
// The config is validated first; an out-of-range field returns an *EncodingError
// and no frame.
//
// Frame structure:
//
//	[0x81][0x10][0x05][EN][CH][MODE][TYPE][DEV][0x00][SUM8]
//
// SUM8 covers the first eight bytes.
func BuildCalibrationCmd(cfg CalibrationConfig) ([]byte, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var enabled byte
	if cfg.Enabled {
		enabled = 1
	}

	frame := make([]byte, 0, CalibrationFrameSize)
	frame = append(frame, CalibrationHeader, CalibrationCommand, CalibrationPayloadLen)
	frame = append(frame, enabled, cfg.Channel, byte(cfg.Mode), byte(cfg.Type), byte(cfg.Device))

	// Reserved
	frame = append(frame, 0x00)

	frame = append(frame, Sum8(frame[:calibrationChecksumSpan]))

	return frame, nil
}

// BuildLEDCmd constructs an LED test frame.
// The index is 0-based; the wire carries index+1.
//
// Frame structure:
//
//	[0xCC][LED#][STATE][0xBF]
func BuildLEDCmd(index int, on bool) ([]byte, error) {
	if err := ValidateLEDIndex(index); err != nil {
		return nil, err
	}

	state := byte(LEDOff)
	if on {
		state = LEDOn
	}

	return []byte{LEDHeader, byte(index + 1), state, FrameTrailer}, nil
}

// BuildUpgradeTriggerCmd returns the frame that reboots the board into its
// bootloader. Each call returns a fresh copy.
func BuildUpgradeTriggerCmd() []byte {
	frame := make([]byte, len(upgradeTrigger))
	copy(frame, upgradeTrigger[:])
	return frame
}

// Frame kinds returned by FrameKind.
const (
	KindCalibration = "calibration"
	KindLED         = "led"
	KindTrigger     = "trigger"
	KindData        = "data"
	KindCRC         = "crc"
	KindTerminator  = "terminator"
	KindUnknown     = "unknown"
)

// FrameKind names an outbound frame by its shape. Used for logs and metrics.
func FrameKind(frame []byte) string {
	switch {
	case len(frame) == CalibrationFrameSize && frame[0] == CalibrationHeader && frame[1] == CalibrationCommand:
		return KindCalibration
	case len(frame) == LEDFrameSize && frame[0] == LEDHeader && frame[LEDFrameSize-1] == FrameTrailer:
		return KindLED
	case len(frame) == len(upgradeTrigger) && string(frame) == string(upgradeTrigger[:]):
		return KindTrigger
	case len(frame) >= MinTransferFrameSize && len(frame) == MinTransferFrameSize+int(frame[3]):
		switch {
		case frame[1] == FuncSendCRC:
			return KindCRC
		case frame[1] == FuncSendData && frame[3] == 0:
			return KindTerminator
		case frame[1] == FuncSendData:
			return KindData
		}
	}
	return KindUnknown
}
