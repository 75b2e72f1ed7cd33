package protocol

import "fmt"

// CalibrationMode selects how the board calibrates a channel.
type CalibrationMode byte

const (
	// ModeAuto lets the board find the calibration points itself
	ModeAuto CalibrationMode = 1

	// ModeManual records the points the operator moves the control to
	ModeManual CalibrationMode = 2
)

func (m CalibrationMode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeManual:
		return "manual"
	default:
		return fmt.Sprintf("mode(0x%02X)", byte(m))
	}
}

// CalibrationType selects which points are calibrated.
type CalibrationType byte

const (
	// TypeCenter calibrates the rest position
	TypeCenter CalibrationType = 1

	// TypeRange calibrates both end stops
	TypeRange CalibrationType = 2
)

func (t CalibrationType) String() string {
	switch t {
	case TypeCenter:
		return "center"
	case TypeRange:
		return "range"
	default:
		return fmt.Sprintf("type(0x%02X)", byte(t))
	}
}

// DeviceType identifies the control wired to an analog channel.
type DeviceType byte

const (
	DeviceJoystick      DeviceType = 1
	DevicePotentiometer DeviceType = 2
	DeviceButton        DeviceType = 3
)

func (d DeviceType) String() string {
	switch d {
	case DeviceJoystick:
		return "joystick"
	case DevicePotentiometer:
		return "potentiometer"
	case DeviceButton:
		return "button"
	default:
		return fmt.Sprintf("device(0x%02X)", byte(d))
	}
}

// CalibrationConfig describes one calibration command.
// It is a plain value; BuildCalibrationCmd derives the frame from it with no
// hidden state.
type CalibrationConfig struct {
	// Enabled turns the channel on (1) or off (0)
	Enabled bool

	// Channel is the analog channel number (MinChannel to MaxChannel)
	Channel byte

	// Mode is the calibration mode
	Mode CalibrationMode

	// Type is the calibration type
	Type CalibrationType

	// Device is the control type wired to the channel
	Device DeviceType
}

// Validate reports the first out-of-range field as an *EncodingError.
func (c CalibrationConfig) Validate() error {
	if c.Channel < MinChannel || c.Channel > MaxChannel {
		return &EncodingError{Field: "channel", Value: int(c.Channel), Min: MinChannel, Max: MaxChannel}
	}
	if c.Mode != ModeAuto && c.Mode != ModeManual {
		return &EncodingError{Field: "mode", Value: int(c.Mode), Min: int(ModeAuto), Max: int(ModeManual)}
	}
	if c.Type != TypeCenter && c.Type != TypeRange {
		return &EncodingError{Field: "type", Value: int(c.Type), Min: int(TypeCenter), Max: int(TypeRange)}
	}
	if c.Device < DeviceJoystick || c.Device > DeviceButton {
		return &EncodingError{Field: "device type", Value: int(c.Device), Min: int(DeviceJoystick), Max: int(DeviceButton)}
	}
	return nil
}

// ValidateLEDIndex checks a 0-based LED index.
func ValidateLEDIndex(index int) error {
	if index < 0 || index >= LEDCount {
		return &EncodingError{Field: "led index", Value: index, Min: 0, Max: LEDCount - 1}
	}
	return nil
}

// TransferFrame is a decoded bootloader transfer frame.
type TransferFrame struct {
	// Addr is the device address
	Addr byte

	// Func is the function code (FuncSendData, FuncSendCRC)
	Func byte

	// Seq is the frame sequence number
	Seq byte

	// Data is the payload; empty for the terminator
	Data []byte
}

// IsTerminator reports whether the frame marks end of image.
func (f *TransferFrame) IsTerminator() bool {
	return f.Func == FuncSendData && len(f.Data) == 0
}
