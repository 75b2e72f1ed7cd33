package protocol

// Calibration command frame constants.
const (
	// CalibrationHeader is the first byte of a calibration frame (0x81)
	CalibrationHeader = 0x81

	// CalibrationCommand is the command byte of a calibration frame (0x10)
	CalibrationCommand = 0x10

	// CalibrationPayloadLen is the length marker carried in byte 2 (0x05)
	CalibrationPayloadLen = 0x05

	// CalibrationFrameSize is the total calibration frame size in bytes
	CalibrationFrameSize = 10

	// calibrationChecksumSpan is the number of leading bytes covered by Sum8
	calibrationChecksumSpan = 8
)

// LED test command frame constants.
const (
	// LEDHeader is the first byte of an LED test frame (0xCC)
	LEDHeader = 0xCC

	// LEDOff and LEDOn are the state byte values
	LEDOff = 0x00
	LEDOn  = 0x01

	// LEDFrameSize is the total LED frame size in bytes
	LEDFrameSize = 4

	// LEDCount is the number of LEDs on the board
	LEDCount = 20
)

// FrameTrailer terminates the LED test, upgrade trigger and telemetry frames (0xBF).
const FrameTrailer = 0xBF

// upgradeTrigger is the literal frame that reboots the board into its bootloader.
var upgradeTrigger = [...]byte{0xF5, 0x5F, 0x01, 0xAB, FrameTrailer}

// Calibration value ranges.
const (
	// MinChannel and MaxChannel bound the analog channel number
	MinChannel = 1
	MaxChannel = 10
)

// Bootloader transfer frame constants.
//
// Frame structure:
//
//	[ADDR][FUNC][SEQ][LEN][DATA...][SUM_H][SUM_L]
const (
	// DeviceAddr is the fixed bootloader device address
	DeviceAddr = 0x01

	// FuncSendData carries a firmware chunk (and the zero-length terminator)
	FuncSendData = 0x01

	// FuncSendCRC announces the image CRC when integrity checking is enabled
	FuncSendCRC = 0x06

	// TransferHeaderSize is ADDR(1) + FUNC(1) + SEQ(1) + LEN(1)
	TransferHeaderSize = 4

	// TransferChecksumSize is the size of the trailing Sum16 field
	TransferChecksumSize = 2

	// MinTransferFrameSize is the size of a frame with an empty payload
	MinTransferFrameSize = TransferHeaderSize + TransferChecksumSize

	// MaxChunkSize is the largest payload the single-byte LEN field can describe.
	// A 256 or 512 byte chunk would encode LEN=0 and be read as the terminator.
	MaxChunkSize = 255

	// CRCPayloadSize is the payload length of a FuncSendCRC frame
	CRCPayloadSize = 4
)

// CRC32Word algorithm constants.
const (
	// CRC32Polynomial is the CRC-32 polynomial applied MSB first
	CRC32Polynomial = 0x04C11DB7

	// CRC32InitialValue is the accumulator seed
	CRC32InitialValue = 0xFFFFFFFF

	// CRC32HighBitMask selects the accumulator's top bit
	CRC32HighBitMask = 0x80000000

	// BitsPerWord is the number of shift iterations per 32-bit word
	BitsPerWord = 32
)
