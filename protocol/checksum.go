package protocol

// Sum8 computes the 8-bit modular sum of data.
// Used only by the calibration command.
func Sum8(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// Sum16 computes the 16-bit modular sum of data.
//
// For transfer frames the sum covers all bytes from ADDR through the end of
// DATA, excluding the checksum field itself.
func Sum16(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}

// XOR8 folds data with exclusive-or.
// The board uses it for byte 22 of every telemetry frame.
func XOR8(data []byte) byte {
	var x byte
	for _, b := range data {
		x ^= b
	}
	return x
}

// CRC32Word computes the word-oriented CRC-32 that the bootloader verifies
// after an upgrade. This matches the STM32 hardware CRC unit, not CRC-32/IEEE:
//
//   - Initial value: CRC32InitialValue
//   - Input consumed as little-endian 32-bit words, last word zero-padded
//   - Polynomial: CRC32Polynomial, MSB first, no reflection
//   - Final value is the bitwise complement of the accumulator
//
// Do not swap for hash/crc32; the output differs.
func CRC32Word(data []byte) uint32 {
	crc := uint32(CRC32InitialValue)

	for off := 0; off < len(data); off += 4 {
		var word uint32
		for j := 0; j < 4 && off+j < len(data); j++ {
			word |= uint32(data[off+j]) << (j * 8)
		}

		crc ^= word
		for i := 0; i < BitsPerWord; i++ {
			if crc&CRC32HighBitMask != 0 {
				crc = (crc << 1) ^ CRC32Polynomial
			} else {
				crc <<= 1
			}
		}
	}

	return ^crc
}
