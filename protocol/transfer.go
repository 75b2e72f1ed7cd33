package protocol

import (
	"encoding/binary"
	"fmt"
)

// BuildTransferFrame constructs a bootloader transfer frame.
// An empty data slice produces the zero-length terminator.
//
// Frame structure:
//
//	[ADDR][FUNC][SEQ][LEN][DATA...][SUM_H][SUM_L]
//
// The checksum is Sum16 over ADDR through the end of DATA, written big-endian.
func BuildTransferFrame(addr, funcCode, seq byte, data []byte) ([]byte, error) {
	if len(data) > MaxChunkSize {
		return nil, &EncodingError{Field: "payload length", Value: len(data), Min: 0, Max: MaxChunkSize}
	}

	frame := make([]byte, 0, MinTransferFrameSize+len(data))
	frame = append(frame, addr, funcCode, seq, byte(len(data)))
	frame = append(frame, data...)

	frame = binary.BigEndian.AppendUint16(frame, Sum16(frame))

	return frame, nil
}

// BuildCRCFrame constructs the FuncSendCRC frame announcing the image CRC.
// The CRC payload is little-endian, unlike the frame checksum.
func BuildCRCFrame(addr, seq byte, crc uint32) []byte {
	payload := make([]byte, CRCPayloadSize)
	binary.LittleEndian.PutUint32(payload, crc)

	// CRCPayloadSize is always within MaxChunkSize
	frame, _ := BuildTransferFrame(addr, FuncSendCRC, seq, payload)
	return frame
}

// BuildTerminatorFrame constructs the zero-length data frame that ends a transfer.
func BuildTerminatorFrame(addr, seq byte) []byte {
	frame, _ := BuildTransferFrame(addr, FuncSendData, seq, nil)
	return frame
}

// ParseTransferFrame validates and decodes a transfer frame.
// Used to check bootloader replies and by tests to inspect sent traffic.
func ParseTransferFrame(frame []byte) (*TransferFrame, error) {
	if len(frame) < MinTransferFrameSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrShortFrame, len(frame), MinTransferFrameSize)
	}

	dataLen := int(frame[3])
	expectedLen := MinTransferFrameSize + dataLen
	if len(frame) != expectedLen {
		return nil, fmt.Errorf("frame length mismatch: LEN field says %d payload bytes, frame is %d bytes (want %d)",
			dataLen, len(frame), expectedLen)
	}

	body := frame[:TransferHeaderSize+dataLen]
	carried := binary.BigEndian.Uint16(frame[len(body):])
	computed := Sum16(body)
	if carried != computed {
		return nil, &ChecksumError{Expected: carried, Actual: computed}
	}

	data := make([]byte, dataLen)
	copy(data, frame[TransferHeaderSize:TransferHeaderSize+dataLen])

	return &TransferFrame{
		Addr: frame[0],
		Func: frame[1],
		Seq:  frame[2],
		Data: data,
	}, nil
}
