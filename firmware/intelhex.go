package firmware

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Intel HEX record layout.
const (
	// RecordHeaderSize is byte count(1) + address(2) + type(1)
	RecordHeaderSize = 4

	// RecordChecksumSize is the size of the trailing record checksum
	RecordChecksumSize = 1

	// MinimumRecordLength is the minimum record length in hex characters, ':' excluded
	MinimumRecordLength = (RecordHeaderSize + RecordChecksumSize) * 2

	// FillByte pads gaps between records (erased flash)
	FillByte = 0xFF
)

// Intel HEX record types.
const (
	RecordData                   = 0x00
	RecordEndOfFile              = 0x01
	RecordExtendedSegmentAddress = 0x02
	RecordStartSegmentAddress    = 0x03
	RecordExtendedLinearAddress  = 0x04
	RecordStartLinearAddress     = 0x05
)

// record is one decoded Intel HEX line.
type record struct {
	Type    byte
	Address uint16
	Data    []byte
}

// segment is a run of data at an absolute address.
type segment struct {
	addr uint32
	data []byte
}

// parseIntelHex assembles a contiguous image from Intel HEX records.
func parseIntelHex(r io.Reader) (*Image, error) {
	scanner := bufio.NewScanner(r)

	var (
		base     uint32
		segments []segment
		sawEOF   bool
	)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines
		if line == "" {
			continue
		}
		if sawEOF {
			return nil, fmt.Errorf("line %d: data after end-of-file record", lineNum)
		}

		rec, err := parseRecord(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		switch rec.Type {
		case RecordData:
			if len(rec.Data) > 0 {
				segments = append(segments, segment{addr: base + uint32(rec.Address), data: rec.Data})
			}
		case RecordEndOfFile:
			sawEOF = true
		case RecordExtendedSegmentAddress:
			if len(rec.Data) != 2 {
				return nil, fmt.Errorf("line %d: extended segment address needs 2 bytes, got %d", lineNum, len(rec.Data))
			}
			base = (uint32(rec.Data[0])<<8 | uint32(rec.Data[1])) << 4
		case RecordExtendedLinearAddress:
			if len(rec.Data) != 2 {
				return nil, fmt.Errorf("line %d: extended linear address needs 2 bytes, got %d", lineNum, len(rec.Data))
			}
			base = (uint32(rec.Data[0])<<8 | uint32(rec.Data[1])) << 16
		case RecordStartSegmentAddress, RecordStartLinearAddress:
			// Entry point; the bootloader jumps to a fixed address
		default:
			return nil, fmt.Errorf("line %d: unknown record type 0x%02X", lineNum, rec.Type)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if !sawEOF {
		return nil, fmt.Errorf("missing end-of-file record")
	}
	if len(segments) == 0 {
		return nil, ErrEmptyImage
	}

	return flatten(segments)
}

// parseRecord parses a single Intel HEX record.
//
// Record format:
//
//	:[LL][AAAA][TT][DD...][CC]
//
// LL is the data byte count, AAAA the big-endian offset, TT the record type
// and CC the two's complement of the sum of all preceding bytes.
func parseRecord(line string) (*record, error) {
	if line[0] != ':' {
		return nil, fmt.Errorf("record must start with ':'")
	}
	line = line[1:]

	if len(line) < MinimumRecordLength {
		return nil, fmt.Errorf("record too short: got %d characters, minimum is %d", len(line), MinimumRecordLength)
	}

	data, err := hex.DecodeString(line)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}

	count := int(data[0])
	expectedLen := RecordHeaderSize + count + RecordChecksumSize
	if len(data) != expectedLen {
		return nil, fmt.Errorf("data length mismatch: got %d bytes, expected %d (header=%d + data=%d + checksum=%d)",
			len(data), expectedLen, RecordHeaderSize, count, RecordChecksumSize)
	}

	checksum := data[len(data)-1]
	if calculated := recordChecksum(data[:len(data)-1]); checksum != calculated {
		return nil, fmt.Errorf("checksum mismatch: got 0x%02X, expected 0x%02X", checksum, calculated)
	}

	rec := &record{
		Address: uint16(data[1])<<8 | uint16(data[2]),
		Type:    data[3],
		Data:    make([]byte, count),
	}
	copy(rec.Data, data[RecordHeaderSize:RecordHeaderSize+count])

	return rec, nil
}

// recordChecksum returns the two's complement of the byte sum.
func recordChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return -sum
}

// flatten lays segments out from the lowest address, filling gaps.
// Overlapping records are rejected.
func flatten(segments []segment) (*Image, error) {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].addr < segments[j].addr
	})

	start := segments[0].addr
	var end uint64
	for _, s := range segments {
		if e := uint64(s.addr) + uint64(len(s.data)); e > end {
			end = e
		}
	}

	size := end - uint64(start)
	if size > MaxImageSize {
		return nil, ErrImageTooLarge
	}

	out := make([]byte, size)
	for i := range out {
		out[i] = FillByte
	}

	var written uint64
	for _, s := range segments {
		off := uint64(s.addr - start)
		if off < written {
			return nil, fmt.Errorf("overlapping data at address 0x%08X", s.addr)
		}
		copy(out[off:], s.data)
		written = off + uint64(len(s.data))
	}

	return &Image{Data: out, BaseAddr: start, Format: FormatIntelHex}, nil
}
