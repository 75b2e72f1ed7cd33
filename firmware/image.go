package firmware

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/moffa90/go-keymatrix/protocol"
)

// MaxImageSize bounds the application image accepted for upload.
const MaxImageSize = 1 << 20

// Format identifies the file format an image was read from.
type Format int

const (
	// FormatBinary is a raw flash image
	FormatBinary Format = iota

	// FormatIntelHex is an Intel HEX text file
	FormatIntelHex
)

func (f Format) String() string {
	switch f {
	case FormatBinary:
		return "binary"
	case FormatIntelHex:
		return "intel-hex"
	default:
		return "unknown"
	}
}

var (
	// ErrEmptyImage is returned for a file with no image bytes
	ErrEmptyImage = errors.New("firmware image is empty")

	// ErrImageTooLarge is returned for images over MaxImageSize
	ErrImageTooLarge = fmt.Errorf("firmware image exceeds %d bytes", MaxImageSize)
)

// Image is an application image ready to upload.
type Image struct {
	// Data is the contiguous image, gaps filled with 0xFF
	Data []byte

	// BaseAddr is the flash address of Data[0] (zero for binary files)
	BaseAddr uint32

	// Format is the source file format
	Format Format
}

// Size returns the image length in bytes.
func (img *Image) Size() int {
	return len(img.Data)
}

// CRC returns the word CRC the bootloader checks after an upgrade.
func (img *Image) CRC() uint32 {
	return protocol.CRC32Word(img.Data)
}

// Load reads an image from the given file path.
//
// Example:
//
//	img, err := firmware.Load("app.hex")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%s image, %d bytes at 0x%08X\n", img.Format, img.Size(), img.BaseAddr)
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ReadImage(f)
}

// ReadImage reads an image from any io.Reader.
// Content whose first non-blank byte is ':' is parsed as Intel HEX;
// anything else is taken as a raw binary image.
func ReadImage(r io.Reader) (*Image, error) {
	br := bufio.NewReader(r)

	if isIntelHex(br) {
		return parseIntelHex(br)
	}

	data, err := io.ReadAll(io.LimitReader(br, MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if len(data) > MaxImageSize {
		return nil, ErrImageTooLarge
	}

	return &Image{Data: data, Format: FormatBinary}, nil
}

// isIntelHex peeks past leading whitespace for a record mark.
func isIntelHex(br *bufio.Reader) bool {
	for n := 1; ; n++ {
		peek, err := br.Peek(n)
		if len(peek) < n {
			return false
		}
		switch peek[n-1] {
		case ' ', '\t', '\r', '\n':
			if err != nil {
				return false
			}
			continue
		case ':':
			return true
		default:
			return false
		}
	}
}
