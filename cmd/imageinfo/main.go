package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/moffa90/go-keymatrix/bootloader"
	"github.com/moffa90/go-keymatrix/firmware"
	"github.com/moffa90/go-keymatrix/protocol"
)

func main() {
	chunk := flag.Int("chunk", bootloader.DefaultChunkSize, "Data frame payload size")
	frameDelay := flag.Duration("frame-delay", bootloader.DefaultFrameDelay, "Pause after each frame")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Usage: imageinfo [-chunk N] [-frame-delay D] <firmware.bin|firmware.hex>")
		os.Exit(1)
	}
	if *chunk < 1 || *chunk > protocol.MaxChunkSize {
		log.Fatalf("chunk must be 1-%d", protocol.MaxChunkSize)
	}

	path := flag.Arg(0)
	fmt.Printf("Loading firmware file: %s\n\n", path)

	img, err := firmware.Load(path)
	if err != nil {
		log.Fatalf("Failed to load firmware: %v", err)
	}

	fmt.Println("Firmware Information:")
	fmt.Printf("  Format:        %s\n", img.Format)
	fmt.Printf("  Base address:  0x%08X\n", img.BaseAddr)
	fmt.Printf("  Size:          %d bytes (%.2f KB)\n", img.Size(), float64(img.Size())/1024.0)
	fmt.Printf("  CRC32 (word):  0x%08X\n", img.CRC())
	fmt.Println()

	n := 16
	if img.Size() < n {
		n = img.Size()
	}
	fmt.Printf("  First bytes:   % 02X", img.Data[:n])
	if img.Size() > n {
		fmt.Printf("... (%d more bytes)", img.Size()-n)
	}
	fmt.Println()
	fmt.Println()

	plan := bootloader.Plan(img.Size(), *chunk)
	frames := len(plan) + 2 // crc + terminator
	wire := len(protocol.BuildUpgradeTriggerCmd()) +
		len(plan)*protocol.MinTransferFrameSize + img.Size() +
		protocol.MinTransferFrameSize + protocol.CRCPayloadSize +
		protocol.MinTransferFrameSize

	fmt.Println("Transfer Plan:")
	fmt.Printf("  Data frames:   %d x %d bytes (last %d)\n", len(plan), *chunk, plan[len(plan)-1])
	fmt.Printf("  Total frames:  %d (with crc and terminator)\n", frames)
	fmt.Printf("  Wire bytes:    %d\n", wire)
	fmt.Printf("  Min duration:  %s\n", bootloader.DefaultTriggerDelay+time.Duration(frames)*(*frameDelay))
	if frames > 256 {
		fmt.Printf("  Sequence wraps %d times\n", (frames-1)/256)
	}
}
