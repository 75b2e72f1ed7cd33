// Package bootloader uploads firmware images to the key matrix board.
//
// # Overview
//
// An Uploader drives one transfer at a time:
//   - Sending the upgrade trigger so the board reboots into its bootloader
//   - Splitting the image into sequenced data frames
//   - Announcing the image CRC (optional)
//   - Sending the zero-length terminator that ends the transfer
//
// Session states:
//
//	Idle -> TriggerSent -> Transferring -> Completed
//	any  -> Failed
//
// # Basic Usage
//
//	port, err := transport.OpenSerial(transport.SerialConfig{Port: "/dev/ttyUSB0"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	img, err := firmware.Load("app.bin")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	up := bootloader.New(port)
//	if err := up.Transfer(context.Background(), img.Data, true); err != nil {
//	    log.Fatal(err)
//	}
//
// # Progress Tracking
//
// Start runs the transfer in the background and streams progress events:
//
//	events, err := up.Start(ctx, img.Data, true)
//	if err != nil {
//	    return err
//	}
//	for p := range events {
//	    fmt.Printf("[%s] %d%% (%d/%d bytes)\n", p.State, p.Percent, p.BytesSent, p.TotalBytes)
//	}
//
// A callback receives the same events:
//
//	up := bootloader.New(port,
//	    bootloader.WithProgressCallback(func(p bootloader.Progress) { ... }),
//	)
//
// # Configuration Options
//
//	up := bootloader.New(port,
//	    bootloader.WithLogger(myLogger),
//	    bootloader.WithChunkSize(128),
//	    bootloader.WithFrameDelay(50*time.Millisecond),
//	    bootloader.WithTrigger(true),
//	    bootloader.WithTriggerDelay(time.Second),
//	    bootloader.WithAwaitResponse(true),
//	    bootloader.WithResponseTimeout(5*time.Second),
//	)
//
// # Cancellation
//
// Cancel, or cancelling the context, stops the session before its next frame.
// A frame already being written is not interrupted. The session ends in
// StateFailed with a *TransferAbortedError.
//
// # Error Handling
//
// The package provides structured error types:
//   - TransferError: the transport failed while sending a frame or awaiting a reply
//   - TransferAbortedError: the session was cancelled
//   - ErrTransferInProgress: Start was called while a session is active
//   - ErrEmptyImage: the image has no bytes
//
// Failures are never retried. A new attempt always restarts from offset zero;
// the board overwrites its whole application region.
package bootloader
