// Package device combines the frame encoder, firmware uploader and status
// poller behind one handle per connected board.
//
// Basic usage:
//
//	port, err := transport.OpenSerial(transport.SerialConfig{Port: "/dev/ttyUSB0"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	dev := device.New(port)
//	if err := dev.SetLED(ctx, 0, true); err != nil {
//	    log.Fatal(err)
//	}
//	if err := dev.StartPolling(); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(dev.Latest().PressedKeys())
package device
