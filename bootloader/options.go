package bootloader

import (
	"time"

	"github.com/moffa90/go-keymatrix/protocol"
	"github.com/moffa90/go-keymatrix/transport"
)

// Uploader defaults.
const (
	DefaultChunkSize    = protocol.MaxChunkSize
	DefaultFrameDelay   = 50 * time.Millisecond
	DefaultTriggerDelay = time.Second
)

// Config holds the uploader configuration.
type Config struct {
	// ProgressCallback is called for every progress event (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// Clock drives the trigger and inter-frame delays
	Clock Clock

	// DeviceAddr is the bootloader address written in every transfer frame
	DeviceAddr byte

	// ChunkSize is the payload size of each data frame
	// Default is protocol.MaxChunkSize (255)
	ChunkSize int

	// FrameDelay is the pause after each frame so the receiver's buffer is not overrun
	FrameDelay time.Duration

	// SendTrigger sends the upgrade trigger before the first data frame
	SendTrigger bool

	// TriggerDelay is the pause after the trigger while the board reboots
	TriggerDelay time.Duration

	// AwaitResponse reads one reply after each frame (transport must implement transport.Receiver)
	AwaitResponse bool

	// ResponseTimeout bounds each reply wait
	ResponseTimeout time.Duration
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Clock:           realClock{},
		DeviceAddr:      protocol.DeviceAddr,
		ChunkSize:       DefaultChunkSize,
		FrameDelay:      DefaultFrameDelay,
		SendTrigger:     true,
		TriggerDelay:    DefaultTriggerDelay,
		AwaitResponse:   false,
		ResponseTimeout: transport.DefaultResponseTimeout,
	}
}

// Option is a functional option for configuring the Uploader.
type Option func(*Config)

// WithProgressCallback sets a callback function to track upload progress.
//
// Example:
//
//	up := bootloader.New(port,
//	    bootloader.WithProgressCallback(func(p bootloader.Progress) {
//	        fmt.Printf("%s %d%%\n", p.State, p.Percent)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for the uploader operations.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock Clock) Option {
	return func(c *Config) {
		if clock != nil {
			c.Clock = clock
		}
	}
}

// WithDeviceAddr sets the bootloader address. Default is protocol.DeviceAddr.
func WithDeviceAddr(addr byte) Option {
	return func(c *Config) {
		c.DeviceAddr = addr
	}
}

// WithChunkSize sets the payload size of each data frame.
// Values outside 1..protocol.MaxChunkSize are ignored.
//
// Example:
//
//	up := bootloader.New(port, bootloader.WithChunkSize(128))
func WithChunkSize(size int) Option {
	return func(c *Config) {
		if size > 0 && size <= protocol.MaxChunkSize {
			c.ChunkSize = size
		}
	}
}

// WithFrameDelay sets the pause after each frame. Zero disables it.
func WithFrameDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.FrameDelay = d
		}
	}
}

// WithTrigger enables or disables sending the upgrade trigger first.
// Disable it when the board is already in its bootloader.
func WithTrigger(send bool) Option {
	return func(c *Config) {
		c.SendTrigger = send
	}
}

// WithTriggerDelay sets the pause between the trigger and the first data frame.
func WithTriggerDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.TriggerDelay = d
		}
	}
}

// WithAwaitResponse makes the uploader read a reply after every frame.
func WithAwaitResponse(await bool) Option {
	return func(c *Config) {
		c.AwaitResponse = await
	}
}

// WithResponseTimeout bounds each reply wait.
func WithResponseTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ResponseTimeout = d
		}
	}
}
