package bootloader

import "time"

// State is the lifecycle state of a transfer session.
type State int

const (
	// StateIdle means no transfer has run yet
	StateIdle State = iota

	// StateTriggerSent means the upgrade trigger went out and the board is rebooting
	StateTriggerSent

	// StateTransferring means image frames are being sent
	StateTransferring

	// StateCompleted means the terminator was sent (and acknowledged, if awaited)
	StateCompleted

	// StateFailed means the session ended on a transport fault or cancellation
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTriggerSent:
		return "trigger-sent"
	case StateTransferring:
		return "transferring"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further events follow this state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Progress contains information about the upload progress.
// Passed to ProgressCallback and sent on the channel returned by Start.
type Progress struct {
	// State is the session state when the event was raised
	State State

	// Percent is floor(BytesSent*100/TotalBytes)
	Percent int

	// BytesSent is the number of image bytes sent so far
	BytesSent int

	// TotalBytes is the image length
	TotalBytes int

	// Frames is the number of frames sent so far, trigger excluded
	Frames int

	// Seq is the sequence number the next frame will carry
	Seq byte

	// ElapsedTime is the time elapsed since the session started
	ElapsedTime time.Duration

	// Warning carries a non-fatal problem, e.g. a reply with a bad checksum
	Warning error

	// Err is set on the terminal StateFailed event
	Err error
}

// ProgressCallback is called for every progress event.
// Implementations should return quickly to avoid stalling the transfer.
type ProgressCallback func(Progress)

// Logger is an optional logging interface that can be provided to the uploader.
// This allows integration with any logging framework.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}

// Clock abstracts time so delays can be faked in tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
