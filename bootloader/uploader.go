package bootloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/moffa90/go-keymatrix/protocol"
	"github.com/moffa90/go-keymatrix/transport"
)

// progressBuffer is the capacity of the channel returned by Start.
const progressBuffer = 32

// Uploader drives firmware transfers to the board's bootloader.
// It owns at most one session at a time.
//
// Uploader is safe for concurrent use after initialization.
type Uploader struct {
	t      transport.Transport
	config Config

	mu      sync.Mutex
	session *session
	state   State
}

// session is the mutable state of one transfer.
// Only the transfer goroutine writes it; State reads go through Uploader.mu.
type session struct {
	total int
	sent  int
	seq   byte

	frames int

	// warning holds a reply problem until the next progress event
	warning error

	cancel     chan struct{}
	cancelOnce sync.Once
}

func (s *session) abort() {
	s.cancelOnce.Do(func() { close(s.cancel) })
}

// New creates a new Uploader sending through t.
//
// Example:
//
//	port, _ := transport.OpenSerial(transport.SerialConfig{Port: "/dev/ttyUSB0"})
//	up := bootloader.New(port,
//	    bootloader.WithProgressCallback(progressFunc),
//	    bootloader.WithFrameDelay(50*time.Millisecond),
//	)
func New(t transport.Transport, opts ...Option) *Uploader {
	if t == nil {
		panic("transport cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Uploader{
		t:      t,
		config: cfg,
		state:  StateIdle,
	}
}

// Start begins a transfer in the background and returns its progress stream.
// The channel is closed after the terminal event (StateCompleted or StateFailed).
// Callers must drain it.
//
// Start fails without touching the running session if one is active.
//
// Example:
//
//	events, err := up.Start(ctx, image, true)
//	if err != nil {
//	    return err
//	}
//	for p := range events {
//	    fmt.Printf("%s %d%%\n", p.State, p.Percent)
//	}
func (u *Uploader) Start(ctx context.Context, image []byte, useCRC bool) (<-chan Progress, error) {
	s, err := u.acquire(image)
	if err != nil {
		return nil, err
	}

	img := make([]byte, len(image))
	copy(img, image)

	out := make(chan Progress, progressBuffer)
	go func() {
		defer close(out)
		_ = u.run(ctx, s, img, useCRC, out)
	}()

	return out, nil
}

// Transfer runs a transfer synchronously. Progress is reported through the
// configured callback only.
func (u *Uploader) Transfer(ctx context.Context, image []byte, useCRC bool) error {
	s, err := u.acquire(image)
	if err != nil {
		return err
	}
	return u.run(ctx, s, image, useCRC, nil)
}

// Cancel asks the active session to stop before its next frame.
// A frame already being sent is not interrupted.
// Returns false when no session is active.
func (u *Uploader) Cancel() bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.session == nil {
		return false
	}
	u.session.abort()
	return true
}

// State returns the state of the active session, or the final state of the
// last one.
func (u *Uploader) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Active reports whether a session is running.
func (u *Uploader) Active() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.session != nil
}

// Plan returns the payload length of every data frame for an image of
// imageLen bytes. The terminator and CRC frames are not included.
func Plan(imageLen, chunkSize int) []int {
	if imageLen <= 0 || chunkSize <= 0 {
		return nil
	}

	chunks := make([]int, 0, (imageLen+chunkSize-1)/chunkSize)
	for remaining := imageLen; remaining > 0; remaining -= chunkSize {
		if remaining < chunkSize {
			chunks = append(chunks, remaining)
		} else {
			chunks = append(chunks, chunkSize)
		}
	}
	return chunks
}

func (u *Uploader) acquire(image []byte) (*session, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	if u.config.AwaitResponse {
		if _, ok := u.t.(transport.Receiver); !ok {
			return nil, ErrNoResponsePath
		}
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if u.session != nil {
		return nil, ErrTransferInProgress
	}

	s := &session{
		total:  len(image),
		cancel: make(chan struct{}),
	}
	u.session = s
	u.state = StateIdle
	return s, nil
}

func (u *Uploader) release(s *session, final State) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.session == s {
		u.session = nil
	}
	u.state = final
}

func (u *Uploader) setState(state State) {
	u.mu.Lock()
	u.state = state
	u.mu.Unlock()
}

// run performs the transfer sequence:
//  1. Send the upgrade trigger and wait for the reboot (optional)
//  2. Send the image in ChunkSize data frames
//  3. Send the CRC frame (if useCRC)
//  4. Send the zero-length terminator
func (u *Uploader) run(ctx context.Context, s *session, image []byte, useCRC bool, out chan<- Progress) error {
	startTime := u.config.Clock.Now()

	emit := func(p Progress) {
		p.BytesSent = s.sent
		p.TotalBytes = s.total
		p.Percent = s.sent * 100 / s.total
		p.Frames = s.frames
		p.Seq = s.seq
		p.ElapsedTime = u.config.Clock.Now().Sub(startTime)
		if p.Warning == nil {
			p.Warning = s.warning
		}
		s.warning = nil
		u.reportProgress(p)
		if out != nil {
			out <- p
		}
	}

	fail := func(err error) error {
		u.release(s, StateFailed)
		u.logError("firmware transfer failed",
			"bytes_sent", s.sent,
			"total_bytes", s.total,
			"seq", s.seq,
			"error", err,
		)
		emit(Progress{State: StateFailed, Err: err})
		return err
	}

	u.logInfo("starting firmware transfer",
		"bytes", s.total,
		"chunk_size", u.config.ChunkSize,
		"frames", len(Plan(s.total, u.config.ChunkSize)),
		"crc", useCRC,
	)

	// Phase 1: Trigger
	if u.config.SendTrigger {
		if err := u.t.Send(ctx, protocol.BuildUpgradeTriggerCmd()); err != nil {
			return fail(&TransferError{Stage: StageTrigger, Seq: s.seq, Err: err})
		}
		u.setState(StateTriggerSent)
		emit(Progress{State: StateTriggerSent})

		if err := u.wait(ctx, s, u.config.TriggerDelay); err != nil {
			return fail(err)
		}
	}

	// Phase 2: Data frames
	u.setState(StateTransferring)
	emit(Progress{State: StateTransferring})

	for off := 0; off < len(image); {
		if err := u.checkAbort(ctx, s); err != nil {
			return fail(err)
		}

		end := off + u.config.ChunkSize
		if end > len(image) {
			end = len(image)
		}

		frame, err := protocol.BuildTransferFrame(u.config.DeviceAddr, protocol.FuncSendData, s.seq, image[off:end])
		if err != nil {
			return fail(fmt.Errorf("build data frame: %w", err))
		}

		if err := u.sendFrame(ctx, s, StageData, frame); err != nil {
			return fail(err)
		}

		s.seq++
		s.frames++
		off = end
		s.sent = off

		emit(Progress{State: StateTransferring})

		if err := u.wait(ctx, s, u.config.FrameDelay); err != nil {
			return fail(err)
		}
	}

	// Phase 3: CRC
	if useCRC {
		if err := u.checkAbort(ctx, s); err != nil {
			return fail(err)
		}

		crc := protocol.CRC32Word(image)
		u.logDebug("sending image crc", "crc", fmt.Sprintf("0x%08X", crc), "seq", s.seq)

		if err := u.sendFrame(ctx, s, StageCRC, protocol.BuildCRCFrame(u.config.DeviceAddr, s.seq, crc)); err != nil {
			return fail(err)
		}
		s.seq++
		s.frames++

		if s.warning != nil {
			emit(Progress{State: StateTransferring})
		}

		if err := u.wait(ctx, s, u.config.FrameDelay); err != nil {
			return fail(err)
		}
	}

	// Phase 4: Terminator
	if err := u.checkAbort(ctx, s); err != nil {
		return fail(err)
	}

	if err := u.sendFrame(ctx, s, StageTerminator, protocol.BuildTerminatorFrame(u.config.DeviceAddr, s.seq)); err != nil {
		return fail(err)
	}
	s.seq++
	s.frames++

	u.release(s, StateCompleted)
	emit(Progress{State: StateCompleted})

	u.logInfo("firmware transfer complete",
		"bytes", s.sent,
		"frames", s.frames,
		"elapsed", u.config.Clock.Now().Sub(startTime).String(),
	)

	return nil
}

// sendFrame sends one transfer frame and, when configured, reads its reply.
// A reply that fails validation is kept as a warning on the session, not
// returned as an error.
func (u *Uploader) sendFrame(ctx context.Context, s *session, stage string, frame []byte) error {
	if err := u.t.Send(ctx, frame); err != nil {
		return &TransferError{Stage: stage, Seq: s.seq, Err: err}
	}

	u.logDebug("frame sent",
		"stage", stage,
		"seq", s.seq,
		"len", len(frame),
	)

	if !u.config.AwaitResponse {
		return nil
	}

	recv := u.t.(transport.Receiver)
	reply, err := recv.Receive(ctx, u.config.ResponseTimeout)
	if err != nil {
		return &TransferError{Stage: StageResponse, Seq: s.seq, Err: err}
	}

	if _, err := protocol.ParseTransferFrame(reply); err != nil {
		s.warning = fmt.Errorf("reply to %s frame (seq %d): %w", stage, s.seq, err)
		u.logError("invalid bootloader reply",
			"stage", stage,
			"seq", s.seq,
			"reply", fmt.Sprintf("% X", reply),
			"error", err,
		)
	}

	return nil
}

// wait pauses for d, returning early with an abort error on Cancel or ctx.
func (u *Uploader) wait(ctx context.Context, s *session, d time.Duration) error {
	if d <= 0 {
		return u.checkAbort(ctx, s)
	}

	select {
	case <-u.config.Clock.After(d):
		return nil
	case <-s.cancel:
		return u.aborted(s, ErrCancelled)
	case <-ctx.Done():
		return u.aborted(s, ctx.Err())
	}
}

func (u *Uploader) checkAbort(ctx context.Context, s *session) error {
	select {
	case <-s.cancel:
		return u.aborted(s, ErrCancelled)
	default:
	}
	if err := ctx.Err(); err != nil {
		return u.aborted(s, err)
	}
	return nil
}

func (u *Uploader) aborted(s *session, reason error) error {
	return &TransferAbortedError{BytesSent: s.sent, TotalBytes: s.total, Err: reason}
}

// reportProgress calls the progress callback if configured.
func (u *Uploader) reportProgress(progress Progress) {
	if u.config.ProgressCallback != nil {
		u.config.ProgressCallback(progress)
	}
}

// logDebug logs a debug message if a logger is configured.
func (u *Uploader) logDebug(msg string, keysAndValues ...interface{}) {
	if u.config.Logger != nil {
		u.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (u *Uploader) logInfo(msg string, keysAndValues ...interface{}) {
	if u.config.Logger != nil {
		u.config.Logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (u *Uploader) logError(msg string, keysAndValues ...interface{}) {
	if u.config.Logger != nil {
		u.config.Logger.Error(msg, keysAndValues...)
	}
}
