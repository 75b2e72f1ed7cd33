package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/moffa90/go-keymatrix/transport"
)

const (
	// DefaultInterval is the pause between polls
	DefaultInterval = 100 * time.Millisecond

	// DefaultReadTimeout bounds each read
	DefaultReadTimeout = 50 * time.Millisecond

	// MaxReportedErrors is the number of consecutive read errors reported
	// before further ones are suppressed until a read succeeds
	MaxReportedErrors = 5
)

// Source supplies raw bytes from the board; transport.Receiver satisfies it.
type Source interface {
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// Logger is an optional logging interface, shaped like bootloader.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type pollerConfig struct {
	interval    time.Duration
	readTimeout time.Duration
	history     int
	onFrame     func(Frame)
	onError     func(error)
	logger      Logger
}

// PollerOption configures a Poller.
type PollerOption func(*pollerConfig)

// WithInterval sets the pause between polls.
func WithInterval(d time.Duration) PollerOption {
	return func(c *pollerConfig) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithReadTimeout bounds each read.
func WithReadTimeout(d time.Duration) PollerOption {
	return func(c *pollerConfig) {
		if d > 0 {
			c.readTimeout = d
		}
	}
}

// WithHistory sets how many recent frames RecentFrames keeps.
func WithHistory(n int) PollerOption {
	return func(c *pollerConfig) {
		if n > 0 {
			c.history = n
		}
	}
}

// WithFrameHandler is called for every decoded frame, valid or not.
func WithFrameHandler(fn func(Frame)) PollerOption {
	return func(c *pollerConfig) {
		c.onFrame = fn
	}
}

// WithErrorHandler is called for each reported read error.
func WithErrorHandler(fn func(error)) PollerOption {
	return func(c *pollerConfig) {
		c.onError = fn
	}
}

// WithPollerLogger sets a logger.
func WithPollerLogger(l Logger) PollerOption {
	return func(c *pollerConfig) {
		c.logger = l
	}
}

// Poller reads status frames from a Source on a fixed interval.
// It is a cancellable periodic task: Start and Stop bracket a connection,
// Pause and Resume bracket anything else that needs the link, such as a
// firmware upgrade.
type Poller struct {
	src Source
	cfg pollerConfig

	// pollMu is held for the duration of one poll
	pollMu sync.Mutex
	asm    Reassembler

	mu       sync.Mutex
	latest   Frame
	recent   [][]byte
	errCount int
	paused   bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewPoller creates a Poller reading from src.
func NewPoller(src Source, opts ...PollerOption) *Poller {
	if src == nil {
		panic("source cannot be nil")
	}

	cfg := pollerConfig{
		interval:    DefaultInterval,
		readTimeout: DefaultReadTimeout,
		history:     DefaultKeep,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Poller{src: src, cfg: cfg}
}

// Start runs the poll loop in the background. It is a no-op if already running.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.errCount = 0

	go func(done chan struct{}) {
		defer close(done)
		p.Run(ctx)
	}(p.done)
}

// Stop ends the poll loop started by Start and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the background loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Pause stops polling. When it returns no read is in flight.
func (p *Poller) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()

	p.pollMu.Lock()
	p.asm.Reset()
	p.pollMu.Unlock()
}

// Resume re-enables polling after Pause.
func (p *Poller) Resume() {
	p.mu.Lock()
	p.paused = false
	p.errCount = 0
	p.mu.Unlock()
}

// Paused reports whether polling is paused.
func (p *Poller) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.interval)
	defer ticker.Stop()

	for {
		if err := p.pollIfActive(ctx); err != nil && p.cfg.onError != nil {
			p.cfg.onError(err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollIfActive polls unless paused. The paused check is made under pollMu so
// no read starts after Pause has returned.
func (p *Poller) pollIfActive(ctx context.Context) error {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	if p.Paused() {
		return nil
	}
	return p.poll(ctx)
}

// Poll performs one read and decodes every complete frame it yields.
// A read timeout with no data is not an error. Read errors are returned
// until MaxReportedErrors consecutive ones have been returned; after that
// nil is returned until a read succeeds.
func (p *Poller) Poll(ctx context.Context) error {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()
	return p.poll(ctx)
}

func (p *Poller) poll(ctx context.Context) error {
	data, err := p.src.Receive(ctx, p.cfg.readTimeout)
	if err != nil && !errors.Is(err, transport.ErrTimeout) {
		return p.readFailed(err)
	}
	p.readSucceeded()

	if len(data) == 0 {
		return nil
	}

	p.asm.Write(data)
	for {
		raw, ok := p.asm.Next()
		if !ok {
			break
		}
		f, err := Decode(raw)
		if err != nil {
			continue
		}
		p.record(f)
		if p.cfg.onFrame != nil {
			p.cfg.onFrame(f)
		}
	}

	return nil
}

func (p *Poller) readFailed(err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.errCount >= MaxReportedErrors {
		return nil
	}
	p.errCount++
	if p.errCount == MaxReportedErrors && p.cfg.logger != nil {
		p.cfg.logger.Error("telemetry read failing, suppressing further errors", "error", err)
	}
	return err
}

func (p *Poller) readSucceeded() {
	p.mu.Lock()
	p.errCount = 0
	p.mu.Unlock()
}

func (p *Poller) record(f Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if f.Valid {
		p.latest = f
	} else {
		p.latest.Raw = f.Raw
		p.latest.Valid = false
		if p.cfg.logger != nil {
			p.cfg.logger.Debug("status frame checksum mismatch", "index", f.Index)
		}
	}

	p.recent = append(p.recent, f.Raw)
	if len(p.recent) > p.cfg.history {
		p.recent = p.recent[len(p.recent)-p.cfg.history:]
	}
}

// Latest returns the most recent frame. After a frame with a bad checksum
// the last good fields are kept and Valid is false.
func (p *Poller) Latest() Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// RecentFrames returns up to the configured history of raw frames, oldest first.
func (p *Poller) RecentFrames() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	var buf []byte
	for _, raw := range p.recent {
		buf = append(buf, raw...)
	}
	return GroupFrames(buf, p.cfg.history)
}
