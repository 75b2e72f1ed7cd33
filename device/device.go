package device

import (
	"context"
	"errors"
	"sync"

	"github.com/moffa90/go-keymatrix/bootloader"
	"github.com/moffa90/go-keymatrix/protocol"
	"github.com/moffa90/go-keymatrix/telemetry"
	"github.com/moffa90/go-keymatrix/transport"
)

// ErrNoReceiver is returned by polling operations when the transport
// cannot read.
var ErrNoReceiver = errors.New("transport has no receive path")

type options struct {
	uploader []bootloader.Option
	poller   []telemetry.PollerOption
}

// Option configures a Device.
type Option func(*options)

// WithUploaderOptions passes options to the firmware uploader.
func WithUploaderOptions(opts ...bootloader.Option) Option {
	return func(o *options) {
		o.uploader = append(o.uploader, opts...)
	}
}

// WithPollerOptions passes options to the status poller, including its
// frame handler. Handlers run while a poll holds the link and must not call
// back into the Device.
func WithPollerOptions(opts ...telemetry.PollerOption) Option {
	return func(o *options) {
		o.poller = append(o.poller, opts...)
	}
}

// Device is the command surface of one connected board.
// Commands are validated, encoded and sent exactly once; nothing is retried.
// While a firmware upgrade runs, status polling is paused and other
// commands are rejected with bootloader.ErrTransferInProgress.
type Device struct {
	t        transport.Transport
	uploader *bootloader.Uploader
	poller   *telemetry.Poller

	// cmdMu serialises outbound commands with upgrade start
	cmdMu sync.Mutex

	mu        sync.Mutex
	upgrading bool
}

// New creates a Device over t. Polling is available when t also
// implements transport.Receiver.
func New(t transport.Transport, opts ...Option) *Device {
	if t == nil {
		panic("transport cannot be nil")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	d := &Device{
		t:        t,
		uploader: bootloader.New(t, o.uploader...),
	}
	if r, ok := t.(transport.Receiver); ok {
		d.poller = telemetry.NewPoller(r, o.poller...)
	}
	return d
}

// Calibrate sends one calibration command.
func (d *Device) Calibrate(ctx context.Context, cfg protocol.CalibrationConfig) error {
	frame, err := protocol.BuildCalibrationCmd(cfg)
	if err != nil {
		return err
	}
	return d.send(ctx, frame)
}

// SetLED switches one LED (0-based index) on or off.
func (d *Device) SetLED(ctx context.Context, index int, on bool) error {
	frame, err := protocol.BuildLEDCmd(index, on)
	if err != nil {
		return err
	}
	return d.send(ctx, frame)
}

// TriggerUpgrade sends only the upgrade trigger, rebooting the board into
// its bootloader.
func (d *Device) TriggerUpgrade(ctx context.Context) error {
	return d.send(ctx, protocol.BuildUpgradeTriggerCmd())
}

func (d *Device) send(ctx context.Context, frame []byte) error {
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()

	if d.Upgrading() {
		return bootloader.ErrTransferInProgress
	}
	return d.t.Send(ctx, frame)
}

// StartUpgrade begins a firmware transfer and returns its progress stream.
// Polling, if running, is paused before the first frame and resumed after the
// terminal event, before the channel is closed. A call made while an upgrade
// is running returns bootloader.ErrTransferInProgress and changes nothing.
func (d *Device) StartUpgrade(ctx context.Context, image []byte, useCRC bool) (<-chan bootloader.Progress, error) {
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()

	if d.Upgrading() {
		return nil, bootloader.ErrTransferInProgress
	}

	paused := d.pausePolling()
	events, err := d.uploader.Start(ctx, image, useCRC)
	if err != nil {
		if paused {
			d.poller.Resume()
		}
		return nil, err
	}
	d.setUpgrading(true)

	out := make(chan bootloader.Progress, cap(events))
	go func() {
		defer close(out)
		var final *bootloader.Progress
		for p := range events {
			if p.State.Terminal() {
				p := p
				final = &p
				continue
			}
			out <- p
		}
		if paused {
			d.poller.Resume()
		}
		d.setUpgrading(false)
		if final != nil {
			out <- *final
		}
	}()

	return out, nil
}

// Upgrading reports whether an upgrade started through this Device has not
// yet delivered its terminal event.
func (d *Device) Upgrading() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.upgrading
}

func (d *Device) setUpgrading(v bool) {
	d.mu.Lock()
	d.upgrading = v
	d.mu.Unlock()
}

// Upgrade runs a transfer to completion and returns its error.
func (d *Device) Upgrade(ctx context.Context, image []byte, useCRC bool) error {
	events, err := d.StartUpgrade(ctx, image, useCRC)
	if err != nil {
		return err
	}

	var last bootloader.Progress
	for p := range events {
		last = p
	}
	return last.Err
}

// CancelUpgrade stops the running transfer before its next frame.
// Returns false when no transfer is running.
func (d *Device) CancelUpgrade() bool {
	return d.uploader.Cancel()
}

// UpgradeState returns the state of the current or last transfer.
func (d *Device) UpgradeState() bootloader.State {
	return d.uploader.State()
}

// pausePolling pauses a running poll and reports whether this call paused it.
func (d *Device) pausePolling() bool {
	if d.poller == nil || !d.poller.Running() || d.poller.Paused() {
		return false
	}
	d.poller.Pause()
	return true
}

// StartPolling starts the background status poll. It is rejected while an
// upgrade runs.
func (d *Device) StartPolling() error {
	if d.poller == nil {
		return ErrNoReceiver
	}
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()

	if d.Upgrading() {
		return bootloader.ErrTransferInProgress
	}
	d.poller.Start()
	return nil
}

// StopPolling stops the background status poll and waits for it to exit.
func (d *Device) StopPolling() {
	if d.poller == nil {
		return
	}
	d.poller.Stop()
}

// Polling reports whether the background poll is running and not paused.
func (d *Device) Polling() bool {
	return d.poller != nil && d.poller.Running() && !d.poller.Paused()
}

// Poll performs a single status read outside the background loop.
func (d *Device) Poll(ctx context.Context) error {
	if d.poller == nil {
		return ErrNoReceiver
	}
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()

	if d.Upgrading() {
		return bootloader.ErrTransferInProgress
	}
	return d.poller.Poll(ctx)
}

// Latest returns the most recent status frame.
func (d *Device) Latest() telemetry.Frame {
	if d.poller == nil {
		return telemetry.Frame{}
	}
	return d.poller.Latest()
}

// RecentFrames returns the most recent raw status frames, oldest first.
func (d *Device) RecentFrames() [][]byte {
	if d.poller == nil {
		return nil
	}
	return d.poller.RecentFrames()
}
