package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-keymatrix/bootloader"
	"github.com/moffa90/go-keymatrix/protocol"
	"github.com/moffa90/go-keymatrix/telemetry"
	"github.com/moffa90/go-keymatrix/transport"
)

// MockConn records sent frames and replays queued status bytes.
type MockConn struct {
	mu     sync.Mutex
	sent   [][]byte
	queued [][]byte
	onSend func(frame []byte)
}

func (m *MockConn) Send(ctx context.Context, frame []byte) error {
	m.mu.Lock()
	hook := m.onSend
	m.sent = append(m.sent, append([]byte(nil), frame...))
	m.mu.Unlock()

	if hook != nil {
		hook(frame)
	}
	return nil
}

func (m *MockConn) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queued) == 0 {
		return nil, &transport.Error{Op: "receive", Err: transport.ErrTimeout}
	}
	data := m.queued[0]
	m.queued = m.queued[1:]
	return data, nil
}

func (m *MockConn) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.sent...)
}

func (m *MockConn) Queue(data []byte) {
	m.mu.Lock()
	m.queued = append(m.queued, data)
	m.mu.Unlock()
}

type sendOnly struct{}

func (sendOnly) Send(ctx context.Context, frame []byte) error { return nil }

// fastUpload skips the trigger and all delays.
func fastUpload() Option {
	return WithUploaderOptions(
		bootloader.WithTrigger(false),
		bootloader.WithFrameDelay(0),
		bootloader.WithTriggerDelay(0),
	)
}

func statusFrame(index byte) []byte {
	raw := make([]byte, telemetry.FrameSize)
	raw[0] = telemetry.FrameMarker
	raw[1] = index
	raw[2] = 0x01
	raw[22] = protocol.XOR8(raw[:22])
	raw[23] = protocol.FrameTrailer
	return raw
}

func TestNew(t *testing.T) {
	require.Panics(t, func() { New(nil) })

	d := New(sendOnly{})
	require.NotNil(t, d)
	require.Equal(t, bootloader.StateIdle, d.UpgradeState())
	require.ErrorIs(t, d.StartPolling(), ErrNoReceiver)
	require.ErrorIs(t, d.Poll(context.Background()), ErrNoReceiver)
	require.False(t, d.Polling())
	require.Nil(t, d.RecentFrames())
}

func TestCommands(t *testing.T) {
	conn := &MockConn{}
	d := New(conn)
	ctx := context.Background()

	require.NoError(t, d.Calibrate(ctx, protocol.CalibrationConfig{
		Enabled: true,
		Channel: 1,
		Mode:    protocol.ModeManual,
		Type:    protocol.TypeRange,
		Device:  protocol.DeviceJoystick,
	}))
	require.NoError(t, d.SetLED(ctx, 0, true))
	require.NoError(t, d.TriggerUpgrade(ctx))

	require.Equal(t, [][]byte{
		{0x81, 0x10, 0x05, 0x01, 0x01, 0x02, 0x02, 0x01, 0x00, 0x9D},
		{0xCC, 0x01, 0x01, 0xBF},
		{0xF5, 0x5F, 0x01, 0xAB, 0xBF},
	}, conn.Sent())
}

func TestCommandsValidateBeforeSending(t *testing.T) {
	conn := &MockConn{}
	d := New(conn)
	ctx := context.Background()

	err := d.Calibrate(ctx, protocol.CalibrationConfig{Channel: 0, Mode: protocol.ModeAuto, Type: protocol.TypeCenter, Device: protocol.DeviceButton})
	require.True(t, protocol.IsEncodingError(err))

	err = d.SetLED(ctx, protocol.LEDCount, true)
	require.True(t, protocol.IsEncodingError(err))

	require.Empty(t, conn.Sent())
}

func TestPollDecodesStatus(t *testing.T) {
	conn := &MockConn{}
	d := New(conn)

	conn.Queue(append(statusFrame(1), statusFrame(2)...))
	require.NoError(t, d.Poll(context.Background()))

	latest := d.Latest()
	require.True(t, latest.Valid)
	require.Equal(t, byte(2), latest.Index)
	require.Equal(t, []int{0}, latest.PressedKeys())
	require.Len(t, d.RecentFrames(), 2)

	// No data is not an error
	require.NoError(t, d.Poll(context.Background()))
}

func TestStartUpgradePausesPolling(t *testing.T) {
	conn := &MockConn{}
	d := New(conn, fastUpload(), WithPollerOptions(telemetry.WithInterval(time.Millisecond)))

	require.NoError(t, d.StartPolling())
	defer d.StopPolling()
	require.True(t, d.Polling())

	var pausedDuringSend []bool
	conn.onSend = func([]byte) {
		pausedDuringSend = append(pausedDuringSend, d.poller.Paused())
	}

	events, err := d.StartUpgrade(context.Background(), make([]byte, 300), false)
	require.NoError(t, err)

	var last bootloader.Progress
	for p := range events {
		last = p
	}

	require.Equal(t, bootloader.StateCompleted, last.State)
	require.NoError(t, last.Err)
	require.Len(t, pausedDuringSend, 3)
	for _, paused := range pausedDuringSend {
		require.True(t, paused)
	}
	require.True(t, d.Polling())
	require.Equal(t, bootloader.StateCompleted, d.UpgradeState())
}

func TestCommandsRejectedDuringUpgrade(t *testing.T) {
	conn := &MockConn{}
	d := New(conn, fastUpload())

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	conn.onSend = func([]byte) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}

	events, err := d.StartUpgrade(context.Background(), []byte{1, 2, 3}, true)
	require.NoError(t, err)
	<-entered

	require.ErrorIs(t, d.SetLED(context.Background(), 0, true), bootloader.ErrTransferInProgress)
	require.ErrorIs(t, d.TriggerUpgrade(context.Background()), bootloader.ErrTransferInProgress)
	_, err = d.StartUpgrade(context.Background(), []byte{1}, false)
	require.ErrorIs(t, err, bootloader.ErrTransferInProgress)
	require.ErrorIs(t, d.StartPolling(), bootloader.ErrTransferInProgress)
	require.ErrorIs(t, d.Poll(context.Background()), bootloader.ErrTransferInProgress)
	require.True(t, d.Upgrading())

	close(release)
	for range events {
	}

	// data, crc, terminator
	require.Len(t, conn.Sent(), 3)
	require.NoError(t, d.SetLED(context.Background(), 0, false))
}

func TestRejectedStartUpgradeKeepsPollingPaused(t *testing.T) {
	conn := &MockConn{}
	d := New(conn, fastUpload(), WithPollerOptions(telemetry.WithInterval(time.Millisecond)))

	require.NoError(t, d.StartPolling())
	defer d.StopPolling()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	conn.onSend = func([]byte) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}

	events, err := d.StartUpgrade(context.Background(), []byte{1, 2, 3}, false)
	require.NoError(t, err)
	<-entered
	require.False(t, d.Polling())

	_, err = d.StartUpgrade(context.Background(), []byte{4}, false)
	require.ErrorIs(t, err, bootloader.ErrTransferInProgress)
	require.False(t, d.Polling())
	require.True(t, d.poller.Paused())

	close(release)
	var last bootloader.Progress
	for p := range events {
		last = p
	}
	require.Equal(t, bootloader.StateCompleted, last.State)
	require.True(t, d.Polling())
	require.False(t, d.Upgrading())
}

func TestStartUpgradeWaitsForCommandInFlight(t *testing.T) {
	conn := &MockConn{}
	d := New(conn, fastUpload())

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	conn.onSend = func(frame []byte) {
		if frame[0] != protocol.LEDHeader {
			return
		}
		once.Do(func() {
			close(entered)
			<-release
		})
	}

	ledDone := make(chan error, 1)
	go func() { ledDone <- d.SetLED(context.Background(), 2, true) }()
	<-entered

	started := make(chan (<-chan bootloader.Progress), 1)
	go func() {
		events, err := d.StartUpgrade(context.Background(), []byte{1, 2}, false)
		if err != nil {
			close(started)
			return
		}
		started <- events
	}()

	require.Never(t, func() bool { return len(started) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	close(release)
	require.NoError(t, <-ledDone)
	events, ok := <-started
	require.True(t, ok)
	for range events {
	}

	sent := conn.Sent()
	require.Len(t, sent, 3)
	require.Equal(t, []byte{0xCC, 0x03, 0x01, 0xBF}, sent[0])
	require.Equal(t, protocol.KindData, protocol.FrameKind(sent[1]))
	require.Equal(t, protocol.KindTerminator, protocol.FrameKind(sent[2]))
}

func TestCancelUpgrade(t *testing.T) {
	conn := &MockConn{}
	d := New(conn, fastUpload(), WithUploaderOptions(bootloader.WithChunkSize(1)))

	require.False(t, d.CancelUpgrade())

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	conn.onSend = func([]byte) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}

	events, err := d.StartUpgrade(context.Background(), make([]byte, 10), false)
	require.NoError(t, err)
	<-entered

	require.True(t, d.CancelUpgrade())
	close(release)

	var last bootloader.Progress
	for p := range events {
		last = p
	}
	require.Equal(t, bootloader.StateFailed, last.State)
	require.ErrorIs(t, last.Err, bootloader.ErrCancelled)
	require.True(t, bootloader.IsAborted(last.Err))
}

func TestUpgrade(t *testing.T) {
	conn := &MockConn{}
	d := New(conn, fastUpload())

	require.NoError(t, d.Upgrade(context.Background(), []byte{0xDE, 0xAD}, false))
	require.Equal(t, [][]byte{
		{0x01, 0x01, 0x00, 0x02, 0xDE, 0xAD, 0x01, 0x8F},
		{0x01, 0x01, 0x01, 0x00, 0x00, 0x03},
	}, conn.Sent())

	require.ErrorIs(t, d.Upgrade(context.Background(), nil, false), bootloader.ErrEmptyImage)
}
