package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/abiosoft/ishell"
	"github.com/rs/zerolog"

	"github.com/moffa90/go-keymatrix/bootloader"
	"github.com/moffa90/go-keymatrix/device"
	"github.com/moffa90/go-keymatrix/internal/config"
	"github.com/moffa90/go-keymatrix/internal/observability"
	"github.com/moffa90/go-keymatrix/internal/publish"
	"github.com/moffa90/go-keymatrix/telemetry"
	"github.com/moffa90/go-keymatrix/transport"
)

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var errNotConnected = errors.New("not connected")

// Shell holds the connection state behind the ishell commands.
type Shell struct {
	Interactive bool

	Shell  *ishell.Shell
	Config config.Config

	ctx    context.Context
	logger zerolog.Logger
	pub    *publish.Publisher

	conn transport.Conn
	dev  *device.Device

	monitorMu sync.Mutex
	monitor   chan telemetry.Frame
}

// NewShell creates the shell and registers every command.
func NewShell(ctx context.Context, cfg config.Config, logger zerolog.Logger, pub *publish.Publisher) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		Shell:       ishell.New(),
		Config:      cfg,
		ctx:         ctx,
		logger:      logger,
		pub:         pub,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requiring an open port.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).dev == nil {
			c.Err(errNotConnected)
			return
		}
		fn(c)
	}
}

// Connect opens port, replacing any current connection, and starts polling.
func (s *Shell) Connect(port string) error {
	if port == "" {
		port = s.Config.Serial.Port
	}

	conn, err := transport.OpenSerial(transport.SerialConfig{
		Port:        port,
		BaudRate:    s.Config.Serial.BaudRate,
		ReadTimeout: s.Config.Serial.ReadTimeout,
	})
	if err != nil {
		return err
	}

	s.Disconnect()
	s.attach(conn, port)

	if err := s.dev.StartPolling(); err != nil {
		return err
	}
	s.logger.Info().Str("port", port).Int("baud", s.Config.Serial.BaudRate).Msg("connected")
	return nil
}

// attach wires conn into a Device configured from s.Config.
func (s *Shell) attach(conn transport.Conn, name string) {
	up := s.Config.Upgrade
	tel := s.Config.Telemetry

	s.conn = conn
	s.dev = device.New(observability.InstrumentTransport(conn),
		device.WithUploaderOptions(
			bootloader.WithChunkSize(up.ChunkSize),
			bootloader.WithFrameDelay(up.FrameDelay),
			bootloader.WithTrigger(up.SendTrigger),
			bootloader.WithTriggerDelay(up.TriggerDelay),
			bootloader.WithAwaitResponse(up.AwaitResponse),
			bootloader.WithResponseTimeout(up.ResponseTimeout),
			bootloader.WithLogger(observability.NewKVLogger(s.logger, "uploader")),
			bootloader.WithProgressCallback(recordTransfer),
		),
		device.WithPollerOptions(
			telemetry.WithInterval(tel.Interval),
			telemetry.WithReadTimeout(tel.ReadTimeout),
			telemetry.WithHistory(tel.History),
			telemetry.WithFrameHandler(s.onFrame),
			telemetry.WithErrorHandler(s.onPollError),
			telemetry.WithPollerLogger(observability.NewKVLogger(s.logger, "poller")),
		),
	)
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", name))
}

// Disconnect stops polling and closes the port.
func (s *Shell) Disconnect() {
	if s.dev == nil {
		return
	}
	s.dev.CancelUpgrade()
	s.dev.StopPolling()
	if err := s.conn.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("close port")
	}
	s.dev, s.conn = nil, nil
	s.Shell.SetPrompt(unconnectedPrompt)
}

func (s *Shell) onFrame(f telemetry.Frame) {
	observability.RecordTelemetryFrame(f.Valid)
	if s.pub != nil {
		s.pub.FrameHandler()(f)
	}

	s.monitorMu.Lock()
	ch := s.monitor
	s.monitorMu.Unlock()
	if ch != nil {
		select {
		case ch <- f:
		default:
		}
	}
}

func (s *Shell) onPollError(err error) {
	observability.RecordTelemetryError()
	s.logger.Warn().Err(err).Msg("status read failed")
}

func (s *Shell) setMonitor(ch chan telemetry.Frame) {
	s.monitorMu.Lock()
	s.monitor = ch
	s.monitorMu.Unlock()
}

func recordTransfer(p bootloader.Progress) {
	if p.State.Terminal() {
		observability.RecordTransfer(p.State.String(), p.BytesSent, p.ElapsedTime)
	}
}

// Run processes args as one command, or starts the interactive shell.
func (s *Shell) Run(args ...string) error {
	if s.Config.Serial.Port != "" {
		if err := s.Connect(""); err != nil {
			return fmt.Errorf("connect %q: %w", s.Config.Serial.Port, err)
		}
	}

	if len(args) > 0 {
		return s.Shell.Process(args...)
	}
	if s.Interactive {
		s.Shell.Run()
		return nil
	}
	return errors.New("command expected")
}
