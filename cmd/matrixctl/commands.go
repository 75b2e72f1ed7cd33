package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/moffa90/go-keymatrix/bootloader"
	"github.com/moffa90/go-keymatrix/firmware"
	"github.com/moffa90/go-keymatrix/protocol"
	"github.com/moffa90/go-keymatrix/telemetry"
	"github.com/moffa90/go-keymatrix/transport"
)

var commands = []*ishell.Cmd{
	&PortsCmd,
	&ConnectCmd,
	&DisconnectCmd,
	&CalibrateCmd,
	&LEDCmd,
	&TriggerCmd,
	&UpgradeCmd,
	&UpgradeStartCmd,
	&CancelCmd,
	&StatusCmd,
	&FramesCmd,
	&MonitorCmd,
	&ConfigCmd,
}

var (
	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name:    "ports",
		Aliases: []string{"list", "l"},
		Help:    "list serial ports",
		Func: func(c *ishell.Context) {
			ports, err := transport.ListPorts()
			if err != nil {
				c.Err(err)
				return
			}
			if len(ports) == 0 {
				c.Println("No serial ports found")
				return
			}
			for _, p := range ports {
				c.Println(p)
			}
		},
	}

	// ConnectCmd opens a serial port.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[PORT]",
		Func: func(c *ishell.Context) {
			var port string
			if len(c.Args) > 0 {
				port = c.Args[0]
			}
			if err := ShellFrom(c).Connect(port); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd closes the port.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// CalibrateCmd sends a calibration command.
	CalibrateCmd = ishell.Cmd{
		Name: "calibrate",
		Help: "CHANNEL auto|manual center|range joystick|pot|button [on|off]",
		Func: MustBeConnected(func(c *ishell.Context) {
			cfg, err := parseCalibration(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			if err := ShellFrom(c).dev.Calibrate(ShellFrom(c).ctx, cfg); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// LEDCmd switches one LED.
	LEDCmd = ishell.Cmd{
		Name: "led",
		Help: "N on|off (N is 1-20)",
		Func: MustBeConnected(func(c *ishell.Context) {
			index, on, err := parseLED(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			if err := ShellFrom(c).dev.SetLED(ShellFrom(c).ctx, index, on); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// TriggerCmd reboots the board into its bootloader.
	TriggerCmd = ishell.Cmd{
		Name: "trigger",
		Help: "reboot the board into its bootloader",
		Func: MustBeConnected(func(c *ishell.Context) {
			if err := ShellFrom(c).dev.TriggerUpgrade(ShellFrom(c).ctx); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// UpgradeCmd uploads a firmware image and waits for the result.
	UpgradeCmd = ishell.Cmd{
		Name: "upgrade",
		Help: "FILE [nocrc]",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			img, useCRC, err := loadImage(c.Args, s.Config.Upgrade.UseCRC)
			if err != nil {
				c.Err(err)
				return
			}

			events, err := s.dev.StartUpgrade(s.ctx, img.Data, useCRC)
			if err != nil {
				c.Err(err)
				return
			}

			bar := c.ProgressBar()
			bar.Start()
			var last bootloader.Progress
			for p := range events {
				last = p
				bar.Suffix(fmt.Sprintf(" %3d%% %s", p.Percent, p.State))
				bar.Progress(p.Percent)
			}
			bar.Stop()

			if last.Err != nil {
				c.Err(last.Err)
				return
			}
			c.Printf("Uploaded %d bytes in %s\n", last.BytesSent, last.ElapsedTime.Round(time.Millisecond))
		}),
	}

	// UpgradeStartCmd uploads a firmware image in the background.
	UpgradeStartCmd = ishell.Cmd{
		Name: "upgrade.start",
		Help: "FILE [nocrc]",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			img, useCRC, err := loadImage(c.Args, s.Config.Upgrade.UseCRC)
			if err != nil {
				c.Err(err)
				return
			}

			events, err := s.dev.StartUpgrade(s.ctx, img.Data, useCRC)
			if err != nil {
				c.Err(err)
				return
			}

			logger := s.logger
			go func() {
				for p := range events {
					switch {
					case p.Err != nil:
						logger.Error().Err(p.Err).Int("sent", p.BytesSent).Msg("upgrade failed")
					case p.State == bootloader.StateCompleted:
						logger.Info().Int("bytes", p.BytesSent).Dur("elapsed", p.ElapsedTime).Msg("upgrade complete")
					case p.Warning != nil:
						logger.Warn().Err(p.Warning).Uint8("seq", p.Seq).Msg("upgrade warning")
					}
				}
			}()
			c.Printf("Upgrade started: %d bytes\n", img.Size())
		}),
	}

	// CancelCmd stops a background upgrade.
	CancelCmd = ishell.Cmd{
		Name: "cancel",
		Help: "cancel a running upgrade",
		Func: MustBeConnected(func(c *ishell.Context) {
			if !ShellFrom(c).dev.CancelUpgrade() {
				c.Println("No upgrade running")
				return
			}
			c.Println("Cancelling")
		}),
	}

	// StatusCmd prints the latest status frame.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"s"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			c.Printf("upgrade: %s  polling: %t\n", s.dev.UpgradeState(), s.dev.Polling())
			c.Print(formatFrame(s.dev.Latest(), s.Config.Names))
		}),
	}

	// FramesCmd prints the recent raw status frames.
	FramesCmd = ishell.Cmd{
		Name: "frames",
		Help: "",
		Func: MustBeConnected(func(c *ishell.Context) {
			frames := ShellFrom(c).dev.RecentFrames()
			if len(frames) == 0 {
				c.Println("No frames received")
				return
			}
			for _, raw := range frames {
				c.Println(strings.ToUpper(hex.EncodeToString(raw)))
			}
		}),
	}

	// MonitorCmd prints status frames as they arrive.
	MonitorCmd = ishell.Cmd{
		Name:    "monitor",
		Aliases: []string{"m"},
		Help:    "[SECONDS]",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			d := 10 * time.Second
			if len(c.Args) > 0 {
				secs, err := strconv.Atoi(c.Args[0])
				if err != nil || secs <= 0 {
					c.Err(fmt.Errorf("invalid duration %q", c.Args[0]))
					return
				}
				d = time.Duration(secs) * time.Second
			}

			ch := make(chan telemetry.Frame, 16)
			s.setMonitor(ch)
			defer s.setMonitor(nil)

			timeout := time.After(d)
			for {
				select {
				case f := <-ch:
					c.Println(formatFrameLine(f, s.Config.Names))
				case <-timeout:
					return
				case <-s.ctx.Done():
					return
				}
			}
		}),
	}

	// ConfigCmd prints or saves the configuration.
	ConfigCmd = ishell.Cmd{
		Name: "config",
		Help: "[save [PATH]]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 && c.Args[0] == "save" {
				path := configPath
				if len(c.Args) > 1 {
					path = c.Args[1]
				}
				if err := s.Config.Save(path); err != nil {
					c.Err(err)
					return
				}
				c.Printf("Saved %s\n", path)
				return
			}
			c.Print(formatConfig(s.Config))
		},
	}
)

func loadImage(args []string, defaultCRC bool) (*firmware.Image, bool, error) {
	if len(args) == 0 {
		return nil, false, fmt.Errorf("firmware file required")
	}
	useCRC := defaultCRC
	if len(args) > 1 {
		switch args[1] {
		case "nocrc":
			useCRC = false
		case "crc":
			useCRC = true
		default:
			return nil, false, fmt.Errorf("unknown flag %q", args[1])
		}
	}
	img, err := firmware.Load(args[0])
	if err != nil {
		return nil, false, err
	}
	return img, useCRC, nil
}

func parseCalibration(args []string) (protocol.CalibrationConfig, error) {
	var cfg protocol.CalibrationConfig
	if len(args) < 4 {
		return cfg, fmt.Errorf("usage: calibrate CHANNEL MODE TYPE DEVICE [on|off]")
	}

	ch, err := strconv.Atoi(args[0])
	if err != nil || ch < protocol.MinChannel || ch > protocol.MaxChannel {
		return cfg, fmt.Errorf("invalid channel %q: valid range is %d-%d", args[0], protocol.MinChannel, protocol.MaxChannel)
	}
	cfg.Channel = byte(ch)

	switch strings.ToLower(args[1]) {
	case "auto":
		cfg.Mode = protocol.ModeAuto
	case "manual":
		cfg.Mode = protocol.ModeManual
	default:
		return cfg, fmt.Errorf("invalid mode %q: want auto or manual", args[1])
	}

	switch strings.ToLower(args[2]) {
	case "center":
		cfg.Type = protocol.TypeCenter
	case "range":
		cfg.Type = protocol.TypeRange
	default:
		return cfg, fmt.Errorf("invalid type %q: want center or range", args[2])
	}

	switch strings.ToLower(args[3]) {
	case "joystick":
		cfg.Device = protocol.DeviceJoystick
	case "pot", "potentiometer":
		cfg.Device = protocol.DevicePotentiometer
	case "button":
		cfg.Device = protocol.DeviceButton
	default:
		return cfg, fmt.Errorf("invalid device %q: want joystick, pot or button", args[3])
	}

	cfg.Enabled = true
	if len(args) > 4 {
		on, err := parseOnOff(args[4])
		if err != nil {
			return cfg, err
		}
		cfg.Enabled = on
	}
	return cfg, nil
}

func parseLED(args []string) (int, bool, error) {
	if len(args) < 2 {
		return 0, false, fmt.Errorf("usage: led N on|off")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, false, fmt.Errorf("invalid led %q", args[0])
	}
	on, err := parseOnOff(args[1])
	if err != nil {
		return 0, false, err
	}
	return n - 1, on, nil
}

func parseOnOff(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	default:
		return false, fmt.Errorf("invalid state %q: want on or off", raw)
	}
}
