// Package config loads matrixctl settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/moffa90/go-keymatrix/bootloader"
	"github.com/moffa90/go-keymatrix/protocol"
	"github.com/moffa90/go-keymatrix/telemetry"
	"github.com/moffa90/go-keymatrix/transport"
)

// Config is the resolved matrixctl configuration.
type Config struct {
	Serial    SerialConfig
	Telemetry TelemetryConfig
	Upgrade   UpgradeConfig
	Names     Names
	MQTT      MQTTConfig
}

type SerialConfig struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
}

type TelemetryConfig struct {
	Interval    time.Duration
	ReadTimeout time.Duration
	History     int
}

type UpgradeConfig struct {
	ChunkSize       int
	FrameDelay      time.Duration
	SendTrigger     bool
	TriggerDelay    time.Duration
	AwaitResponse   bool
	ResponseTimeout time.Duration
	UseCRC          bool
}

// Names label keys, analog channels and LEDs for display.
// Missing entries fall back to "Key n", "ADC n" and "LED n".
type Names struct {
	Keys []string
	ADC  []string
	LEDs []string
}

type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
}

func Default() Config {
	return Config{
		Serial: SerialConfig{
			BaudRate:    transport.DefaultBaudRate,
			ReadTimeout: transport.DefaultReadTimeout,
		},
		Telemetry: TelemetryConfig{
			Interval:    telemetry.DefaultInterval,
			ReadTimeout: telemetry.DefaultReadTimeout,
			History:     telemetry.DefaultKeep,
		},
		Upgrade: UpgradeConfig{
			ChunkSize:       bootloader.DefaultChunkSize,
			FrameDelay:      bootloader.DefaultFrameDelay,
			SendTrigger:     true,
			TriggerDelay:    bootloader.DefaultTriggerDelay,
			ResponseTimeout: transport.DefaultResponseTimeout,
		},
		MQTT: MQTTConfig{
			Topic: "keymatrix/status",
		},
	}
}

type fileConfig struct {
	Serial    serialSection    `toml:"serial"`
	Telemetry telemetrySection `toml:"telemetry"`
	Upgrade   upgradeSection   `toml:"upgrade"`
	Names     namesSection     `toml:"names"`
	MQTT      mqttSection      `toml:"mqtt"`
}

type serialSection struct {
	Port        string `toml:"port"`
	Baud        int    `toml:"baud"`
	ReadTimeout string `toml:"read_timeout"`
}

type telemetrySection struct {
	Interval    string `toml:"interval"`
	ReadTimeout string `toml:"read_timeout"`
	History     int    `toml:"history"`
}

type upgradeSection struct {
	ChunkSize       int    `toml:"chunk_size"`
	FrameDelay      string `toml:"frame_delay"`
	Trigger         bool   `toml:"trigger"`
	TriggerDelay    string `toml:"trigger_delay"`
	AwaitResponse   bool   `toml:"await_response"`
	ResponseTimeout string `toml:"response_timeout"`
	CRC             bool   `toml:"crc"`
}

type namesSection struct {
	Keys []string `toml:"keys"`
	ADC  []string `toml:"adc"`
	LEDs []string `toml:"leds"`
}

type mqttSection struct {
	Broker   string `toml:"broker"`
	Topic    string `toml:"topic"`
	ClientID string `toml:"client_id"`
	QoS      int    `toml:"qos"`
}

// Load reads path over the defaults. Keys absent from the file keep their
// default value.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("serial", "port") {
		cfg.Serial.Port = strings.TrimSpace(raw.Serial.Port)
	}
	if meta.IsDefined("serial", "baud") {
		cfg.Serial.BaudRate = raw.Serial.Baud
	}
	if meta.IsDefined("serial", "read_timeout") {
		if cfg.Serial.ReadTimeout, err = parseDuration("serial.read_timeout", raw.Serial.ReadTimeout); err != nil {
			return Config{}, err
		}
	}

	if meta.IsDefined("telemetry", "interval") {
		if cfg.Telemetry.Interval, err = parseDuration("telemetry.interval", raw.Telemetry.Interval); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("telemetry", "read_timeout") {
		if cfg.Telemetry.ReadTimeout, err = parseDuration("telemetry.read_timeout", raw.Telemetry.ReadTimeout); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("telemetry", "history") {
		cfg.Telemetry.History = raw.Telemetry.History
	}

	if meta.IsDefined("upgrade", "chunk_size") {
		cfg.Upgrade.ChunkSize = raw.Upgrade.ChunkSize
	}
	if meta.IsDefined("upgrade", "frame_delay") {
		if cfg.Upgrade.FrameDelay, err = parseDuration("upgrade.frame_delay", raw.Upgrade.FrameDelay); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("upgrade", "trigger") {
		cfg.Upgrade.SendTrigger = raw.Upgrade.Trigger
	}
	if meta.IsDefined("upgrade", "trigger_delay") {
		if cfg.Upgrade.TriggerDelay, err = parseDuration("upgrade.trigger_delay", raw.Upgrade.TriggerDelay); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("upgrade", "await_response") {
		cfg.Upgrade.AwaitResponse = raw.Upgrade.AwaitResponse
	}
	if meta.IsDefined("upgrade", "response_timeout") {
		if cfg.Upgrade.ResponseTimeout, err = parseDuration("upgrade.response_timeout", raw.Upgrade.ResponseTimeout); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("upgrade", "crc") {
		cfg.Upgrade.UseCRC = raw.Upgrade.CRC
	}

	if meta.IsDefined("names", "keys") {
		cfg.Names.Keys = raw.Names.Keys
	}
	if meta.IsDefined("names", "adc") {
		cfg.Names.ADC = raw.Names.ADC
	}
	if meta.IsDefined("names", "leds") {
		cfg.Names.LEDs = raw.Names.LEDs
	}

	if meta.IsDefined("mqtt", "broker") {
		cfg.MQTT.Broker = strings.TrimSpace(raw.MQTT.Broker)
	}
	if meta.IsDefined("mqtt", "topic") {
		cfg.MQTT.Topic = strings.TrimSpace(raw.MQTT.Topic)
	}
	if meta.IsDefined("mqtt", "client_id") {
		cfg.MQTT.ClientID = strings.TrimSpace(raw.MQTT.ClientID)
	}
	if meta.IsDefined("mqtt", "qos") {
		if raw.MQTT.QoS < 0 || raw.MQTT.QoS > 2 {
			return Config{}, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", raw.MQTT.QoS)
		}
		cfg.MQTT.QoS = byte(raw.MQTT.QoS)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns the defaults if it does not exist.
func LoadOrDefault(path string) (Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

// Validate checks ranges the protocol depends on.
func (c Config) Validate() error {
	var errs []error

	if c.Serial.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud must be positive, got %d", c.Serial.BaudRate))
	}
	if c.Telemetry.Interval <= 0 {
		errs = append(errs, fmt.Errorf("telemetry.interval must be positive, got %s", c.Telemetry.Interval))
	}
	if c.Telemetry.History <= 0 {
		errs = append(errs, fmt.Errorf("telemetry.history must be positive, got %d", c.Telemetry.History))
	}
	if c.Upgrade.ChunkSize < 1 || c.Upgrade.ChunkSize > protocol.MaxChunkSize {
		errs = append(errs, fmt.Errorf("upgrade.chunk_size must be 1-%d, got %d", protocol.MaxChunkSize, c.Upgrade.ChunkSize))
	}
	if c.Upgrade.FrameDelay < 0 || c.Upgrade.TriggerDelay < 0 {
		errs = append(errs, errors.New("upgrade delays must not be negative"))
	}
	if c.Upgrade.AwaitResponse && c.Upgrade.ResponseTimeout <= 0 {
		errs = append(errs, errors.New("upgrade.response_timeout must be positive when await_response is set"))
	}
	if len(c.Names.Keys) > telemetry.KeyCount {
		errs = append(errs, fmt.Errorf("names.keys has %d entries, board has %d keys", len(c.Names.Keys), telemetry.KeyCount))
	}
	if len(c.Names.ADC) > telemetry.ADCCount {
		errs = append(errs, fmt.Errorf("names.adc has %d entries, board has %d channels", len(c.Names.ADC), telemetry.ADCCount))
	}
	if len(c.Names.LEDs) > telemetry.LEDCount {
		errs = append(errs, fmt.Errorf("names.leds has %d entries, board has %d LEDs", len(c.Names.LEDs), telemetry.LEDCount))
	}
	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		errs = append(errs, errors.New("mqtt.topic is required when a broker is set"))
	}

	return errors.Join(errs...)
}

// Save writes c to path in the same layout Load reads.
func (c Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	defer f.Close()

	raw := fileConfig{
		Serial: serialSection{
			Port:        c.Serial.Port,
			Baud:        c.Serial.BaudRate,
			ReadTimeout: c.Serial.ReadTimeout.String(),
		},
		Telemetry: telemetrySection{
			Interval:    c.Telemetry.Interval.String(),
			ReadTimeout: c.Telemetry.ReadTimeout.String(),
			History:     c.Telemetry.History,
		},
		Upgrade: upgradeSection{
			ChunkSize:       c.Upgrade.ChunkSize,
			FrameDelay:      c.Upgrade.FrameDelay.String(),
			Trigger:         c.Upgrade.SendTrigger,
			TriggerDelay:    c.Upgrade.TriggerDelay.String(),
			AwaitResponse:   c.Upgrade.AwaitResponse,
			ResponseTimeout: c.Upgrade.ResponseTimeout.String(),
			CRC:             c.Upgrade.UseCRC,
		},
		Names: namesSection{
			Keys: c.Names.Keys,
			ADC:  c.Names.ADC,
			LEDs: c.Names.LEDs,
		},
		MQTT: mqttSection{
			Broker:   c.MQTT.Broker,
			Topic:    c.MQTT.Topic,
			ClientID: c.MQTT.ClientID,
			QoS:      int(c.MQTT.QoS),
		},
	}

	if err := toml.NewEncoder(f).Encode(raw); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return f.Close()
}

func (n Names) Key(i int) string     { return pick(n.Keys, i, "Key") }
func (n Names) ADCName(i int) string { return pick(n.ADC, i, "ADC") }
func (n Names) LED(i int) string     { return pick(n.LEDs, i, "LED") }

func pick(names []string, i int, prefix string) string {
	if i >= 0 && i < len(names) {
		if name := strings.TrimSpace(names[i]); name != "" {
			return name
		}
	}
	return fmt.Sprintf("%s %d", prefix, i+1)
}
