package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matrixctl.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
[serial]
port = " /dev/ttyUSB0 "
baud = 115200

[telemetry]
interval = "250ms"

[upgrade]
chunk_size = 128
trigger = false
crc = true

[names]
keys = ["Fire", "", "Jump"]

[mqtt]
broker = "tcp://localhost:1883"
qos = 1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	require.Equal(t, 115200, cfg.Serial.BaudRate)
	require.Equal(t, 100*time.Millisecond, cfg.Serial.ReadTimeout)

	require.Equal(t, 250*time.Millisecond, cfg.Telemetry.Interval)
	require.Equal(t, 50*time.Millisecond, cfg.Telemetry.ReadTimeout)
	require.Equal(t, 3, cfg.Telemetry.History)

	require.Equal(t, 128, cfg.Upgrade.ChunkSize)
	require.False(t, cfg.Upgrade.SendTrigger)
	require.True(t, cfg.Upgrade.UseCRC)
	require.Equal(t, 50*time.Millisecond, cfg.Upgrade.FrameDelay)
	require.Equal(t, time.Second, cfg.Upgrade.TriggerDelay)
	require.Equal(t, 5*time.Second, cfg.Upgrade.ResponseTimeout)

	require.Equal(t, "Fire", cfg.Names.Key(0))
	require.Equal(t, "Key 2", cfg.Names.Key(1))
	require.Equal(t, "Jump", cfg.Names.Key(2))
	require.Equal(t, "Key 24", cfg.Names.Key(23))
	require.Equal(t, "ADC 1", cfg.Names.ADCName(0))
	require.Equal(t, "LED 20", cfg.Names.LED(19))

	require.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	require.Equal(t, "keymatrix/status", cfg.MQTT.Topic)
	require.Equal(t, byte(1), cfg.MQTT.QoS)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"bad duration", "[telemetry]\ninterval = \"soon\"\n", "parse telemetry.interval"},
		{"chunk too large", "[upgrade]\nchunk_size = 256\n", "upgrade.chunk_size must be 1-255"},
		{"chunk zero", "[upgrade]\nchunk_size = 0\n", "upgrade.chunk_size"},
		{"bad qos", "[mqtt]\nqos = 3\n", "mqtt.qos"},
		{"zero baud", "[serial]\nbaud = 0\n", "serial.baud"},
		{"too many leds", "[names]\nleds = [" + strings.Repeat(`"x",`, 21) + "]\n", "names.leds has 21 entries"},
		{"broker without topic", "[mqtt]\nbroker = \"tcp://h:1883\"\ntopic = \"\"\n", "mqtt.topic is required"},
		{"bad toml", "[serial\n", "load config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.toml")

	_, err := Load(missing)
	require.Error(t, err)

	cfg, err := LoadOrDefault(missing)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestSaveThenLoad(t *testing.T) {
	cfg := Default()
	cfg.Serial.Port = "COM4"
	cfg.Upgrade.AwaitResponse = true
	cfg.Upgrade.FrameDelay = 20 * time.Millisecond
	cfg.Names = Names{
		Keys: []string{"A", "B"},
		ADC:  []string{"Throttle"},
		LEDs: []string{"Power"},
	}
	cfg.MQTT.Broker = "tcp://broker:1883"
	cfg.MQTT.ClientID = "bench-1"

	path := filepath.Join(t.TempDir(), "saved.toml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}
