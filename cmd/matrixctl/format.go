package main

import (
	"fmt"
	"strings"

	"github.com/moffa90/go-keymatrix/internal/config"
	"github.com/moffa90/go-keymatrix/telemetry"
)

func formatFrame(f telemetry.Frame, names config.Names) string {
	if f.Raw == nil {
		return "No status received\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "frame %d valid=%t\n", f.Index, f.Valid)

	pressed := make([]string, 0, telemetry.KeyCount)
	for _, k := range f.PressedKeys() {
		pressed = append(pressed, names.Key(k))
	}
	if len(pressed) == 0 {
		pressed = append(pressed, "-")
	}
	fmt.Fprintf(&b, "keys: %s\n", strings.Join(pressed, ", "))

	for i, v := range f.ADC {
		fmt.Fprintf(&b, "  %-12s %3d\n", names.ADCName(i), v)
	}

	lit := make([]string, 0, telemetry.LEDCount)
	for i, on := range f.LEDs {
		if on {
			lit = append(lit, names.LED(i))
		}
	}
	if len(lit) == 0 {
		lit = append(lit, "-")
	}
	fmt.Fprintf(&b, "leds: %s\n", strings.Join(lit, ", "))
	return b.String()
}

func formatFrameLine(f telemetry.Frame, names config.Names) string {
	pressed := make([]string, 0, telemetry.KeyCount)
	for _, k := range f.PressedKeys() {
		pressed = append(pressed, names.Key(k))
	}

	adc := make([]string, len(f.ADC))
	for i, v := range f.ADC {
		adc[i] = fmt.Sprintf("%d", v)
	}

	mark := ""
	if !f.Valid {
		mark = " (bad checksum)"
	}
	return fmt.Sprintf("#%03d keys=[%s] adc=[%s]%s", f.Index, strings.Join(pressed, ","), strings.Join(adc, " "), mark)
}

func formatConfig(cfg config.Config) string {
	var b strings.Builder
	port := cfg.Serial.Port
	if port == "" {
		port = "(none)"
	}
	fmt.Fprintf(&b, "serial:    %s @ %d baud\n", port, cfg.Serial.BaudRate)
	fmt.Fprintf(&b, "telemetry: every %s, keep %d frames\n", cfg.Telemetry.Interval, cfg.Telemetry.History)
	fmt.Fprintf(&b, "upgrade:   chunk %d, frame delay %s, trigger %t, crc %t, await reply %t\n",
		cfg.Upgrade.ChunkSize, cfg.Upgrade.FrameDelay, cfg.Upgrade.SendTrigger, cfg.Upgrade.UseCRC, cfg.Upgrade.AwaitResponse)
	if cfg.MQTT.Broker != "" {
		fmt.Fprintf(&b, "mqtt:      %s -> %s\n", cfg.MQTT.Broker, cfg.MQTT.Topic)
	}
	return b.String()
}
