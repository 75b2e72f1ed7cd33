package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-keymatrix/protocol"
	"github.com/moffa90/go-keymatrix/transport"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw   string
		level zerolog.Level
		ok    bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, true},
		{" WARN ", zerolog.WarnLevel, true},
		{"trace", zerolog.TraceLevel, true},
		{"off", zerolog.Disabled, true},
		{"loud", zerolog.InfoLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			level, ok := parseLevel(tt.raw)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.level, level)
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogNoColor, "true")
	t.Setenv(EnvLogTimestamp, "nope")

	cfg := DefaultLogConfig()
	applyEnvOverrides(&cfg)

	require.Equal(t, zerolog.ErrorLevel, cfg.Level)
	require.True(t, cfg.NoColor)
	require.True(t, cfg.Timestamp)
}

func TestKVLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("matrixctl", &buf, LogConfig{Level: zerolog.DebugLevel, NoColor: true})
	kv := NewKVLogger(logger, "uploader")

	kv.Debug("frame sent", "seq", 3, "stage", "data")
	kv.Info("firmware transfer complete", "bytes", 600)
	kv.Error("firmware transfer failed", "error", errors.New("link down"))

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "DBG")
	require.Contains(t, lines[0], "frame sent")
	require.Contains(t, lines[0], "seq=3")
	require.Contains(t, lines[0], "component=uploader")
	require.Contains(t, lines[1], "bytes=600")
	require.Contains(t, lines[2], "ERR")
	require.Contains(t, lines[2], "link down")
}

func TestNewLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("matrixctl", &buf, LogConfig{Level: zerolog.ErrorLevel, NoColor: true})
	NewKVLogger(logger, "poller").Info("hidden")
	require.Empty(t, buf.String())
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

type recordingConn struct {
	sent    [][]byte
	sendErr error
	reply   []byte
}

func (c *recordingConn) Send(ctx context.Context, frame []byte) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, frame)
	return nil
}

func (c *recordingConn) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	return c.reply, nil
}

type sendOnly struct{}

func (sendOnly) Send(ctx context.Context, frame []byte) error { return nil }

func TestInstrumentTransport(t *testing.T) {
	conn := &recordingConn{reply: []byte{0xAA, 0x01}}
	inst := InstrumentTransport(conn)

	recv, ok := inst.(transport.Receiver)
	require.True(t, ok)

	_, ok = InstrumentTransport(sendOnly{}).(transport.Receiver)
	require.False(t, ok)

	ledOK := framesSent.WithLabelValues(protocol.KindLED, "true")
	triggerFailed := framesSent.WithLabelValues(protocol.KindTrigger, "false")
	beforeLED := counterValue(t, ledOK)
	beforeTrigger := counterValue(t, triggerFailed)
	beforeBytes := counterValue(t, bytesReceived)

	frame, err := protocol.BuildLEDCmd(0, true)
	require.NoError(t, err)
	require.NoError(t, inst.Send(context.Background(), frame))
	require.Len(t, conn.sent, 1)

	conn.sendErr = errors.New("port gone")
	require.Error(t, inst.Send(context.Background(), protocol.BuildUpgradeTriggerCmd()))

	data, err := recv.Receive(context.Background(), time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0x01}, data)

	require.Equal(t, beforeLED+1, counterValue(t, ledOK))
	require.Equal(t, beforeTrigger+1, counterValue(t, triggerFailed))
	require.Equal(t, beforeBytes+2, counterValue(t, bytesReceived))
}

func TestRecordTransferAndTelemetry(t *testing.T) {
	completed := transfers.WithLabelValues("completed")
	before := counterValue(t, completed)
	beforeBytes := counterValue(t, transferBytes)
	beforeValid := counterValue(t, telemetryFrames.WithLabelValues("true"))
	beforeErrs := counterValue(t, telemetryErrors)

	RecordTransfer("completed", 600, 3*time.Second)
	RecordTelemetryFrame(true)
	RecordTelemetryError()

	require.Equal(t, before+1, counterValue(t, completed))
	require.Equal(t, beforeBytes+600, counterValue(t, transferBytes))
	require.Equal(t, beforeValid+1, counterValue(t, telemetryFrames.WithLabelValues("true")))
	require.Equal(t, beforeErrs+1, counterValue(t, telemetryErrors))
}

func TestHandler(t *testing.T) {
	RecordTelemetryFrame(false)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "matrixctl_telemetry_frames_total")
}
